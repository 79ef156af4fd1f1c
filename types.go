package orchestrator

import "time"

// Capability is a named competence advertised by workers and required by
// tasks, drawn from a closed set.
type Capability string

const (
	CapabilityGeneral        Capability = "general"
	CapabilityCodeAnalysis   Capability = "code_analysis"
	CapabilityCodeGeneration Capability = "code_generation"
	CapabilityTesting        Capability = "testing"
	CapabilityDebugging      Capability = "debugging"
	CapabilityDocumentation  Capability = "documentation"
	CapabilityDataProcessing Capability = "data_processing"
	CapabilityFileOps        Capability = "file_operations"
	CapabilityAPIIntegration Capability = "api_integration"
	CapabilityResearch       Capability = "research"
)

// validCapabilities is the closed capability set.
var validCapabilities = map[Capability]bool{
	CapabilityGeneral:        true,
	CapabilityCodeAnalysis:   true,
	CapabilityCodeGeneration: true,
	CapabilityTesting:        true,
	CapabilityDebugging:      true,
	CapabilityDocumentation:  true,
	CapabilityDataProcessing: true,
	CapabilityFileOps:        true,
	CapabilityAPIIntegration: true,
	CapabilityResearch:       true,
}

// TaskStatus is the lifecycle state of a task within a workflow.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusReady     TaskStatus = "ready"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
	StatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether s is one of the four terminal statuses.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStatus is the overall lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Strategy names a scheduling policy over the dispatcher.
type Strategy string

const (
	StrategyAuto        Strategy = "auto"
	StrategySequential  Strategy = "sequential"
	StrategyParallel    Strategy = "parallel"
	StrategyDAG         Strategy = "dag"
	StrategyConditional Strategy = "conditional"
)

// RetryPolicy controls how a failed task is retried.
type RetryPolicy struct {
	MaxRetries        int           `validate:"min=0"`
	InitialDelay      time.Duration `validate:"min=0"`
	BackoffMultiplier float64       `validate:"min=0"`
	MaxDelay          time.Duration `validate:"min=0"`
	Jitter            bool
}

// DefaultRetryPolicy mirrors the teacher's exponential-backoff defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        0,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		Jitter:            true,
	}
}

// OutputKind tags the sum type a Task Result's output belongs to.
type OutputKind string

const (
	OutputString     OutputKind = "string"
	OutputStructured OutputKind = "structured"
	OutputBinary     OutputKind = "binary"
	OutputError      OutputKind = "error"
)

// Output is the opaque envelope a worker returns. Exactly one of String,
// Structured or Binary is meaningful, selected by Kind; cache serialization
// operates on this envelope, never on a worker's native return type.
type Output struct {
	Kind       OutputKind `json:"kind"`
	String     string     `json:"string,omitempty"`
	Structured any        `json:"structured,omitempty"`
	Binary     []byte     `json:"binary,omitempty"`
}

// StructuredError is the payload carried by a failed Task Result.
type StructuredError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// TaskDefinition is an immutable unit of work within a Workflow Definition.
type TaskDefinition struct {
	ID                 string            `validate:"required"`
	Description        string            `validate:"required"`
	Type               string
	DependsOn          []string
	RequiredCapability []Capability
	RequiredSkills     []string
	Priority           int `validate:"min=1,max=10"`
	TimeoutSeconds     *float64
	Retry              RetryPolicy
	Parameters         map[string]any
	WorkerType         string
	Condition          string
}

// WorkflowDefinition is a DAG of TaskDefinitions submitted as a unit.
type WorkflowDefinition struct {
	ID                string
	Name              string
	Description       string
	Tasks             []TaskDefinition
	Strategy          Strategy
	DefaultTimeout     *float64
	MaxParallelTasks  int `validate:"min=1"`
	ContinueOnFailure bool
	Metadata          map[string]any
}

// TaskResult is the outcome recorded for one terminal (or in-flight) attempt
// of a task.
type TaskResult struct {
	TaskID      string
	Status      TaskStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Attempts    int
	WorkerID    string
	Output      *Output
	Error       *StructuredError
	SkipReason  string
}

// Event is one timestamped entry in a Workflow State's event log.
type Event struct {
	ID        string
	Timestamp time.Time
	TaskID    string
	From       TaskStatus
	To         TaskStatus
	Detail    string
}

// WorkflowState is the authoritative, read-only-to-outsiders snapshot of a
// running or finished workflow.
type WorkflowState struct {
	WorkflowID string
	Status     WorkflowStatus
	Tasks      map[string]TaskStatus
	Results    map[string]TaskResult
	Events     []Event
	StartedAt  time.Time
	EndedAt    time.Time
}

// Progress summarizes a WorkflowState as counts by status plus a completion
// percentage.
type Progress struct {
	Total      int
	ByStatus   map[TaskStatus]int
	PercentDone float64
}
