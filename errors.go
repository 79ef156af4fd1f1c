package orchestrator

import (
	"errors"
	"fmt"
)

// OrchestrationError wraps every error the engine returns to a caller. Op
// names the operation that failed; Code is a stable string kind from the
// taxonomy below; Err is the underlying cause.
type OrchestrationError struct {
	Op   string
	Code string
	Err  error
}

func (e *OrchestrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orchestrator %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("orchestrator %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Error codes surfaced to callers, per the external error taxonomy.
const (
	ErrCodeValidation           = "ValidationError"
	ErrCodeCyclicDependency     = "CyclicDependency"
	ErrCodeNoWorkerAvailable    = "NoWorkerAvailable"
	ErrCodeTaskTimeout          = "TaskTimeout"
	ErrCodeTaskFailed           = "TaskFailed"
	ErrCodeDependencyFailed     = "DependencyFailed"
	ErrCodeRequiredSkillMissing = "RequiredSkillNotFound"
	ErrCodeCancelled            = "Cancelled"
	ErrCodeInternal             = "InternalError"
)

func newErr(op, code string, err error) *OrchestrationError {
	return &OrchestrationError{Op: op, Code: code, Err: err}
}

func ErrValidation(op string, err error) *OrchestrationError {
	return newErr(op, ErrCodeValidation, err)
}

func ErrCyclicDependency(op string, cycle []string) *OrchestrationError {
	return newErr(op, ErrCodeCyclicDependency, fmt.Errorf("cycle detected among tasks %v", cycle))
}

func ErrNoWorkerAvailable(op, taskID string) *OrchestrationError {
	return newErr(op, ErrCodeNoWorkerAvailable, fmt.Errorf("no worker routing available for task %q", taskID))
}

func ErrTaskTimeout(op, taskID string) *OrchestrationError {
	return newErr(op, ErrCodeTaskTimeout, fmt.Errorf("task %q exceeded its timeout", taskID))
}

func ErrTaskFailed(op, taskID string, err error) *OrchestrationError {
	return newErr(op, ErrCodeTaskFailed, fmt.Errorf("task %q failed: %w", taskID, err))
}

func ErrDependencyFailed(op, taskID, dependencyID string) *OrchestrationError {
	return newErr(op, ErrCodeDependencyFailed, fmt.Errorf("task %q depends on %q which did not complete", taskID, dependencyID))
}

func ErrRequiredSkillNotFound(op, skillName string, available []string) *OrchestrationError {
	return newErr(op, ErrCodeRequiredSkillMissing, fmt.Errorf("skill %q not found (available: %v)", skillName, available))
}

func ErrCancelled(op, taskID string) *OrchestrationError {
	return newErr(op, ErrCodeCancelled, fmt.Errorf("task %q was cancelled", taskID))
}

func ErrInternal(op string, err error) *OrchestrationError {
	return newErr(op, ErrCodeInternal, err)
}

// IsRetryable reports whether err's code participates in the dispatcher's
// retry loop. Validation, cyclic-dependency, dependency, skill-lookup and
// cancellation errors are never retried; worker failures and timeouts are.
func IsRetryable(err error) bool {
	var oe *OrchestrationError
	if !errors.As(err, &oe) {
		return true
	}
	switch oe.Code {
	case ErrCodeTaskTimeout, ErrCodeTaskFailed:
		return true
	default:
		return false
	}
}

// Code extracts the OrchestrationError code from err, or "" if err does not
// wrap one.
func Code(err error) string {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}
