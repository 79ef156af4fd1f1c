package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTask(id string, deps ...string) TaskDefinition {
	return TaskDefinition{
		ID:          id,
		Description: "do " + id,
		DependsOn:   deps,
		Priority:    5,
		Retry:       DefaultRetryPolicy(),
	}
}

func baseWorkflow(tasks ...TaskDefinition) *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:               "wf-1",
		Name:             "test workflow",
		Tasks:            tasks,
		Strategy:         StrategyDAG,
		MaxParallelTasks: 4,
	}
}

func TestValidateWorkflow_Valid(t *testing.T) {
	wf := baseWorkflow(baseTask("a"), baseTask("b", "a"))
	assert.NoError(t, ValidateWorkflow(wf))
}

func TestValidateWorkflow_DuplicateID(t *testing.T) {
	wf := baseWorkflow(baseTask("a"), baseTask("a"))
	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_UnknownDependency(t *testing.T) {
	wf := baseWorkflow(baseTask("a", "ghost"))
	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_CyclicDependency(t *testing.T) {
	a := baseTask("a", "c")
	b := baseTask("b", "a")
	c := baseTask("c", "b")
	wf := baseWorkflow(a, b, c)

	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeCyclicDependency, Code(err))
}

func TestValidateWorkflow_UnknownCapability(t *testing.T) {
	task := baseTask("a")
	task.RequiredCapability = []Capability{"not_a_real_capability"}
	wf := baseWorkflow(task)

	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_ParallelForbidsDependencies(t *testing.T) {
	wf := baseWorkflow(baseTask("a"), baseTask("b", "a"))
	wf.Strategy = StrategyParallel

	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_InvalidRetryDelays(t *testing.T) {
	task := baseTask("a")
	task.Retry.InitialDelay = 10_000_000_000 // 10s
	task.Retry.MaxDelay = 1_000_000_000      // 1s
	wf := baseWorkflow(task)

	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_ConditionReferencesUnknownTask(t *testing.T) {
	task := baseTask("a")
	task.Condition = "ghost"
	wf := baseWorkflow(task)

	err := ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, Code(err))
}

func TestValidateWorkflow_ConditionReferencesKnownTask(t *testing.T) {
	check := baseTask("check")
	fix := baseTask("fix")
	fix.Condition = "NOT check"
	wf := baseWorkflow(check, fix)

	assert.NoError(t, ValidateWorkflow(wf))
}

func TestValidateWorkflow_PriorityOutOfRange(t *testing.T) {
	task := baseTask("a")
	task.Priority = 99
	wf := baseWorkflow(task)

	err := ValidateWorkflow(wf)
	assert.Error(t, err)
}

func TestFindCycle_AcyclicReturnsNil(t *testing.T) {
	tasks := []TaskDefinition{baseTask("a"), baseTask("b", "a"), baseTask("c", "a")}
	assert.Nil(t, findCycle(tasks))
}
