package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommend_SingleTask(t *testing.T) {
	wf := &WorkflowDefinition{Tasks: []TaskDefinition{baseTask("a")}}
	rec := Recommend(wf)
	assert.Equal(t, StrategySequential, rec.Strategy)
}

func TestRecommend_IndependentTasksPreferParallel(t *testing.T) {
	wf := &WorkflowDefinition{Tasks: []TaskDefinition{baseTask("a"), baseTask("b")}}
	rec := Recommend(wf)
	assert.Equal(t, StrategyParallel, rec.Strategy)
	assert.Equal(t, 2, rec.IndependentCount)
}

func TestRecommend_DependenciesPreferDAG(t *testing.T) {
	wf := &WorkflowDefinition{Tasks: []TaskDefinition{baseTask("a"), baseTask("b", "a")}}
	rec := Recommend(wf)
	assert.Equal(t, StrategyDAG, rec.Strategy)
	assert.True(t, rec.HasDependencies)
}

func TestRecommend_ConditionsOverrideEverything(t *testing.T) {
	check := baseTask("check")
	fix := baseTask("fix", "check")
	fix.Condition = "NOT check"
	wf := &WorkflowDefinition{Tasks: []TaskDefinition{check, fix}}

	rec := Recommend(wf)
	assert.Equal(t, StrategyConditional, rec.Strategy)
	assert.True(t, rec.HasConditions)
}
