package orchestrator

import "fmt"

// Recommendation is the Strategy Recommender's structured output.
type Recommendation struct {
	Strategy           Strategy
	TaskCount          int
	IndependentCount   int
	HasDependencies    bool
	HasConditions      bool
	Rationale          string
}

// Recommend is a pure static analysis of wf: same input always yields the
// same recommendation. Grounded on the teacher's small pure-function
// analysis helpers (providers/graph/basic.go's edge/degree counting),
// since the lineage has no literal recommender to adapt.
func Recommend(wf *WorkflowDefinition) Recommendation {
	rec := Recommendation{TaskCount: len(wf.Tasks)}

	for _, t := range wf.Tasks {
		if len(t.DependsOn) == 0 {
			rec.IndependentCount++
		} else {
			rec.HasDependencies = true
		}
		if t.Condition != "" {
			rec.HasConditions = true
		}
	}

	switch {
	case rec.HasConditions:
		rec.Strategy = StrategyConditional
		rec.Rationale = "at least one task declares a condition, which only the conditional strategy evaluates"
	case !rec.HasDependencies && rec.TaskCount >= 2:
		rec.Strategy = StrategyParallel
		rec.Rationale = fmt.Sprintf("all %d tasks are independent, so they can run concurrently", rec.TaskCount)
	case rec.HasDependencies:
		rec.Strategy = StrategyDAG
		rec.Rationale = "tasks declare dependencies, so the dependency graph must be scheduled"
	default:
		rec.Strategy = StrategySequential
		rec.Rationale = "a single task or an unstructured set with no dependencies or conditions"
	}

	return rec
}
