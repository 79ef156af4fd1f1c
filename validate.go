package orchestrator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/taskflow-engine/orchestrator/internal/condition"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateWorkflow checks every invariant in the data model section: unique
// task ids, dependency references, acyclic dependency graph, bounds on
// priority/retry/delay fields, closed capability set membership, and
// condition references. It returns a *OrchestrationError with code
// ValidationError or CyclicDependency on the first violation found.
func ValidateWorkflow(wf *WorkflowDefinition) error {
	const op = "ValidateWorkflow"

	if err := structValidator.Struct(wf); err != nil {
		return ErrValidation(op, err)
	}

	seen := make(map[string]bool, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if seen[t.ID] {
			return ErrValidation(op, fmt.Errorf("duplicate task id %q", t.ID))
		}
		seen[t.ID] = true

		if err := structValidator.Struct(&t); err != nil {
			return ErrValidation(op, fmt.Errorf("task %q: %w", t.ID, err))
		}
		if err := structValidator.Struct(&t.Retry); err != nil {
			return ErrValidation(op, fmt.Errorf("task %q: retry policy: %w", t.ID, err))
		}
		if t.Retry.MaxDelay < t.Retry.InitialDelay {
			return ErrValidation(op, fmt.Errorf("task %q: max_delay must be >= initial_delay", t.ID))
		}
		for _, c := range t.RequiredCapability {
			if !validCapabilities[c] {
				return ErrValidation(op, fmt.Errorf("task %q: unknown capability %q", t.ID, c))
			}
		}
	}

	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return ErrValidation(op, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
		if t.Condition != "" {
			ids, err := condition.TaskIDs(t.Condition)
			if err != nil {
				return ErrValidation(op, fmt.Errorf("task %q: invalid condition: %w", t.ID, err))
			}
			for _, id := range ids {
				if !seen[id] {
					return ErrValidation(op, fmt.Errorf("task %q: condition references unknown task %q", t.ID, id))
				}
			}
		}
	}

	if wf.Strategy == StrategyParallel {
		for _, t := range wf.Tasks {
			if len(t.DependsOn) > 0 {
				return ErrValidation(op, fmt.Errorf("parallel strategy forbids dependencies, task %q declares some", t.ID))
			}
		}
	}

	if cycle := findCycle(wf.Tasks); cycle != nil {
		return ErrCyclicDependency(op, cycle)
	}

	return nil
}

// findCycle runs a DFS over the dependency graph and returns the ids
// forming a cycle, or nil if the graph is acyclic.
func findCycle(tasks []TaskDefinition) []string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tasks))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch state[dep] {
			case unvisited:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			case visiting:
				// Found the back edge; extract the cycle from the stack.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cyc := make([]string, len(stack[start:]))
				copy(cyc, stack[start:])
				return cyc
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, t := range tasks {
		if state[t.ID] == unvisited {
			if cyc := visit(t.ID); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
