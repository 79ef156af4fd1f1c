package orchestrator

import "context"

// Worker is the external interface the Router's chosen routing invokes to
// actually perform a task. Implementations are side-effectful but must be
// re-entrant across retries: the dispatcher assumes each attempt is
// independent.
type Worker interface {
	Run(ctx context.Context, taskDescription string, parameters map[string]any, loadedSkills map[string]string, dependencyOutputs map[string]Output) (Output, error)
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context, taskDescription string, parameters map[string]any, loadedSkills map[string]string, dependencyOutputs map[string]Output) (Output, error)

func (f WorkerFunc) Run(ctx context.Context, taskDescription string, parameters map[string]any, loadedSkills map[string]string, dependencyOutputs map[string]Output) (Output, error) {
	return f(ctx, taskDescription, parameters, loadedSkills, dependencyOutputs)
}

// WorkerRouting describes one routable worker type known to the Router.
type WorkerRouting struct {
	WorkerType         string
	Capabilities       []Capability
	Priority           int
	MaxConcurrentTasks int
	Worker             Worker
}

// SkillRegistry resolves skill names to reference content before dispatch.
type SkillRegistry interface {
	Lookup(skillName string) (body string, ok bool)
	Names() []string
}

// MapSkillRegistry is a minimal in-memory SkillRegistry implementation
// suitable for tests and simple embedders.
type MapSkillRegistry map[string]string

func (r MapSkillRegistry) Lookup(name string) (string, bool) {
	body, ok := r[name]
	return body, ok
}

func (r MapSkillRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	return names
}
