package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
)

// cacheKeyInput is the canonical material a cache key is derived from.
// Field order here does not matter for the hash (JSON marshaling of a
// struct is already stable by field declaration order and map keys are
// sorted by encoding/json), but it mirrors §4.3's listed inputs.
type cacheKeyInput struct {
	TaskID             string         `json:"task_id"`
	Description        string         `json:"description"`
	RequiredCapability []string       `json:"required_capabilities"`
	RequiredSkills     []string       `json:"required_skills"`
	Parameters         map[string]any `json:"parameters"`
	DependencyOutputs  []string       `json:"dependency_outputs,omitempty"`
}

// deriveCacheKey computes a deterministic, stable fingerprint for a task's
// logical inputs. When includeDependencies is true, depOutputs (already
// canonically serialized by the caller, in declared dependency order) is
// folded into the hash.
func deriveCacheKey(t *TaskDefinition, includeDependencies bool, depOutputs []string) (string, error) {
	caps := make([]string, len(t.RequiredCapability))
	for i, c := range t.RequiredCapability {
		caps[i] = string(c)
	}
	sort.Strings(caps)

	skills := append([]string(nil), t.RequiredSkills...)
	sort.Strings(skills)

	input := cacheKeyInput{
		TaskID:             t.ID,
		Description:        t.Description,
		RequiredCapability: caps,
		RequiredSkills:     skills,
		Parameters:         canonicalizeMap(t.Parameters),
	}
	if includeDependencies {
		input.DependencyOutputs = depOutputs
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalizeMap returns a copy of m safe for stable JSON marshaling;
// encoding/json already sorts map[string]any keys, so this mainly exists
// to guard against a nil map producing "null" instead of "{}".
func canonicalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// cacheIndex is the secondary index task_id -> set of cache keys derived
// using that task id, so invalidate(task_id) can remove every entry a
// given task contributed to, including ones where it was a dependency.
type cacheIndex struct {
	mu   sync.Mutex
	byID map[string]map[string]bool
}

func newCacheIndex() *cacheIndex {
	return &cacheIndex{byID: make(map[string]map[string]bool)}
}

func (c *cacheIndex) record(taskID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byID[taskID]
	if !ok {
		set = make(map[string]bool)
		c.byID[taskID] = set
	}
	set[key] = true
}

// keysFor returns every key recorded against taskID.
func (c *cacheIndex) keysFor(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.byID[taskID]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

func (c *cacheIndex) forget(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, taskID)
}

func (c *cacheIndex) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]map[string]bool)
}
