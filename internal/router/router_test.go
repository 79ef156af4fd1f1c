package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func caps(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func TestSelect_RoutesByCapability(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "coder", Capabilities: caps("code_generation"), MaxConcurrentTasks: 1},
		{WorkerType: "tester", Capabilities: caps("testing"), MaxConcurrentTasks: 1},
	})

	res, wt := r.Select(Request{RequiredCapabilities: []string{"testing"}})
	assert.Equal(t, Routed, res)
	assert.Equal(t, "tester", wt)
}

func TestSelect_Unroutable(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "coder", Capabilities: caps("code_generation"), MaxConcurrentTasks: 1},
	})
	res, _ := r.Select(Request{RequiredCapabilities: []string{"research"}})
	assert.Equal(t, Unroutable, res)
}

func TestSelect_WaitingWhenAtCapacity(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "coder", Capabilities: caps("code_generation"), MaxConcurrentTasks: 1},
	})
	res1, wt1 := r.Select(Request{RequiredCapabilities: []string{"code_generation"}})
	assert.Equal(t, Routed, res1)

	res2, _ := r.Select(Request{RequiredCapabilities: []string{"code_generation"}})
	assert.Equal(t, Waiting, res2)

	r.Release(wt1)
	res3, wt3 := r.Select(Request{RequiredCapabilities: []string{"code_generation"}})
	assert.Equal(t, Routed, res3)
	assert.Equal(t, "coder", wt3)
}

func TestSelect_HigherPriorityWinsRegardlessOfID(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "b-low-priority", Capabilities: caps("general"), Priority: 1, MaxConcurrentTasks: 5},
		{WorkerType: "a-high-priority", Capabilities: caps("general"), Priority: 5, MaxConcurrentTasks: 5},
	})
	_, wt := r.Select(Request{RequiredCapabilities: []string{"general"}})
	assert.Equal(t, "a-high-priority", wt, "higher priority should win regardless of name")
}

func TestSelect_ExplicitWorkerType(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "coder", Capabilities: caps("code_generation"), MaxConcurrentTasks: 1},
		{WorkerType: "special", Capabilities: caps(), MaxConcurrentTasks: 1},
	})
	res, wt := r.Select(Request{ExplicitWorkerType: "special"})
	assert.Equal(t, Routed, res)
	assert.Equal(t, "special", wt)
}

func TestSelect_UncappedWorkerNeverWaits(t *testing.T) {
	r := New([]Routing{{WorkerType: "coder", Capabilities: caps("general"), MaxConcurrentTasks: 0}})
	for i := 0; i < 5; i++ {
		res, _ := r.Select(Request{RequiredCapabilities: []string{"general"}})
		assert.Equal(t, Routed, res)
	}
}

func TestTotalCapacity(t *testing.T) {
	r := New([]Routing{
		{WorkerType: "a", MaxConcurrentTasks: 2},
		{WorkerType: "b", MaxConcurrentTasks: 3},
	})
	assert.Equal(t, 5, r.TotalCapacity())

	r2 := New([]Routing{{WorkerType: "a", MaxConcurrentTasks: 0}})
	assert.Equal(t, -1, r2.TotalCapacity())
}

func TestLoad(t *testing.T) {
	r := New([]Routing{{WorkerType: "a", Capabilities: caps("general"), MaxConcurrentTasks: 2}})
	assert.Equal(t, 0, r.Load("a"))
	r.Select(Request{RequiredCapabilities: []string{"general"}})
	assert.Equal(t, 1, r.Load("a"))
}
