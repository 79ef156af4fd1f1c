package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// VisualizationFormat selects a Visualizer rendering.
type VisualizationFormat string

const (
	FormatMermaid VisualizationFormat = "mermaid"
	FormatDOT     VisualizationFormat = "dot"
	FormatASCII   VisualizationFormat = "ascii"
	FormatJSON    VisualizationFormat = "json"
)

// VisualNode is one node in the JSON rendering's nodes[] array.
type VisualNode struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	DurationMS  *int64  `json:"duration_ms,omitempty"`
	Retries     *int    `json:"retries,omitempty"`
}

// VisualEdge is one edge in the JSON rendering's edges[] array.
type VisualEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// VisualDocument is the stable JSON schema spec.md §4.9 names as the
// canonical machine-readable visualization form.
type VisualDocument struct {
	Workflow struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"workflow"`
	Nodes []VisualNode `json:"nodes"`
	Edges []VisualEdge `json:"edges"`
}

// Visualize renders wf (and, if non-nil, its execution state) in format.
// Grounded on the teacher's orchestration/graph.go node/edge traversal
// helpers, adapted from execution-time walking to read-only rendering.
func Visualize(wf *WorkflowDefinition, state *WorkflowState, format VisualizationFormat) (string, error) {
	switch format {
	case FormatMermaid:
		return renderMermaid(wf, state), nil
	case FormatDOT:
		return renderDOT(wf, state), nil
	case FormatASCII:
		return renderASCII(wf, state), nil
	case FormatJSON:
		doc := buildVisualDocument(wf, state)
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("visualizer: unknown format %q", format)
	}
}

func buildVisualDocument(wf *WorkflowDefinition, st *WorkflowState) VisualDocument {
	var doc VisualDocument
	doc.Workflow.ID = wf.ID
	doc.Workflow.Name = wf.Name

	for _, t := range wf.Tasks {
		node := VisualNode{ID: t.ID, Description: t.Description, Status: string(StatusPending)}
		if st != nil {
			if s, ok := st.Tasks[t.ID]; ok {
				node.Status = string(s)
			}
			if r, ok := st.Results[t.ID]; ok && !r.CompletedAt.IsZero() && !r.StartedAt.IsZero() {
				ms := r.CompletedAt.Sub(r.StartedAt).Milliseconds()
				node.DurationMS = &ms
				retries := r.Attempts - 1
				node.Retries = &retries
			}
		}
		doc.Nodes = append(doc.Nodes, node)

		for _, dep := range t.DependsOn {
			doc.Edges = append(doc.Edges, VisualEdge{From: dep, To: t.ID})
		}
	}

	sort.Slice(doc.Nodes, func(i, j int) bool { return doc.Nodes[i].ID < doc.Nodes[j].ID })
	sort.Slice(doc.Edges, func(i, j int) bool {
		if doc.Edges[i].From != doc.Edges[j].From {
			return doc.Edges[i].From < doc.Edges[j].From
		}
		return doc.Edges[i].To < doc.Edges[j].To
	})
	return doc
}

func statusOf(st *WorkflowState, id string) TaskStatus {
	if st == nil {
		return StatusPending
	}
	if s, ok := st.Tasks[id]; ok {
		return s
	}
	return StatusPending
}

func renderMermaid(wf *WorkflowDefinition, st *WorkflowState) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, t := range wf.Tasks {
		status := statusOf(st, t.ID)
		fmt.Fprintf(&b, "  %s[%q]\n", t.ID, t.Description)
		fmt.Fprintf(&b, "  class %s %s\n", t.ID, mermaidClass(status))
	}
	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			fmt.Fprintf(&b, "  %s --> %s\n", dep, t.ID)
		}
	}
	b.WriteString("  classDef completed fill:#9f9,stroke:#363\n")
	b.WriteString("  classDef failed fill:#f99,stroke:#633\n")
	b.WriteString("  classDef running fill:#9cf,stroke:#369\n")
	b.WriteString("  classDef default fill:#eee,stroke:#999\n")
	return b.String()
}

func mermaidClass(s TaskStatus) string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed, StatusCancelled:
		return "failed"
	case StatusRunning:
		return "running"
	default:
		return "default"
	}
}

func renderDOT(wf *WorkflowDefinition, st *WorkflowState) string {
	var b strings.Builder
	b.WriteString("digraph Workflow {\n")
	for _, t := range wf.Tasks {
		fmt.Fprintf(&b, "  %q [label=%q, style=filled, fillcolor=%q];\n", t.ID, t.Description, dotColor(statusOf(st, t.ID)))
	}
	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, t.ID)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func dotColor(s TaskStatus) string {
	switch s {
	case StatusCompleted:
		return "green"
	case StatusFailed, StatusCancelled:
		return "red"
	case StatusRunning:
		return "lightblue"
	default:
		return "white"
	}
}

func renderASCII(wf *WorkflowDefinition, st *WorkflowState) string {
	levels := topologicalLevels(wf)

	var b strings.Builder
	for i, level := range levels {
		fmt.Fprintf(&b, "level %d:\n", i)
		for _, id := range level {
			task := findTask(wf, id)
			fmt.Fprintf(&b, "  %s %s (%s)\n", asciiSymbol(statusOf(st, id)), id, task.Description)
		}
	}
	return b.String()
}

func asciiSymbol(s TaskStatus) string {
	switch s {
	case StatusCompleted:
		return "\u2713" // check
	case StatusFailed, StatusCancelled:
		return "\u2717" // cross
	case StatusRunning:
		return "\u27f3" // circular arrow
	default:
		return "\u25cb" // circle
	}
}

func findTask(wf *WorkflowDefinition, id string) *TaskDefinition {
	for i := range wf.Tasks {
		if wf.Tasks[i].ID == id {
			return &wf.Tasks[i]
		}
	}
	return &TaskDefinition{}
}

// topologicalLevels groups task ids into dependency levels: level 0 has no
// dependencies, level N depends only on tasks in levels < N.
func topologicalLevels(wf *WorkflowDefinition) [][]string {
	level := make(map[string]int, len(wf.Tasks))
	deps := make(map[string][]string, len(wf.Tasks))
	for _, t := range wf.Tasks {
		deps[t.ID] = t.DependsOn
	}

	var computeLevel func(id string) int
	computeLevel = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		maxDep := -1
		for _, d := range deps[id] {
			if l := computeLevel(d); l > maxDep {
				maxDep = l
			}
		}
		l := maxDep + 1
		level[id] = l
		return l
	}

	maxLevel := 0
	for _, t := range wf.Tasks {
		if l := computeLevel(t.ID); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, t := range wf.Tasks {
		levels[level[t.ID]] = append(levels[level[t.ID]], t.ID)
	}
	for _, l := range levels {
		sort.Strings(l)
	}
	return levels
}
