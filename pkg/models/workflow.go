package models

import "time"

// Workflow is the aggregate root: a named graph of nodes and edges.
// An empty ID marks a draft that has never been saved.
type Workflow struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"                validate:"required"`
	Version   int       `json:"version,omitempty"`
	Nodes     []Node    `json:"nodes"               validate:"dive"`
	Edges     []Edge    `json:"edges"               validate:"dive"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// IsDraft reports whether the workflow has no server-assigned id yet.
func (w *Workflow) IsDraft() bool {
	return w.ID == ""
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	cp := *w
	cp.Nodes = CloneNodes(w.Nodes)
	cp.Edges = CloneEdges(w.Edges)

	return &cp
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}

// CloneNodes deep-copies a node list. A nil input yields an empty list.
func CloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}

	return out
}

// CloneEdges copies an edge list. A nil input yields an empty list.
func CloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)

	return out
}

// WorkflowVersion is an immutable snapshot created server-side on every save or restore.
type WorkflowVersion struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflowId"`
	VersionNumber int       `json:"versionNumber"`
	Name          string    `json:"name"`
	Nodes         []Node    `json:"nodes,omitempty"`
	Edges         []Edge    `json:"edges,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// VersionList is the version history of one workflow.
type VersionList struct {
	Versions       []WorkflowVersion `json:"versions"`
	Total          int               `json:"total"`
	CurrentVersion int               `json:"currentVersion"`
}

// ExecutionSummary is the denormalized last execution shown in workflow listings.
type ExecutionSummary struct {
	ID         string          `json:"id"`
	Status     ExecutionStatus `json:"status"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// WorkflowSummary is one row of the workflow history listing.
type WorkflowSummary struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	NodeCount     int               `json:"nodeCount"`
	EdgeCount     int               `json:"edgeCount"`
	LastExecution *ExecutionSummary `json:"lastExecution,omitempty"`
}

// WorkflowList is one page of workflow summaries.
type WorkflowList struct {
	Items  []WorkflowSummary `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListOptions selects a page of the workflow listing.
type ListOptions struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
	Search string
}

// Viewport is the pan/zoom state of the canvas for one workflow.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DraftWorkflowKey keys per-workflow session state of the unsaved draft.
const DraftWorkflowKey = "__draft__"

// DefaultViewport is used for workflows without a remembered viewport.
var DefaultViewport = Viewport{X: 0, Y: 0, Zoom: 1}
