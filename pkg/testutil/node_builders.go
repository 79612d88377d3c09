// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/dagstudio/pkg/models"
)

// StartNode creates a start node with the default configuration.
func StartNode(id string) models.Node {
	return models.NewNode(id, models.NodeKindStart, models.Position{})
}

// OutputNode creates an output node with the default configuration.
func OutputNode(id string) models.Node {
	return models.NewNode(id, models.NodeKindOutput, models.Position{})
}

// CodeNode creates a code node with an empty program.
func CodeNode(id string) models.Node {
	return models.NewNode(id, models.NodeKindCode, models.Position{})
}

// HTTPNode creates an http node. The method is kept as given, unnormalized.
func HTTPNode(id, url, method string) models.Node {
	return models.Node{
		ID:     id,
		Kind:   models.NodeKindHTTP,
		Config: &models.HTTPConfig{URL: url, Method: method},
	}
}

// Edge creates an edge with the conventional id.
func Edge(source, target string) models.Edge {
	return models.Edge{ID: models.EdgeID(source, target), Source: source, Target: target}
}

// NewWorkflow creates an unsaved workflow from the given nodes and edges.
func NewWorkflow(nodes []models.Node, edges []models.Edge, overrides ...func(*models.Workflow)) *models.Workflow {
	if nodes == nil {
		nodes = []models.Node{}
	}

	if edges == nil {
		edges = []models.Edge{}
	}

	wf := &models.Workflow{
		Name:  "Test Workflow",
		Nodes: nodes,
		Edges: edges,
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// LinearWorkflow creates the valid graph start -> http -> output.
func LinearWorkflow(url string, overrides ...func(*models.Workflow)) *models.Workflow {
	return NewWorkflow(
		[]models.Node{StartNode("start-1"), HTTPNode("http-1", url, models.MethodGet), OutputNode("output-1")},
		[]models.Edge{Edge("start-1", "http-1"), Edge("http-1", "output-1")},
		overrides...,
	)
}

// WithID binds the workflow to a server id.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithVersion sets the workflow version.
func WithVersion(version int) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Version = version
	}
}
