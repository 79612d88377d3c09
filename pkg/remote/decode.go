package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
)

// graphJSON is the serialized graph carried either inline or inside a dag_json string.
type graphJSON struct {
	Nodes []json.RawMessage `json:"nodes"`
	Edges []models.Edge     `json:"edges"`
}

type workflowJSON struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Version       *int              `json:"version"`
	Nodes         []json.RawMessage `json:"nodes"`
	Edges         []models.Edge     `json:"edges"`
	DAGJSON       *string           `json:"dag_json"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	LegacyCreated time.Time         `json:"created_at"`
	LegacyUpdated time.Time         `json:"updated_at"`
}

type versionJSON struct {
	ID            string            `json:"id"`
	WorkflowID    string            `json:"workflowId"`
	VersionNumber int               `json:"versionNumber"`
	Name          string            `json:"name"`
	Nodes         []json.RawMessage `json:"nodes"`
	Edges         []models.Edge     `json:"edges"`
	DAGJSON       *string           `json:"dag_json"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// DecodeWorkflow normalizes a workflow body into the canonical shape. The graph
// may arrive as inline nodes/edges or as a serialized dag_json string; node data
// is checked against the schema of its kind.
func DecodeWorkflow(op string, body []byte) (*models.Workflow, error) {
	var raw workflowJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}

	nodes, edges, err := decodeGraph(op, raw.Nodes, raw.Edges, raw.DAGJSON)
	if err != nil {
		return nil, err
	}

	wf := &models.Workflow{
		ID:        raw.ID,
		Name:      raw.Name,
		Nodes:     nodes,
		Edges:     edges,
		CreatedAt: firstNonZero(raw.CreatedAt, raw.LegacyCreated),
		UpdatedAt: firstNonZero(raw.UpdatedAt, raw.LegacyUpdated),
	}

	if raw.Version != nil {
		wf.Version = *raw.Version
	}

	return wf, nil
}

// DecodeVersion normalizes a workflow version body the same way as DecodeWorkflow.
func DecodeVersion(op string, body []byte) (*models.WorkflowVersion, error) {
	var raw versionJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}

	nodes, edges, err := decodeGraph(op, raw.Nodes, raw.Edges, raw.DAGJSON)
	if err != nil {
		return nil, err
	}

	return &models.WorkflowVersion{
		ID:            raw.ID,
		WorkflowID:    raw.WorkflowID,
		VersionNumber: raw.VersionNumber,
		Name:          raw.Name,
		Nodes:         nodes,
		Edges:         edges,
		CreatedAt:     raw.CreatedAt,
	}, nil
}

func decodeGraph(op string, nodes []json.RawMessage, edges []models.Edge, dagJSON *string) ([]models.Node, []models.Edge, error) {
	field := "nodes"

	if nodes == nil && edges == nil && dagJSON != nil {
		field = "dag_json"

		var g graphJSON
		if err := json.Unmarshal([]byte(*dagJSON), &g); err != nil {
			return nil, nil, &ParseError{Op: op, Field: field, Err: err}
		}

		nodes, edges = g.Nodes, g.Edges
	}

	out := make([]models.Node, 0, len(nodes))

	for i, rawNode := range nodes {
		node, err := decodeNode(rawNode)
		if err != nil {
			return nil, nil, &ParseError{Op: op, Field: fmt.Sprintf("%s[%d]", field, i), Err: err}
		}

		out = append(out, node)
	}

	if edges == nil {
		edges = []models.Edge{}
	}

	return out, edges, nil
}

func decodeNode(raw json.RawMessage) (models.Node, error) {
	var head struct {
		Kind models.NodeKind `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return models.Node{}, err
	}

	if head.Kind == "" {
		return models.Node{}, errors.New("node without type")
	}

	if err := models.ValidateConfigShape(head.Kind, head.Data); err != nil {
		return models.Node{}, err
	}

	var node models.Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return models.Node{}, err
	}

	return node, nil
}

func firstNonZero(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}

	return time.Time{}
}
