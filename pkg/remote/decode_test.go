package remote_test

import (
	"testing"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWorkflow_InlineGraph(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"id": "wf-1",
		"name": "Inline",
		"version": 3,
		"nodes": [
			{"id":"s","type":"start","position":{"x":1,"y":2},"data":{"label":"start"}},
			{"id":"h","type":"http","position":{"x":3,"y":4},"data":{"url":"https://example.com","method":"GET"}}
		],
		"edges": [{"id":"s-h","source":"s","target":"h"}],
		"createdAt": "2024-01-02T03:04:05Z"
	}`)

	wf, err := remote.DecodeWorkflow("GetWorkflow", body)
	require.NoError(t, err)

	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, "Inline", wf.Name)
	assert.Equal(t, 3, wf.Version)
	require.Len(t, wf.Nodes, 2)
	assert.Equal(t, models.Position{X: 3, Y: 4}, wf.Nodes[1].Position)

	h, ok := wf.Nodes[1].HTTP()
	require.True(t, ok)
	assert.Equal(t, "https://example.com", h.URL)
	assert.Equal(t, []models.Edge{{ID: "s-h", Source: "s", Target: "h"}}, wf.Edges)
	assert.False(t, wf.CreatedAt.IsZero())
}

func TestDecodeWorkflow_DAGJSONString(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"id": "wf-2",
		"name": "Serialized",
		"dag_json": "{\"nodes\":[{\"id\":\"o\",\"type\":\"output\",\"position\":{\"x\":0,\"y\":0},\"data\":{}}],\"edges\":[]}",
		"created_at": "2024-01-02T03:04:05Z"
	}`)

	wf, err := remote.DecodeWorkflow("GetWorkflow", body)
	require.NoError(t, err)

	require.Len(t, wf.Nodes, 1)
	assert.True(t, models.IsOutputNode(wf.Nodes[0]))
	assert.Empty(t, wf.Edges)
	assert.NotNil(t, wf.Edges)
	assert.Zero(t, wf.Version)
	assert.False(t, wf.CreatedAt.IsZero())
}

func TestDecodeWorkflow_ParseFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `<html>`, field: ""},
		{name: "bad dag_json", body: `{"id":"x","dag_json":"{nodes:"}`, field: "dag_json"},
		{name: "node data contradicts kind", body: `{"id":"x","nodes":[{"id":"h","type":"http","data":{"url":5}}],"edges":[]}`, field: "nodes[0]"},
		{name: "node without type", body: `{"id":"x","nodes":[{"id":"h"}],"edges":[]}`, field: "nodes[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := remote.DecodeWorkflow("GetWorkflow", []byte(tt.body))
			require.Error(t, err)
			assert.True(t, remote.IsParseError(err))

			var perr *remote.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.field, perr.Field)
			assert.Equal(t, "GetWorkflow", perr.Op)
		})
	}
}

func TestDecodeVersion(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"id": "v-1",
		"workflowId": "wf-1",
		"versionNumber": 2,
		"name": "Old",
		"nodes": [{"id":"s","type":"start","position":{"x":0,"y":0},"data":{}}],
		"edges": []
	}`)

	v, err := remote.DecodeVersion("GetWorkflowVersion", body)
	require.NoError(t, err)

	assert.Equal(t, 2, v.VersionNumber)
	assert.Equal(t, "wf-1", v.WorkflowID)
	require.Len(t, v.Nodes, 1)
	assert.True(t, models.IsStartNode(v.Nodes[0]))
}
