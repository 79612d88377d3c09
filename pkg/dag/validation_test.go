package dag_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	errNoStart  = "Workflow must have at least one start node"
	errNoOutput = "Workflow must have at least one output node"
	errCycle    = "Workflow contains a cycle"
)

func TestValidate_ValidLinearWorkflow(t *testing.T) {
	t.Parallel()

	wf := testutil.LinearWorkflow("https://example.com/api")

	result := dag.Validate(wf)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NotNil(t, result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidate_Rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		workflow *models.Workflow
		expected []string
	}{
		{
			name:     "empty workflow reports both missing kinds",
			workflow: testutil.NewWorkflow(nil, nil),
			expected: []string{errNoStart, errNoOutput},
		},
		{
			name: "start only reports missing output",
			workflow: testutil.NewWorkflow(
				[]models.Node{testutil.StartNode("S")},
				nil,
			),
			expected: []string{errNoOutput, "Start node 'S' has no path to any output node"},
		},
		{
			name: "output only reports missing start",
			workflow: testutil.NewWorkflow(
				[]models.Node{testutil.OutputNode("O")},
				nil,
			),
			expected: []string{errNoStart},
		},
		{
			name: "invalid url is the only error",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					testutil.HTTPNode("H", "not a url", models.MethodGet),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "H"), testutil.Edge("H", "O")},
			),
			expected: []string{"HTTP node 'H' has invalid URL format"},
		},
		{
			name: "two node cycle",
			workflow: testutil.NewWorkflow(
				[]models.Node{testutil.StartNode("S"), testutil.OutputNode("O")},
				[]models.Edge{testutil.Edge("S", "O"), testutil.Edge("O", "S")},
			),
			expected: []string{"Start node 'S' cannot have incoming edges", errCycle},
		},
		{
			name: "disconnected start and output",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("A"),
					testutil.CodeNode("C"),
					testutil.OutputNode("B"),
				},
				[]models.Edge{testutil.Edge("A", "C")},
			),
			expected: []string{"Start node 'A' has no path to any output node"},
		},
		{
			name: "missing url",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					testutil.HTTPNode("H", "   ", models.MethodPost),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "H"), testutil.Edge("H", "O")},
			),
			expected: []string{"HTTP node 'H' must have a URL"},
		},
		{
			name: "invalid method",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					testutil.HTTPNode("H", "https://example.com", "fetch"),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "H"), testutil.Edge("H", "O")},
			),
			expected: []string{"HTTP node 'H' has invalid method 'fetch'"},
		},
		{
			name: "lower case method",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					testutil.HTTPNode("H", "https://example.com", "get"),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "H"), testutil.Edge("H", "O")},
			),
			expected: []string{"HTTP node 'H' has invalid method 'get'"},
		},
		{
			name: "duplicate node id",
			workflow: testutil.NewWorkflow(
				[]models.Node{testutil.StartNode("S"), testutil.OutputNode("S"), testutil.OutputNode("S")},
				nil,
			),
			expected: []string{"Duplicate node id 'S'"},
		},
		{
			name: "unknown node kind",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					models.NewNode("X", models.NodeKind("webhook"), models.Position{}),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "X"), testutil.Edge("X", "O")},
			),
			expected: []string{"Unknown node type 'webhook' for node 'X'"},
		},
		{
			name: "self loop",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					testutil.CodeNode("C"),
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "C"), testutil.Edge("C", "C"), testutil.Edge("C", "O")},
			),
			expected: []string{errCycle},
		},
		{
			name: "dangling edge",
			workflow: testutil.NewWorkflow(
				[]models.Node{testutil.StartNode("S"), testutil.OutputNode("O")},
				[]models.Edge{testutil.Edge("S", "O"), testutil.Edge("O", "ghost")},
			),
			expected: []string{"Edge 'O-ghost' references unknown node 'ghost'"},
		},
		{
			name: "config does not match kind",
			workflow: testutil.NewWorkflow(
				[]models.Node{
					testutil.StartNode("S"),
					{ID: "C", Kind: models.NodeKindCode, Config: &models.OutputConfig{}},
					testutil.OutputNode("O"),
				},
				[]models.Edge{testutil.Edge("S", "C"), testutil.Edge("C", "O")},
			),
			expected: []string{"Node 'C' data does not match its type 'code'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := dag.Validate(tt.workflow)

			assert.False(t, result.Valid)
			assert.Equal(t, tt.expected, result.Errors)
		})
	}
}

func TestValidate_ErrorsAreAccumulatedInOrder(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.HTTPNode("H1", "", "bogus"),
			testutil.HTTPNode("H2", "ftp:/nohost", models.MethodGet),
		},
		[]models.Edge{testutil.Edge("H1", "H2"), testutil.Edge("H2", "H1")},
	)

	result := dag.Validate(wf)

	assert.Equal(t, []string{
		errNoStart,
		errNoOutput,
		errCycle,
		"HTTP node 'H1' must have a URL",
		"HTTP node 'H1' has invalid method 'bogus'",
		"HTTP node 'H2' has invalid URL format",
	}, result.Errors)
}

func TestValidate_CycleReportedOnce(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.StartNode("S"),
			testutil.CodeNode("A"),
			testutil.CodeNode("B"),
			testutil.CodeNode("C"),
			testutil.OutputNode("O"),
		},
		[]models.Edge{
			testutil.Edge("S", "A"),
			testutil.Edge("A", "B"),
			testutil.Edge("B", "A"),
			testutil.Edge("B", "C"),
			testutil.Edge("C", "B"),
			testutil.Edge("C", "O"),
		},
	)

	result := dag.Validate(wf)

	assert.Equal(t, []string{errCycle}, result.Errors)
}

func TestValidate_StartWithIncomingEdgeReportsEachNode(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.StartNode("S1"),
			testutil.StartNode("S2"),
			testutil.OutputNode("O"),
		},
		[]models.Edge{testutil.Edge("S1", "S2"), testutil.Edge("S2", "O")},
	)

	result := dag.Validate(wf)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Start node 'S2' cannot have incoming edges")
	assert.NotContains(t, result.Errors, "Start node 'S1' cannot have incoming edges")
}

func TestValidate_DiamondIsAcyclic(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.StartNode("S"),
			testutil.CodeNode("L"),
			testutil.CodeNode("R"),
			testutil.OutputNode("O"),
		},
		[]models.Edge{
			testutil.Edge("S", "L"),
			testutil.Edge("S", "R"),
			testutil.Edge("L", "O"),
			testutil.Edge("R", "O"),
		},
	)

	assert.True(t, dag.Validate(wf).Valid)
}

func TestValidate_LongChainTerminates(t *testing.T) {
	t.Parallel()

	const size = 5000

	nodes := make([]models.Node, 0, size+2)
	edges := make([]models.Edge, 0, size+1)

	nodes = append(nodes, testutil.StartNode("S"))
	prev := "S"

	for i := range size {
		id := fmt.Sprintf("c%d", i)
		nodes = append(nodes, testutil.CodeNode(id))
		edges = append(edges, testutil.Edge(prev, id))
		prev = id
	}

	nodes = append(nodes, testutil.OutputNode("O"))
	edges = append(edges, testutil.Edge(prev, "O"))

	assert.True(t, dag.Validate(testutil.NewWorkflow(nodes, edges)).Valid)

	edges = append(edges, testutil.Edge("O", "c0"))
	assert.Contains(t, dag.Validate(testutil.NewWorkflow(nodes, edges)).Errors, errCycle)
}

func TestValidate_IsIdempotentAndPure(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.StartNode("S"),
			testutil.HTTPNode("H", "https://example.com", "post"),
			testutil.HTTPNode("E", "https://example.com", ""),
		},
		[]models.Edge{testutil.Edge("S", "H")},
	)

	first := dag.Validate(wf)
	second := dag.Validate(wf)

	assert.Equal(t, first, second)

	h, _ := wf.Nodes[1].HTTP()
	assert.Equal(t, "post", h.Method)

	e, _ := wf.Nodes[2].HTTP()
	assert.Empty(t, e.Method)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	wf := testutil.NewWorkflow(
		[]models.Node{
			testutil.HTTPNode("H1", "https://example.com", " patch "),
			testutil.HTTPNode("H2", "https://example.com", ""),
			{ID: "S", Kind: models.NodeKindStart},
		},
		nil,
	)

	out := dag.Normalize(wf)

	h1, ok := out.Nodes[0].HTTP()
	require.True(t, ok)
	assert.Equal(t, " patch ", h1.Method)

	h2, ok := out.Nodes[1].HTTP()
	require.True(t, ok)
	assert.Equal(t, models.MethodGet, h2.Method)

	_, ok = out.Nodes[2].Start()
	assert.True(t, ok)

	orig, _ := wf.Nodes[0].HTTP()
	assert.Equal(t, " patch ", orig.Method)
	assert.Nil(t, wf.Nodes[2].Config)

	wf.Nodes = append(wf.Nodes, testutil.OutputNode("O"))
	wf.Edges = []models.Edge{testutil.Edge("S", "H2"), testutil.Edge("H2", "O")}

	assert.Contains(t, dag.Validate(wf).Errors, "HTTP node 'H1' has invalid method ' patch '")
	assert.NotContains(t, dag.Validate(wf).Errors, "HTTP node 'H2' has invalid method ''")
}

func TestNormalize_NilWorkflow(t *testing.T) {
	t.Parallel()

	out := dag.Normalize(nil)

	require.NotNil(t, out)
	assert.Empty(t, out.Nodes)
	assert.Empty(t, out.Edges)
}

func TestResult_Err(t *testing.T) {
	t.Parallel()

	result := dag.Validate(testutil.NewWorkflow(nil, nil))

	err := result.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, dag.ErrInvalidWorkflow)
	assert.Equal(t, "Validation failed: "+errNoStart+", "+errNoOutput, err.Error())

	var verr *dag.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, result.Errors, verr.Errors)
}

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"https://example.com":          true,
		"http://localhost:8080/a?b=c":  true,
		"mailto:someone@example.com":   true,
		"":                             false,
		"not a url":                    false,
		"/relative/path":               false,
		"example.com":                  false,
		"http://":                      false,
		" https://example.com ":        true,
		"   ":                          false,
		"https://exa mple.com":         false,
		"http://[::1]:namedport/thing": false,
	}

	for raw, expected := range tests {
		assert.Equal(t, expected, dag.IsValidURL(raw), "url %q", raw)
	}
}

func TestEveryKindHasAValidatorBranch(t *testing.T) {
	t.Parallel()

	for _, kind := range models.NodeKinds() {
		node := models.NewNode("n", kind, models.Position{})
		if h, ok := node.HTTP(); ok {
			h.URL = "https://example.com"
		}

		wf := testutil.NewWorkflow([]models.Node{node}, nil)

		for _, msg := range dag.Validate(wf).Errors {
			assert.NotContains(t, msg, "Unknown node type", "kind %s", kind)
			assert.NotContains(t, msg, "does not match", "kind %s", kind)
		}
	}
}
