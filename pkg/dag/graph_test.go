package dag_test

import (
	"testing"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologicalSort(t *testing.T) {
	t.Parallel()

	nodes := []models.Node{
		testutil.OutputNode("O"),
		testutil.CodeNode("B"),
		testutil.StartNode("S"),
		testutil.CodeNode("A"),
	}
	edges := []models.Edge{
		testutil.Edge("S", "A"),
		testutil.Edge("S", "B"),
		testutil.Edge("A", "O"),
		testutil.Edge("B", "O"),
	}

	order, err := dag.TopologicalSort(nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, []string{"S", "A", "B", "O"}, order)
}

func TestTopologicalSort_IgnoresDanglingEdges(t *testing.T) {
	t.Parallel()

	order, err := dag.TopologicalSort(
		[]models.Node{testutil.StartNode("S"), testutil.OutputNode("O")},
		[]models.Edge{testutil.Edge("S", "O"), testutil.Edge("ghost", "S")},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"S", "O"}, order)
}

func TestTopologicalSort_Cycle(t *testing.T) {
	t.Parallel()

	_, err := dag.TopologicalSort(
		[]models.Node{testutil.StartNode("S"), testutil.OutputNode("O")},
		[]models.Edge{testutil.Edge("S", "O"), testutil.Edge("O", "S")},
	)

	assert.ErrorIs(t, err, dag.ErrCycle)
}

func TestTopologicalSort_Empty(t *testing.T) {
	t.Parallel()

	order, err := dag.TopologicalSort(nil, nil)
	require.NoError(t, err)

	assert.Empty(t, order)
}
