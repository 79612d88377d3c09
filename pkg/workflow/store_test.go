package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/mocks"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/dukex/dagstudio/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// buildLinear fills store with start -> http -> output and returns the node ids.
func buildLinear(t *testing.T, store *workflow.Store) (string, string, string) {
	t.Helper()

	start := store.AddNode(models.NodeKindStart, models.Position{})
	http := store.AddNode(models.NodeKindHTTP, models.Position{X: 100})
	output := store.AddNode(models.NodeKindOutput, models.Position{X: 200})

	ok, err := store.UpdateNode(http.ID, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	require.True(t, ok)

	store.AddEdge(start.ID, http.ID)
	store.AddEdge(http.ID, output.ID)

	return start.ID, http.ID, output.ID
}

func TestStore_AddNodeIDsAreUniqueAndDefaulted(t *testing.T) {
	t.Parallel()

	store := workflow.NewStore(testutil.NewFakeRemote(), workflow.WithClock(fixedClock(1000)))

	first := store.AddNode(models.NodeKindHTTP, models.Position{X: 1, Y: 2})
	second := store.AddNode(models.NodeKindHTTP, models.Position{})
	third := store.AddNode(models.NodeKindStart, models.Position{})

	assert.Equal(t, "http-1000", first.ID)
	assert.Equal(t, "http-1001", second.ID)
	assert.Equal(t, "start-1002", third.ID)
	assert.Equal(t, models.Position{X: 1, Y: 2}, first.Position)

	cfg, ok := first.HTTP()
	require.True(t, ok)
	assert.Equal(t, models.MethodGet, cfg.Method)
	assert.Empty(t, cfg.URL)
	assert.Len(t, store.Nodes(), 3)
}

func TestStore_UpdateNode(t *testing.T) {
	t.Parallel()

	store := workflow.NewStore(testutil.NewFakeRemote())
	node := store.AddNode(models.NodeKindHTTP, models.Position{})

	ok, err := store.UpdateNode(node.ID, map[string]any{
		"url":     "https://example.com",
		"headers": map[string]string{"Authorization": "Bearer x"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateNode(node.ID, map[string]any{"method": "POST"})
	require.NoError(t, err)
	assert.True(t, ok)

	cfg, _ := store.Nodes()[0].HTTP()
	assert.Equal(t, "https://example.com", cfg.URL)
	assert.Equal(t, "POST", cfg.Method)
	assert.Equal(t, map[string]string{"Authorization": "Bearer x"}, cfg.Headers)

	ok, err = store.UpdateNode("missing", map[string]any{"url": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateNode(node.ID, map[string]any{"url": 42})
	require.Error(t, err)
	assert.True(t, ok)

	cfg, _ = store.Nodes()[0].HTTP()
	assert.Equal(t, "https://example.com", cfg.URL)
}

func TestStore_DeleteNodeCascadesOnlyTouchingEdges(t *testing.T) {
	t.Parallel()

	store := workflow.NewStore(testutil.NewFakeRemote(), workflow.WithClock(fixedClock(1)))

	a := store.AddNode(models.NodeKindStart, models.Position{})
	b := store.AddNode(models.NodeKindCode, models.Position{})
	c := store.AddNode(models.NodeKindCode, models.Position{})
	d := store.AddNode(models.NodeKindOutput, models.Position{})

	store.AddEdge(a.ID, b.ID)
	store.AddEdge(b.ID, c.ID)
	store.AddEdge(c.ID, b.ID)
	store.AddEdge(a.ID, c.ID)
	store.AddEdge(c.ID, d.ID)

	assert.True(t, store.DeleteNode(b.ID))
	assert.False(t, store.DeleteNode(b.ID))

	assert.Equal(t, []models.Edge{
		{ID: models.EdgeID(a.ID, c.ID), Source: a.ID, Target: c.ID},
		{ID: models.EdgeID(c.ID, d.ID), Source: c.ID, Target: d.ID},
	}, store.Edges())

	for _, n := range store.Nodes() {
		assert.NotEqual(t, b.ID, n.ID)
	}
}

func TestStore_AddEdgeIsIdempotentAndAllowsSelfLoops(t *testing.T) {
	t.Parallel()

	store := workflow.NewStore(testutil.NewFakeRemote())

	first := store.AddEdge("a", "b")
	second := store.AddEdge("a", "b")
	loop := store.AddEdge("c", "c")

	assert.Equal(t, first, second)
	assert.Equal(t, "c-c", loop.ID)
	assert.Len(t, store.Edges(), 2)

	assert.True(t, store.DeleteEdge("a-b"))
	assert.False(t, store.DeleteEdge("a-b"))
	assert.Len(t, store.Edges(), 1)
}

func TestStore_CanvasContractCopies(t *testing.T) {
	t.Parallel()

	store := workflow.NewStore(testutil.NewFakeRemote())
	store.SetNodes([]models.Node{testutil.StartNode("s"), testutil.OutputNode("o")})
	store.SetEdges([]models.Edge{testutil.Edge("s", "o")})

	nodes := store.Nodes()
	nodes[0].ID = "mutated"

	assert.Equal(t, "s", store.Nodes()[0].ID)

	store.SetNodes([]models.Node{testutil.StartNode("s")})
	assert.Empty(t, store.Edges())

	assert.True(t, store.MoveNode("s", models.Position{X: 5, Y: 6}))
	assert.Equal(t, models.Position{X: 5, Y: 6}, store.Nodes()[0].Position)
	assert.False(t, store.MoveNode("missing", models.Position{}))
}

func TestStore_SaveInvalidNeverContactsRemote(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	store.AddNode(models.NodeKindStart, models.Position{})

	id, err := store.Save(t.Context(), "Broken")

	require.Error(t, err)
	assert.Empty(t, id)
	assert.ErrorIs(t, err, dag.ErrInvalidWorkflow)

	var verr *dag.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "Workflow must have at least one output node")

	client.AssertNotCalled(t, "CreateWorkflow", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "UpdateWorkflow", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, store.Nodes(), 1)
}

func TestStore_SaveCreatesThenUpdates(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	store := workflow.NewStore(fake)
	buildLinear(t, store)

	id, err := store.Save(t.Context(), "Flow")
	require.NoError(t, err)
	assert.Equal(t, id, store.ID())
	assert.Equal(t, 1, store.Version())
	assert.Equal(t, "Flow", store.Name())
	assert.Equal(t, 1, fake.Calls("CreateWorkflow"))

	again, err := store.Save(t.Context(), "Flow renamed")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 2, store.Version())
	assert.Equal(t, 1, fake.Calls("UpdateWorkflow"))
	assert.NoError(t, store.Err())
}

func TestStore_SaveSendsNormalizedGraph(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	store.SetNodes([]models.Node{
		testutil.StartNode("s"),
		testutil.HTTPNode("h", "https://example.com", ""),
		testutil.OutputNode("o"),
	})
	store.SetEdges([]models.Edge{testutil.Edge("s", "h"), testutil.Edge("h", "o")})

	client.On("CreateWorkflow", mock.Anything, mock.MatchedBy(func(w *models.Workflow) bool {
		cfg, ok := w.Nodes[1].HTTP()

		return ok && cfg.Method == models.MethodGet && w.Name == "Flow"
	})).Return(&models.Workflow{ID: "wf-9", Version: 1}, nil).Once()

	id, err := store.Save(t.Context(), "Flow")
	require.NoError(t, err)
	assert.Equal(t, "wf-9", id)

	cfg, _ := store.Nodes()[1].HTTP()
	assert.Empty(t, cfg.Method)
	client.AssertExpectations(t)
}

func TestStore_SaveRemoteFailureKeepsEdits(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	buildLinear(t, store)

	client.On("CreateWorkflow", mock.Anything, mock.Anything).
		Return(nil, remote.NewNoResponseError("CreateWorkflow", errors.New("dial tcp: refused"))).Once()

	_, err := store.Save(t.Context(), "Flow")
	require.Error(t, err)

	assert.True(t, remote.IsNoResponse(err))
	assert.True(t, remote.IsNoResponse(store.Err()))
	assert.Empty(t, store.ID())
	assert.Len(t, store.Nodes(), 3)
	assert.Len(t, store.Edges(), 2)
}

func TestStore_StaleSaveResponseIsDiscarded(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	buildLinear(t, store)

	release := make(chan struct{})
	started := make(chan struct{})

	client.On("CreateWorkflow", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&models.Workflow{ID: "old", Version: 1}, nil).Once()
	client.On("CreateWorkflow", mock.Anything, mock.Anything).
		Return(&models.Workflow{ID: "new", Version: 1}, nil).Once()

	errCh := make(chan error, 1)

	go func() {
		_, err := store.Save(context.Background(), "Flow")
		errCh <- err
	}()

	<-started

	id, err := store.Save(t.Context(), "Flow")
	require.NoError(t, err)
	assert.Equal(t, "new", id)

	close(release)

	assert.ErrorIs(t, <-errCh, workflow.ErrSuperseded)
	assert.Equal(t, "new", store.ID())
}

func TestStore_LoadAdoptsWorkflow(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	id := fake.Put(testutil.LinearWorkflow("https://example.com", testutil.WithName("Remote")))

	store := workflow.NewStore(fake)
	store.AddNode(models.NodeKindCode, models.Position{})

	wf, err := store.Load(t.Context(), id)
	require.NoError(t, err)

	assert.Equal(t, "Remote", wf.Name)
	assert.Equal(t, id, store.ID())
	assert.Equal(t, "Remote", store.Name())
	assert.Equal(t, 1, store.Version())
	assert.Len(t, store.Nodes(), 3)
	assert.False(t, store.Loading())
}

func TestStore_LoadFailurePreservesState(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	buildLinear(t, store)

	before := store.Fingerprint("x")

	client.On("GetWorkflow", mock.Anything, "wf-1").
		Return(nil, &remote.ParseError{Op: "GetWorkflow", Field: "dag_json", Err: errors.New("unexpected end of JSON input")}).Once()

	_, err := store.Load(t.Context(), "wf-1")
	require.Error(t, err)

	assert.True(t, remote.IsParseError(err))
	assert.True(t, remote.IsParseError(store.Err()))
	assert.Equal(t, before, store.Fingerprint("x"))
	assert.Empty(t, store.ID())
}

func TestStore_LoadInvalidatesInFlightSave(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	store := workflow.NewStore(client)
	buildLinear(t, store)

	release := make(chan struct{})
	started := make(chan struct{})

	client.On("CreateWorkflow", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&models.Workflow{ID: "from-save", Version: 1}, nil).Once()
	client.On("GetWorkflow", mock.Anything, "other").
		Return(testutil.LinearWorkflow("https://other.example", testutil.WithID("other")), nil).Once()

	errCh := make(chan error, 1)

	go func() {
		_, err := store.Save(context.Background(), "Flow")
		errCh <- err
	}()

	<-started

	_, err := store.Load(t.Context(), "other")
	require.NoError(t, err)

	close(release)

	assert.ErrorIs(t, <-errCh, workflow.ErrSuperseded)
	assert.Equal(t, "other", store.ID())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	store := workflow.NewStore(fake)
	buildLinear(t, store)

	nodes := store.Nodes()
	edges := store.Edges()

	id, err := store.Save(t.Context(), "Round trip")
	require.NoError(t, err)

	other := workflow.NewStore(fake)
	_, err = other.Load(t.Context(), id)
	require.NoError(t, err)

	assert.ElementsMatch(t, nodes, other.Nodes())
	assert.ElementsMatch(t, edges, other.Edges())
	assert.Equal(t,
		workflow.Fingerprint("Round trip", nodes, edges),
		other.Fingerprint(other.Name()))
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	id := fake.Put(testutil.LinearWorkflow("https://example.com"))

	store := workflow.NewStore(fake)
	_, err := store.Load(t.Context(), id)
	require.NoError(t, err)

	_, err = store.LoadVersions(t.Context(), id)
	require.NoError(t, err)

	store.Reset()

	assert.Empty(t, store.ID())
	assert.Empty(t, store.Nodes())
	assert.Empty(t, store.Edges())
	assert.Nil(t, store.Versions())
	assert.Zero(t, store.Version())
}

func TestStore_VersionsAndRestore(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	store := workflow.NewStore(fake)
	_, httpID, _ := buildLinear(t, store)

	id, err := store.Save(t.Context(), "v1")
	require.NoError(t, err)

	_, err = store.UpdateNode(httpID, map[string]any{"url": "https://changed.example"})
	require.NoError(t, err)

	_, err = store.Save(t.Context(), "v2")
	require.NoError(t, err)

	list, err := store.LoadVersions(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, list.CurrentVersion)
	assert.Equal(t, 2, list.Total)

	old, err := store.LoadVersion(t.Context(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", old.Name)

	cfg, _ := store.Nodes()[1].HTTP()
	assert.Equal(t, "https://changed.example", cfg.URL)

	restored, err := store.RestoreVersion(t.Context(), id, 1)
	require.NoError(t, err)

	assert.Equal(t, "v1", restored.Name)
	assert.Equal(t, 3, store.Version())
	assert.Equal(t, 3, store.Versions().CurrentVersion)

	cfg, _ = store.Nodes()[1].HTTP()
	assert.Equal(t, "https://example.com", cfg.URL)
}

func TestStore_RestoreFailureKeepsGraph(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	store := workflow.NewStore(fake)
	buildLinear(t, store)

	id, err := store.Save(t.Context(), "Flow")
	require.NoError(t, err)

	before := store.Fingerprint("Flow")

	_, err = store.RestoreVersion(t.Context(), id, 42)
	require.Error(t, err)

	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, before, store.Fingerprint("Flow"))
}
