package file_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/persistence/file"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_HealthCheckCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	p := file.NewPersistence("file://" + root)

	require.NoError(t, p.HealthCheck(t.Context()))
	assert.DirExists(t, root)
	assert.NoError(t, p.Close(t.Context()))
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()

	wf := testutil.LinearWorkflow("https://example.com", testutil.WithID("wf-1"), testutil.WithName("Orders"))
	require.NoError(t, repo.Save(t.Context(), wf))
	assert.False(t, wf.CreatedAt.IsZero())
	assert.Equal(t, wf.CreatedAt, wf.UpdatedAt)

	got, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Orders", got.Name)
	assert.Len(t, got.Nodes, 3)
	assert.Len(t, got.Edges, 2)

	httpCfg, ok := got.Nodes[1].HTTP()
	require.True(t, ok)
	assert.Equal(t, "https://example.com", httpCfg.URL)
}

func TestWorkflowRepository_GetByIDNotFound(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()

	_, err := repo.GetByID(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	_, err = repo.GetByID(t.Context(), "../escape")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestWorkflowRepository_ListSearchAndPaging(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"Billing sync", "Orders", "billing report", "Users"} {
		wf := testutil.LinearWorkflow("https://example.com",
			testutil.WithID(name), testutil.WithName(name))
		wf.CreatedAt = base
		wf.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Save(t.Context(), wf))
	}

	all, err := repo.List(t.Context(), persistence.ListWorkflowsOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalCount)
	assert.Equal(t, "Users", all.Workflows[0].Name)

	page, err := repo.List(t.Context(), persistence.ListWorkflowsOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
	require.Len(t, page.Workflows, 2)
	assert.Equal(t, "billing report", page.Workflows[0].Name)
	assert.Equal(t, "Orders", page.Workflows[1].Name)

	found, err := repo.List(t.Context(), persistence.ListWorkflowsOptions{Search: "BILLING"})
	require.NoError(t, err)
	assert.Equal(t, 2, found.TotalCount)

	past, err := repo.List(t.Context(), persistence.ListWorkflowsOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past.Workflows)
	assert.Equal(t, 4, past.TotalCount)
}

func TestWorkflowRepository_Versions(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()

	for n := 1; n <= 3; n++ {
		require.NoError(t, repo.SaveVersion(t.Context(), &models.WorkflowVersion{
			ID:            fmt.Sprintf("v%d", n),
			WorkflowID:    "wf-1",
			VersionNumber: n,
			Name:          "Orders",
			Nodes:         []models.Node{testutil.StartNode("start")},
			Edges:         []models.Edge{},
		}))
	}

	versions, err := repo.Versions(t.Context(), "wf-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.Equal(t, 1, versions[2].VersionNumber)

	v2, err := repo.Version(t.Context(), "wf-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.ID)
	require.Len(t, v2.Nodes, 1)
	assert.Equal(t, models.NodeKindStart, v2.Nodes[0].Kind)

	_, err = repo.Version(t.Context(), "wf-1", 9)
	require.ErrorIs(t, err, persistence.ErrVersionNotFound)

	none, err := repo.Versions(t.Context(), "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExecutionRepository(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	latest, err := repo.LatestByWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Save(t.Context(), &models.Execution{
		ID: "e1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: base,
	}))
	require.NoError(t, repo.Save(t.Context(), &models.Execution{
		ID: "e2", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: base.Add(time.Minute),
	}))
	require.NoError(t, repo.Save(t.Context(), &models.Execution{
		ID: "e3", WorkflowID: "wf-2", Status: models.ExecutionStatusPending, StartedAt: base.Add(time.Hour),
	}))

	got, err := repo.GetByID(t.Context(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)

	latest, err = repo.LatestByWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "e2", latest.ID)

	listed, err := repo.ListByWorkflow(t.Context(), "wf-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "e2", listed[0].ID)
	assert.Equal(t, "e1", listed[1].ID)

	second, err := repo.ListByWorkflow(t.Context(), "wf-1", 1, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "e1", second[0].ID)

	_, err = repo.GetByID(t.Context(), "nope")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}
