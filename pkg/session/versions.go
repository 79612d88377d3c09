package session

import (
	"context"
	"errors"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/workflow"
)

// RefreshVersions reloads the version history of the open workflow.
func (c *Controller) RefreshVersions(ctx context.Context) (*models.VersionList, error) {
	id := c.store.ID()
	if id == "" {
		return nil, ErrNoWorkflow
	}

	list, err := c.store.LoadVersions(ctx, id)
	if err != nil {
		if !errors.Is(err, workflow.ErrSuperseded) {
			c.setError("Failed to load versions: " + remote.Message(err))
		}

		return nil, err
	}

	return list, nil
}

// Versions returns the cached version history, or nil before the first refresh.
func (c *Controller) Versions() *models.VersionList {
	return c.store.Versions()
}

// ViewVersion shows version n of the open workflow read-only. The edited
// graph is kept and comes back with BackToCurrentVersion.
func (c *Controller) ViewVersion(ctx context.Context, n int) error {
	id := c.store.ID()
	if id == "" {
		return ErrNoWorkflow
	}

	version, err := c.store.LoadVersion(ctx, id, n)
	if err != nil {
		c.setError("Failed to view version: " + remote.Message(err))

		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.ID() != id {
		return workflow.ErrSuperseded
	}

	c.viewing = version

	return nil
}

// ViewingVersion returns the number of the version on display, or 0.
func (c *Controller) ViewingVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viewing == nil {
		return 0
	}

	return c.viewing.VersionNumber
}

// BackToCurrentVersion leaves version viewing.
func (c *Controller) BackToCurrentVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.viewing = nil
}

// DisplayGraph returns the graph to render: the viewed version while one is
// shown, the edited workflow otherwise.
func (c *Controller) DisplayGraph() ([]models.Node, []models.Edge) {
	c.mu.Lock()
	viewing := c.viewing
	c.mu.Unlock()

	if viewing != nil {
		return models.CloneNodes(viewing.Nodes), models.CloneEdges(viewing.Edges)
	}

	return c.store.Nodes(), c.store.Edges()
}

// RestoreVersion makes version n the current state of the open workflow and
// returns to editing. A renamed but unsaved name survives the restore.
func (c *Controller) RestoreVersion(ctx context.Context, n int) error {
	id := c.store.ID()
	if id == "" {
		return ErrNoWorkflow
	}

	wf, err := c.store.RestoreVersion(ctx, id, n)
	if err != nil {
		if !errors.Is(err, workflow.ErrSuperseded) {
			c.setError("Failed to restore version: " + remote.Message(err))
		}

		return err
	}

	nodes, edges := c.store.Nodes(), c.store.Edges()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.nameDirty {
		c.name = wf.Name
	}

	c.baseline = workflow.Fingerprint(wf.Name, nodes, edges)
	c.viewing = nil
	c.lastErr = ""

	return nil
}
