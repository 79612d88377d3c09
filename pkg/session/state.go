package session

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dukex/dagstudio/pkg/sessionstate"
)

// Persist saves the viewports and, while in draft mode, the unsaved draft.
func (c *Controller) Persist(ctx context.Context) error {
	if c.state == nil {
		return nil
	}

	if err := c.state.SaveViewports(ctx, c.Viewports()); err != nil {
		return fmt.Errorf("failed to persist viewports: %w", err)
	}

	var draft *sessionstate.Draft

	if c.Mode() == ModeDraft {
		nodes, edges := c.store.Nodes(), c.store.Edges()
		if len(nodes) > 0 || c.HasUnsavedChanges() {
			draft = &sessionstate.Draft{
				Name:    c.WorkflowName(),
				Nodes:   nodes,
				Edges:   edges,
				SavedAt: time.Now().UTC(),
			}
		}
	}

	if err := c.state.SaveDraft(ctx, draft); err != nil {
		return fmt.Errorf("failed to persist draft: %w", err)
	}

	return nil
}

// Restore loads the viewports and, when the session is an empty draft, the
// stored draft. It reports whether a draft was restored.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	if c.state == nil {
		return false, nil
	}

	viewports, err := c.state.LoadViewports(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to restore viewports: %w", err)
	}

	c.mu.Lock()
	maps.Copy(c.viewports, viewports)
	c.mu.Unlock()

	draft, err := c.state.LoadDraft(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to restore draft: %w", err)
	}

	if draft == nil || c.Mode() != ModeDraft || len(c.store.Nodes()) > 0 {
		return false, nil
	}

	c.store.SetNodes(draft.Nodes)
	c.store.SetEdges(draft.Edges)

	c.mu.Lock()
	defer c.mu.Unlock()

	if draft.Name != "" {
		c.name = draft.Name
		c.nameDirty = draft.Name != DefaultWorkflowName
	}

	c.logger.InfoContext(ctx, "Restored unsaved draft", "name", c.name, "nodes", len(draft.Nodes))

	return true, nil
}
