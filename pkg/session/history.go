package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/workflow"
)

// History is a page-accumulating view of the saved workflows.
type History struct {
	Items       []models.WorkflowSummary
	Total       int
	Limit       int
	Offset      int
	Search      string
	Loading     bool
	LoadingMore bool
	Err         string
}

// HasMore reports whether more items exist past the loaded ones.
func (h History) HasMore() bool {
	return len(h.Items) < h.Total
}

// History returns a copy of the history listing.
func (c *Controller) History() History {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history
	h.Items = slices.Clone(c.history.Items)

	return h
}

// HasMoreHistory reports whether LoadMoreHistory would fetch anything.
func (c *Controller) HasMoreHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.history.HasMore()
}

// SetHistorySearch filters the history by name and reloads it from the first page.
func (c *Controller) SetHistorySearch(ctx context.Context, search string) error {
	c.mu.Lock()
	c.history.Search = search
	c.mu.Unlock()

	return c.RefreshHistory(ctx)
}

// RefreshHistory reloads the first page, replacing the loaded items. It
// supersedes any in-flight refresh or load-more.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	c.mu.Lock()
	c.historyGen++
	gen := c.historyGen
	c.history.Loading = true
	c.history.LoadingMore = false
	c.history.Err = ""
	opts := models.ListOptions{Limit: c.history.Limit, Offset: 0, Search: c.history.Search}
	c.mu.Unlock()

	list, err := c.client.ListWorkflows(ctx, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.historyGen {
		return workflow.ErrSuperseded
	}

	c.history.Loading = false

	if err != nil {
		c.history.Err = remote.Message(err)

		return fmt.Errorf("failed to load workflow history: %w", err)
	}

	c.history.Items = slices.Clone(list.Items)
	c.applyPageLocked(list, 0)

	return nil
}

// LoadMoreHistory appends the next page. It does nothing when everything is
// loaded or another page is already being fetched.
func (c *Controller) LoadMoreHistory(ctx context.Context) error {
	c.mu.Lock()

	if c.history.LoadingMore || c.history.Loading || !c.history.HasMore() {
		c.mu.Unlock()

		return nil
	}

	gen := c.historyGen
	offset := len(c.history.Items)
	c.history.LoadingMore = true
	c.history.Err = ""
	opts := models.ListOptions{Limit: c.history.Limit, Offset: offset, Search: c.history.Search}
	c.mu.Unlock()

	list, err := c.client.ListWorkflows(ctx, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.historyGen {
		return workflow.ErrSuperseded
	}

	c.history.LoadingMore = false

	if err != nil {
		c.history.Err = remote.Message(err)

		return fmt.Errorf("failed to load more workflow history: %w", err)
	}

	c.history.Items = append(c.history.Items, list.Items...)
	c.applyPageLocked(list, offset)

	return nil
}

func (c *Controller) applyPageLocked(list *models.WorkflowList, offset int) {
	c.history.Total = list.Total

	if list.Limit > 0 {
		c.history.Limit = list.Limit
	}

	c.history.Offset = offset
	if list.Offset > 0 {
		c.history.Offset = list.Offset
	}
}
