// Package sessionstate persists editor session state between CLI invocations:
// the per-workflow canvas viewports and the unsaved draft.
package sessionstate

import (
	"context"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
)

// Draft is an unsaved workflow kept across sessions.
type Draft struct {
	Name    string        `json:"name"`
	Nodes   []models.Node `json:"nodes"`
	Edges   []models.Edge `json:"edges"`
	SavedAt time.Time     `json:"saved_at"`
}

// Store keeps session state. Loading state that was never saved is not an
// error: LoadViewports returns an empty map and LoadDraft returns nil.
type Store interface {
	LoadViewports(ctx context.Context) (map[string]models.Viewport, error)
	SaveViewports(ctx context.Context, viewports map[string]models.Viewport) error
	LoadDraft(ctx context.Context) (*Draft, error)
	// SaveDraft stores draft, or removes the stored one when draft is nil.
	SaveDraft(ctx context.Context, draft *Draft) error
	Close() error
}
