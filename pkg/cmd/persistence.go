package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/persistence/file"
	"github.com/dukex/dagstudio/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL. postgres:// and
// postgresql:// select PostgreSQL, file:// or a bare path selects JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch provider := parseProvider(databaseURL); provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	case "file":
		p := file.NewPersistence(databaseURL)
		if err := p.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("failed to open file persistence: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: persistence %q", ErrUnsupportedProvider, provider)
	}
}

func parseProvider(url string) string {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return "file"
	}

	return scheme
}
