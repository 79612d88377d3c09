package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dagstudio/pkg/sessionstate"
	"github.com/dukex/dagstudio/pkg/sessionstate/file"
	"github.com/dukex/dagstudio/pkg/sessionstate/redis"
)

// NewSessionState opens the session state store named by url. An empty url
// disables session state and returns a nil store.
func NewSessionState(ctx context.Context, logger *slog.Logger, url string) (sessionstate.Store, error) {
	if url == "" {
		return nil, nil
	}

	switch provider := parseProvider(url); provider {
	case "redis", "rediss":
		store, err := redis.Open(ctx, url, redis.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		return store, nil
	case "file":
		return file.NewStore(url), nil
	default:
		return nil, fmt.Errorf("%w: session state %q", ErrUnsupportedProvider, provider)
	}
}
