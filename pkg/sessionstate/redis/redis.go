// Package redis stores session state in Redis, so several terminals share it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/sessionstate"
	"github.com/redis/go-redis/v9"
)

var _ sessionstate.Store = (*Store)(nil)

const defaultPrefix = "dagstudio:session:"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix namespaces every key, e.g. per user.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store keeps viewports in a hash (field per workflow key) and the draft as
// a JSON string.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
	owned  bool
}

// New wraps an existing client. The caller owns the client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), prefix: defaultPrefix}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Open connects to the redis:// URL and verifies the connection. Close
// releases the client.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := New(client, opts...)
	s.owned = true

	return s, nil
}

func (s *Store) viewportsKey() string { return s.prefix + "viewports" }
func (s *Store) draftKey() string     { return s.prefix + "draft" }

func (s *Store) LoadViewports(ctx context.Context) (map[string]models.Viewport, error) {
	fields, err := s.client.HGetAll(ctx, s.viewportsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load viewports: %w", err)
	}

	viewports := make(map[string]models.Viewport, len(fields))

	for key, raw := range fields {
		var vp models.Viewport
		if err := json.Unmarshal([]byte(raw), &vp); err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed viewport", "workflow_key", key, "error", err)

			continue
		}

		viewports[key] = vp
	}

	return viewports, nil
}

func (s *Store) SaveViewports(ctx context.Context, viewports map[string]models.Viewport) error {
	values := make(map[string]any, len(viewports))

	for key, vp := range viewports {
		data, err := json.Marshal(vp)
		if err != nil {
			return fmt.Errorf("failed to encode viewport %s: %w", key, err)
		}

		values[key] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.viewportsKey())

		if len(values) > 0 {
			pipe.HSet(ctx, s.viewportsKey(), values)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save viewports: %w", err)
	}

	return nil
}

func (s *Store) LoadDraft(ctx context.Context) (*sessionstate.Draft, error) {
	data, err := s.client.Get(ctx, s.draftKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var draft sessionstate.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}

	return &draft, nil
}

func (s *Store) SaveDraft(ctx context.Context, draft *sessionstate.Draft) error {
	if draft == nil {
		if err := s.client.Del(ctx, s.draftKey()).Err(); err != nil {
			return fmt.Errorf("failed to remove draft: %w", err)
		}

		return nil
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	if err := s.client.Set(ctx, s.draftKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	return nil
}

// Close releases the client when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.client.Close()
}
