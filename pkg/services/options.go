package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type config struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a service.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(newID func() string) Option {
	return func(c *config) {
		c.newID = newID
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

func (c config) timestamp() time.Time {
	return c.now().UTC()
}
