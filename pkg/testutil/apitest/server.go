// Package apitest serves the full dagstudio API, dry-run executor included,
// behind an httptest server.
package apitest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/dagstudio/pkg/channels/gochannel"
	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/executor"
	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/persistence/file"
	"github.com/dukex/dagstudio/pkg/services"
	"github.com/dukex/dagstudio/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/stretchr/testify/require"
)

// Server is a running API. Persistence is exposed for direct assertions.
type Server struct {
	URL         string
	Persistence persistence.Persistence
}

// NewServer starts the API on file persistence under a temp dir. Everything
// is torn down with the test.
func NewServer(t *testing.T) *Server {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	store := file.NewPersistence(t.TempDir())
	executions := services.NewExecution(store, bus)

	require.NoError(t, executor.New(store, executions, bus, nil).Register(bus))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(store),
		executions,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app.Group("/api/v1"))

	server := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(server.Close)

	return &Server{URL: server.URL, Persistence: store}
}
