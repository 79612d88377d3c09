// Package main provides the dagstudio dev API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/executor"
	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/services"
	"github.com/dukex/dagstudio/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate

	workflows  *services.Workflow
	executions *services.Execution
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		workflows:   services.NewWorkflow(persistence, services.WithLogger(logger)),
		executions:  services.NewExecution(persistence, eventBus, services.WithLogger(logger)),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflows, a.executions, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.workflows.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("dagstudio API")
	})

	app.Get("/health", handlers.HealthCheck)

	handlers.Register(app.Group("/api/v1"))

	return app
}

// StartExecutor subscribes the dry-run executor to execution requests.
func (a *API) StartExecutor(ctx context.Context) error {
	exec := executor.New(a.persistence, a.executions, a.eventBus, a.logger.With("component", "executor"))

	if err := exec.Register(a.eventBus); err != nil {
		return fmt.Errorf("failed to register executor: %w", err)
	}

	if err := a.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	return nil
}

// Start serves the API on port until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	if err := a.StartExecutor(ctx); err != nil {
		return err
	}

	app := a.App()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		DisableStartupMessage: true,
		GracefulContext:       ctx,
	})
}
