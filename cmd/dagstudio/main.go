// Command dagstudio edits, versions and runs workflows against a dagstudio API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/session"
	cli "github.com/urfave/cli/v3"
)

func newRootCommand() *cli.Command {
	c := &commands{}

	return &cli.Command{
		Name:                  "dagstudio",
		Usage:                 "Edit, version and run DAG workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the dagstudio API",
				Value:   defaultAPIURL,
				Sources: cli.EnvVars("DAGSTUDIO_API_URL"),
			},
			&cli.StringFlag{
				Name:    "state-url",
				Usage:   "Session state store (file://<dir> or redis://...); empty disables it",
				Sources: cli.EnvVars("DAGSTUDIO_STATE_URL"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Delay between two polls of a running execution",
				Value:   execution.DefaultInterval,
				Sources: cli.EnvVars("DAGSTUDIO_POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:  "history-limit",
				Usage: "Page size of the workflow history",
				Value: session.DefaultHistoryLimit,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file with defaults for the flags above",
				Sources: cli.EnvVars("DAGSTUDIO_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("DAGSTUDIO_TRACING"),
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Discard unsaved changes without asking",
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			s, err := resolveSettings(command)
			if err != nil {
				return ctx, err
			}

			a, err := newApp(ctx, command, s)
			if err != nil {
				return ctx, err
			}

			c.app = a

			return ctx, nil
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			if c.app == nil {
				return nil
			}

			return c.app.Close(context.WithoutCancel(ctx))
		},
		Commands: []*cli.Command{
			c.validate(),
			c.save(),
			c.run(),
			c.history(),
			c.versions(),
			c.showVersion(),
			c.restore(),
			c.execution(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
