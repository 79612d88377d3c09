package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/dagstudio/pkg/cmd"
	"github.com/dukex/dagstudio/pkg/config"
	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/log"
	"github.com/dukex/dagstudio/pkg/otelhelper"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/session"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultAPIURL  = "http://localhost:9091"
	tracingService = "dagstudio"
)

// settings are the global flags, with the config file filling in unset ones.
type settings struct {
	apiURL       string
	stateURL     string
	logLevel     string
	pollInterval time.Duration
	historyLimit int
	tracing      bool
	assumeYes    bool
}

func resolveSettings(command *cli.Command) (settings, error) {
	cfg, err := config.LoadCLIConfig(command.String("config"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		apiURL:       command.String("api-url"),
		stateURL:     command.String("state-url"),
		logLevel:     command.String("log-level"),
		pollInterval: command.Duration("poll-interval"),
		historyLimit: command.Int("history-limit"),
		tracing:      command.Bool("tracing"),
		assumeYes:    command.Bool("yes"),
	}

	if !command.IsSet("api-url") && cfg.APIURL != "" {
		s.apiURL = cfg.APIURL
	}

	if !command.IsSet("state-url") && cfg.StateURL != "" {
		s.stateURL = cfg.StateURL
	}

	if !command.IsSet("log-level") && cfg.LogLevel != "" {
		s.logLevel = cfg.LogLevel
	}

	if !command.IsSet("poll-interval") && cfg.PollInterval > 0 {
		s.pollInterval = cfg.PollInterval
	}

	if !command.IsSet("history-limit") && cfg.HistoryLimit > 0 {
		s.historyLimit = cfg.HistoryLimit
	}

	if !command.IsSet("tracing") && cfg.Tracing {
		s.tracing = true
	}

	return s, nil
}

// app is one CLI invocation: a session controller over the remote API.
type app struct {
	logger     *slog.Logger
	out        io.Writer
	client     remote.Client
	poller     *execution.Poller
	controller *session.Controller
	shutdown   func(context.Context) error
}

func newApp(ctx context.Context, command *cli.Command, s settings) (*app, error) {
	log.Setup(s.logLevel)

	logger := log.WithModule("cli")
	a := &app{logger: logger, out: command.Root().Writer}

	clientOpts := []remote.Option{remote.WithLogger(logger)}

	if s.tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, tracingService)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}

		a.shutdown = shutdown
		clientOpts = append(clientOpts, remote.WithTracer(tracer))
	}

	a.client = remote.NewHTTPClient(s.apiURL, clientOpts...)
	a.poller = execution.NewPoller(a.client,
		execution.WithInterval(s.pollInterval),
		execution.WithLogger(logger.With("component", "poller")))

	state, err := cmd.NewSessionState(ctx, logger, s.stateURL)
	if err != nil {
		return nil, errors.Join(err, a.shutdownTracing(ctx))
	}

	opts := []session.Option{
		session.WithPoller(a.poller),
		session.WithLogger(logger),
		session.WithHistoryLimit(s.historyLimit),
		session.WithConfirmer(promptConfirmer(command.Root().Reader, a.out, s.assumeYes)),
	}

	if state != nil {
		opts = append(opts, session.WithSessionState(state))
	}

	a.controller = session.New(a.client, opts...)

	if _, err := a.controller.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "Failed to restore session state", "error", err)
	}

	return a, nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.controller.Close(ctx), a.shutdownTracing(ctx))
}

func (a *app) shutdownTracing(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}

	return a.shutdown(ctx)
}

// promptConfirmer asks on in before unsaved changes are discarded.
func promptConfirmer(in io.Reader, out io.Writer, assumeYes bool) session.ConfirmFunc {
	return func(_ context.Context, message string) bool {
		if assumeYes {
			return true
		}

		_, _ = fmt.Fprintf(out, "%s [y/N] ", message)

		line, _ := bufio.NewReader(in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))

		return answer == "y" || answer == "yes"
	}
}

// waitForExecution blocks until the tracked execution reaches a terminal state.
func (a *app) waitForExecution(ctx context.Context) (execution.Snapshot, error) {
	done := make(chan execution.Snapshot, 1)

	unsubscribe := a.poller.Subscribe(func(s execution.Snapshot) {
		if isTerminal(s.State) {
			select {
			case done <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if s := a.poller.Snapshot(); isTerminal(s.State) {
		return s, nil
	}

	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return a.poller.Snapshot(), ctx.Err()
	}
}

func isTerminal(state execution.State) bool {
	return state == execution.StateCompleted || state == execution.StateFailed
}
