package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

var (
	errInvalidWorkflow = errors.New("workflow is invalid")
	errExecutionFailed = errors.New("execution failed")
	errCancelled       = errors.New("cancelled")
)

// commands holds the app built by the root Before hook.
type commands struct {
	app *app
}

func (c *commands) validate() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow file against the DAG rules without saving it",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, command *cli.Command) error {
			path, err := requireArg(command, 0, "file")
			if err != nil {
				return err
			}

			wf, err := readWorkflowFile(path)
			if err != nil {
				return err
			}

			out := c.app.out
			result := dag.Validate(wf)

			if !result.Valid {
				for _, msg := range result.Errors {
					_, _ = fmt.Fprintf(out, "- %s\n", msg)
				}

				return errInvalidWorkflow
			}

			_, err = fmt.Fprintf(out, "Workflow is valid (%d nodes, %d edges)\n", len(wf.Nodes), len(wf.Edges))

			return err
		},
	}
}

func idFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "id",
		Usage: "Saved workflow to update; defaults to the id in the file",
	}
}

func (c *commands) save() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Validate a workflow file and create or update it",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{idFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			path, err := requireArg(command, 0, "file")
			if err != nil {
				return err
			}

			if err := c.openFile(ctx, path, command.String("id")); err != nil {
				return err
			}

			id, err := c.app.controller.Save(ctx)
			if err != nil {
				return c.describeSaveError(err)
			}

			_, err = fmt.Fprintf(c.app.out, "Saved workflow %s (version %d)\n", id, c.app.controller.Store().Version())

			return err
		},
	}
}

func (c *commands) run() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Save and run a workflow file, or run a saved workflow with --id, and wait for the result",
		ArgsUsage: "[file]",
		Flags:     []cli.Flag{idFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			controller := c.app.controller

			var (
				execID string
				err    error
			)

			if path := command.Args().First(); path != "" {
				if err := c.openFile(ctx, path, command.String("id")); err != nil {
					return err
				}

				execID, err = controller.Run(ctx)
			} else {
				id := command.String("id")
				if id == "" {
					return errors.New("a workflow file or --id is required")
				}

				execID, err = controller.RunFromHistory(ctx, id)
			}

			if err != nil {
				return c.describeSaveError(err)
			}

			c.app.logger.InfoContext(ctx, "Waiting for execution", "execution_id", execID)

			snapshot, err := c.app.waitForExecution(ctx)
			if err != nil {
				return err
			}

			return c.report(snapshot)
		},
	}
}

func (c *commands) history() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List saved workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "search",
				Usage: "Only show workflows whose name contains this text",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Load every page instead of the first one",
			},
			&cli.StringFlag{
				Name:  "watch",
				Usage: "Refresh the listing on a cron schedule, e.g. \"@every 30s\"",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			list := func(ctx context.Context) error {
				return c.listHistory(ctx, command.String("search"), command.Bool("all"))
			}

			spec := command.String("watch")
			if spec == "" {
				return list(ctx)
			}

			schedule, err := cron.ParseStandard(spec)
			if err != nil {
				return fmt.Errorf("invalid --watch schedule %q: %w", spec, err)
			}

			if err := list(ctx); err != nil {
				return err
			}

			scheduler := cron.New()
			scheduler.Schedule(schedule, cron.FuncJob(func() {
				if err := list(ctx); err != nil {
					c.app.logger.ErrorContext(ctx, "Failed to refresh history", "error", err)
				}
			}))

			scheduler.Start()
			<-ctx.Done()
			<-scheduler.Stop().Done()

			return nil
		},
	}
}

func (c *commands) listHistory(ctx context.Context, search string, all bool) error {
	controller := c.app.controller

	if err := controller.SetHistorySearch(ctx, search); err != nil {
		return err
	}

	for all && controller.HasMoreHistory() {
		if err := controller.LoadMoreHistory(ctx); err != nil {
			return err
		}
	}

	return printHistory(c.app.out, controller.History())
}

func (c *commands) versions() *cli.Command {
	return &cli.Command{
		Name:      "versions",
		Usage:     "List the versions of a saved workflow",
		ArgsUsage: "<workflow-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := requireArg(command, 0, "workflow-id")
			if err != nil {
				return err
			}

			if err := c.edit(ctx, id); err != nil {
				return err
			}

			list, err := c.app.controller.RefreshVersions(ctx)
			if err != nil {
				return err
			}

			return printVersions(c.app.out, list)
		},
	}
}

func (c *commands) showVersion() *cli.Command {
	return &cli.Command{
		Name:      "show-version",
		Usage:     "Print the graph of one version of a saved workflow",
		ArgsUsage: "<workflow-id> <version>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, n, err := versionArgs(command)
			if err != nil {
				return err
			}

			if err := c.edit(ctx, id); err != nil {
				return err
			}

			if err := c.app.controller.ViewVersion(ctx, n); err != nil {
				return err
			}

			nodes, edges := c.app.controller.DisplayGraph()

			return printJSON(c.app.out, struct {
				WorkflowID    string        `json:"workflowId"`
				VersionNumber int           `json:"versionNumber"`
				Nodes         []models.Node `json:"nodes"`
				Edges         []models.Edge `json:"edges"`
			}{id, n, nodes, edges})
		},
	}
}

func (c *commands) restore() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Make a past version the current state of a saved workflow",
		ArgsUsage: "<workflow-id> <version>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, n, err := versionArgs(command)
			if err != nil {
				return err
			}

			if err := c.edit(ctx, id); err != nil {
				return err
			}

			if err := c.app.controller.RestoreVersion(ctx, n); err != nil {
				return err
			}

			_, err = fmt.Fprintf(c.app.out, "Restored version %d of %s as version %d\n",
				n, id, c.app.controller.Store().Version())

			return err
		},
	}
}

func (c *commands) execution() *cli.Command {
	return &cli.Command{
		Name:      "execution",
		Usage:     "Show the status and result of an execution",
		ArgsUsage: "<execution-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := requireArg(command, 0, "execution-id")
			if err != nil {
				return err
			}

			if err := c.app.controller.ViewExecution(ctx, id); err != nil {
				return err
			}

			return printExecution(c.app.out, c.app.controller.Execution())
		},
	}
}

// openFile loads path into the session, bound to the saved workflow id when given.
func (c *commands) openFile(ctx context.Context, path, id string) error {
	wf, err := readWorkflowFile(path)
	if err != nil {
		return err
	}

	if id == "" {
		id = wf.ID
	}

	if id != "" {
		if err := c.edit(ctx, id); err != nil {
			return err
		}
	}

	store := c.app.controller.Store()
	store.SetNodes(wf.Nodes)
	store.SetEdges(wf.Edges)

	if wf.Name != "" {
		c.app.controller.SetWorkflowName(wf.Name)
	}

	return nil
}

func (c *commands) edit(ctx context.Context, id string) error {
	ok, err := c.app.controller.EditWorkflow(ctx, id)
	if err != nil {
		return err
	}

	if !ok {
		return errCancelled
	}

	return nil
}

// describeSaveError lists validation failures before returning err.
func (c *commands) describeSaveError(err error) error {
	if errors.Is(err, dag.ErrInvalidWorkflow) {
		for _, msg := range c.app.controller.ValidationErrors() {
			_, _ = fmt.Fprintf(c.app.out, "- %s\n", msg)
		}

		return errInvalidWorkflow
	}

	return err
}

func (c *commands) report(snapshot execution.Snapshot) error {
	if err := printExecution(c.app.out, snapshot); err != nil {
		return err
	}

	if snapshot.State == execution.StateFailed {
		return fmt.Errorf("%w: %s", errExecutionFailed, snapshot.Error)
	}

	return nil
}

func requireArg(command *cli.Command, index int, name string) (string, error) {
	value := command.Args().Get(index)
	if value == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}

	return value, nil
}

func versionArgs(command *cli.Command) (string, int, error) {
	id, err := requireArg(command, 0, "workflow-id")
	if err != nil {
		return "", 0, err
	}

	raw, err := requireArg(command, 1, "version")
	if err != nil {
		return "", 0, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("version must be a positive integer, got %q", raw)
	}

	return id, n, nil
}
