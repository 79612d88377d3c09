// Package executor drives requested executions to a terminal status. It is a
// dry run: the graph is validated and ordered, no request is sent and no code
// is evaluated.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/events"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/otelhelper"
	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Result is stored as the execution's result_json. Body holds the JSON text
// of a Plan, the way an http node would carry a response body.
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Plan is what a dry run produces: the order nodes would run in.
type Plan struct {
	WorkflowID string     `json:"workflow_id"`
	Version    int        `json:"version"`
	Order      []string   `json:"order"`
	Nodes      []PlanStep `json:"nodes"`
}

// PlanStep describes one node of the plan.
type PlanStep struct {
	ID     string          `json:"id"`
	Kind   models.NodeKind `json:"type"`
	Method string          `json:"method,omitempty"`
	URL    string          `json:"url,omitempty"`
}

type Executor struct {
	workflows  persistence.WorkflowRepository
	executions *services.Execution
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates an executor that stores transitions through executions and
// announces them on publisher, which may be nil.
func New(
	p persistence.Persistence,
	executions *services.Execution,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		workflows:  p.WorkflowRepository(),
		executions: executions,
		publisher:  publisher,
		logger:     logger,
		tracer:     otel.Tracer("dagstudio-executor"),
	}
}

// Register subscribes the executor to execution requests.
func (e *Executor) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.ExecutionRequestedEvent, e.handleExecutionRequested)
}

func (e *Executor) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested", "type", fmt.Sprintf("%T", event))

		return nil
	}

	return e.Execute(ctx, requested)
}

// Execute runs one requested execution to COMPLETED or FAILED.
func (e *Executor) Execute(ctx context.Context, requested *events.ExecutionRequested) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.Execute",
		attribute.String(otelhelper.WorkflowIDKey, requested.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, requested.ExecutionID),
		attribute.String(otelhelper.EventIDKey, requested.ID),
	)
	defer span.End()

	logger := e.logger.With("execution_id", requested.ExecutionID, "workflow_id", requested.WorkflowID)
	logger.InfoContext(ctx, "Processing execution request")

	current, err := e.executions.FetchByID(ctx, requested.ExecutionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load execution: %w", err)
	}

	if current.Status.IsTerminal() {
		logger.InfoContext(ctx, "Skipping finished execution", "status", current.Status)

		return nil
	}

	if err := e.executions.MarkRunning(ctx, requested.ExecutionID); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	e.announce(ctx, requested, models.ExecutionStatusPending, models.ExecutionStatusRunning, "")

	plan, err := e.plan(ctx, requested)
	if err != nil {
		message := failureMessage(err)
		logger.WarnContext(ctx, "Execution failed", "error", err)

		if failErr := e.executions.Fail(ctx, requested.ExecutionID, message); failErr != nil {
			otelhelper.SetError(span, failErr)

			return fmt.Errorf("failed to store execution failure: %w", failErr)
		}

		e.announce(ctx, requested, models.ExecutionStatusRunning, models.ExecutionStatusFailed, message)

		return nil
	}

	body, err := json.Marshal(plan)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to encode plan: %w", err)
	}

	if err := e.executions.Complete(ctx, requested.ExecutionID, Result{StatusCode: 200, Body: string(body)}); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to store execution result: %w", err)
	}

	e.announce(ctx, requested, models.ExecutionStatusRunning, models.ExecutionStatusCompleted, "")
	logger.InfoContext(ctx, "Execution completed", "steps", len(plan.Order))

	return nil
}

// plan loads the requested graph, the pinned version when one is given, and orders it.
func (e *Executor) plan(ctx context.Context, requested *events.ExecutionRequested) (*Plan, error) {
	var (
		name         string
		nodes        []models.Node
		edges        []models.Edge
		versionValue = requested.WorkflowVersion
	)

	if requested.WorkflowVersion > 0 {
		version, err := e.workflows.Version(ctx, requested.WorkflowID, requested.WorkflowVersion)
		if err != nil {
			return nil, err
		}

		name, nodes, edges = version.Name, version.Nodes, version.Edges
	} else {
		wf, err := e.workflows.GetByID(ctx, requested.WorkflowID)
		if err != nil {
			return nil, err
		}

		name, nodes, edges, versionValue = wf.Name, wf.Nodes, wf.Edges, wf.Version
	}

	wf := dag.Normalize(&models.Workflow{ID: requested.WorkflowID, Name: name, Nodes: nodes, Edges: edges})

	if err := dag.Validate(wf).Err(); err != nil {
		return nil, err
	}

	order, err := dag.TopologicalSort(wf.Nodes, wf.Edges)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		WorkflowID: requested.WorkflowID,
		Version:    versionValue,
		Order:      order,
		Nodes:      make([]PlanStep, 0, len(order)),
	}

	for _, id := range order {
		node, _ := wf.NodeByID(id)
		step := PlanStep{ID: node.ID, Kind: node.Kind}

		if cfg, ok := node.HTTP(); ok {
			step.Method = cfg.Method
			step.URL = cfg.URL
		}

		plan.Nodes = append(plan.Nodes, step)
	}

	return plan, nil
}

func (e *Executor) announce(
	ctx context.Context,
	requested *events.ExecutionRequested,
	previous, status models.ExecutionStatus,
	message string,
) {
	if e.publisher == nil {
		return
	}

	event := events.ExecutionStatusChanged{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStatusChangedEvent, requested.WorkflowID),
		ExecutionID: requested.ExecutionID,
		Previous:    previous,
		Status:      status,
		Error:       message,
	}

	if err := e.publisher.Publish(ctx, requested.ExecutionID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish execution status",
			"execution_id", requested.ExecutionID, "error", err)
	}
}

// failureMessage is the user-facing error of a failed plan.
func failureMessage(err error) string {
	var validationErr *dag.ValidationError
	if errors.As(err, &validationErr) {
		return strings.Join(validationErr.Errors, "; ")
	}

	switch {
	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return "workflow not found"
	case errors.Is(err, persistence.ErrVersionNotFound):
		return "workflow version not found"
	default:
		return err.Error()
	}
}
