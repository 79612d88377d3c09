package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/events"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

const DefaultExecutionListLimit = 50

// Execution records executions and hands them to the executor through the event bus.
type Execution struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	config
}

// NewExecution creates a new execution service.
func NewExecution(p persistence.Persistence, publisher eventbus.EventPublisher, opts ...Option) *Execution {
	return &Execution{
		persistence: p,
		publisher:   publisher,
		config:      newConfig(opts),
	}
}

// Run creates a PENDING execution of a saved workflow and requests it on the bus.
func (s *Execution) Run(ctx context.Context, workflowID string) (*models.Execution, error) {
	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	execution := &models.Execution{
		ID:         s.newID(),
		WorkflowID: wf.ID,
		Status:     models.ExecutionStatusPending,
		StartedAt:  s.timestamp(),
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	event := events.ExecutionRequested{
		BaseEvent:       events.NewBaseEvent(events.ExecutionRequestedEvent, wf.ID),
		ExecutionID:     execution.ID,
		WorkflowVersion: wf.Version,
	}

	if err := s.publisher.Publish(ctx, execution.ID, event); err != nil {
		failErr := s.Fail(ctx, execution.ID, "failed to schedule execution")
		if failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark unscheduled execution", "execution_id", execution.ID, "error", failErr)
		}

		return nil, fmt.Errorf("failed to publish execution request: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution requested", "workflow_id", wf.ID, "execution_id", execution.ID)

	return execution, nil
}

// FetchByID returns an execution record.
func (s *Execution) FetchByID(ctx context.Context, id string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, id)
}

// ListByWorkflow returns executions of a workflow, most recent first.
func (s *Execution) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.Execution, error) {
	if _, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultExecutionListLimit
	}

	return s.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID, min(limit, MaxListLimit), max(offset, 0))
}

// MarkRunning moves an execution to RUNNING.
func (s *Execution) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(e *models.Execution) error {
		e.Status = models.ExecutionStatusRunning

		return nil
	})
}

// Complete stores result as result_json and finishes the execution.
func (s *Execution) Complete(ctx context.Context, id string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode execution result: %w", err)
	}

	return s.transition(ctx, id, func(e *models.Execution) error {
		resultJSON := string(payload)
		finished := s.timestamp()

		e.Status = models.ExecutionStatusCompleted
		e.ResultJSON = &resultJSON
		e.FinishedAt = &finished

		return nil
	})
}

// Fail records message and finishes the execution.
func (s *Execution) Fail(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, func(e *models.Execution) error {
		finished := s.timestamp()

		e.Status = models.ExecutionStatusFailed
		e.Error = &message
		e.FinishedAt = &finished

		return nil
	})
}

// transition applies fn to a non-terminal execution and saves it.
// Terminal executions are left untouched.
func (s *Execution) transition(ctx context.Context, id string, fn func(*models.Execution) error) error {
	repo := s.persistence.ExecutionRepository()

	execution, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		s.logger.WarnContext(ctx, "Ignoring transition of finished execution",
			"execution_id", id, "status", execution.Status)

		return nil
	}

	if err := fn(execution); err != nil {
		return err
	}

	return repo.Save(ctx, execution)
}
