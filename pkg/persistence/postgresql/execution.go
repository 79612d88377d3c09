package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const selectExecution = `
	SELECT
		id
	  , workflow_id
	  , status
	  , result_json
	  , error_message
	  , started_at
	  , finished_at
	FROM executions`

// Save upserts an execution record.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, result_json, error_message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			result_json = EXCLUDED.result_json,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`,
		execution.ID, execution.WorkflowID, string(execution.Status),
		nullString(execution.ResultJSON), nullString(execution.Error),
		execution.StartedAt, nullTime(execution.FinishedAt))
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// LatestByWorkflow returns the most recently started execution of workflowID.
func (r *ExecutionRepository) LatestByWorkflow(ctx context.Context, workflowID string) (*models.Execution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx,
		selectExecution+" WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT 1", workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("LatestByWorkflow", workflowID, err)
	}

	return execution, nil
}

// ListByWorkflow returns executions of workflowID, most recently started first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		selectExecution+" WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3",
		workflowID, limit, max(offset, 0))
	if err != nil {
		return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
	}

	defer func() { _ = rows.Close() }()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		status     string
		resultJSON sql.NullString
		errMessage sql.NullString
		finishedAt sql.NullTime
	)

	err := row.Scan(&execution.ID, &execution.WorkflowID, &status, &resultJSON, &errMessage,
		&execution.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if resultJSON.Valid {
		execution.ResultJSON = &resultJSON.String
	}

	if errMessage.Valid {
		execution.Error = &errMessage.String
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		execution.FinishedAt = &t
	}

	return &execution, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}
