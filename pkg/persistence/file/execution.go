package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	p *Persistence
}

// Save writes the execution record, replacing any previous state.
func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	if err := writeJSON(er.p.path("executions", execution.ID+".json"), execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// GetByID loads an execution record.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	var execution models.Execution

	found, err := readJSON(er.p.path("executions", id+".json"), &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// LatestByWorkflow returns the most recently started run of workflowID.
func (er *ExecutionRepository) LatestByWorkflow(ctx context.Context, workflowID string) (*models.Execution, error) {
	executions, err := er.ListByWorkflow(ctx, workflowID, 1, 0)
	if err != nil || len(executions) == 0 {
		return nil, err
	}

	return executions[0], nil
}

// ListByWorkflow scans the execution records of workflowID, most recently started first.
func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit, offset int) ([]*models.Execution, error) {
	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	dir := er.p.path("executions")

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0)

	for _, file := range jsonFiles {
		var execution models.Execution

		found, err := readJSON(filepath.Join(dir, file), &execution)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", file, err)
		}

		if found && execution.WorkflowID == workflowID {
			executions = append(executions, &execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	start := min(max(offset, 0), len(executions))
	end := len(executions)

	if limit > 0 {
		end = min(start+limit, end)
	}

	return executions[start:end], nil
}
