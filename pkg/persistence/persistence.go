// Package persistence provides the storage abstraction of the dev API server.
package persistence

import (
	"context"

	"github.com/dukex/dagstudio/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflows and their immutable version snapshots.
type WorkflowRepository interface {
	// List returns workflows ordered by most recent update first.
	List(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	// GetByID returns ErrWorkflowNotFound when id is unknown.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error

	SaveVersion(ctx context.Context, version *models.WorkflowVersion) error
	// Versions returns all snapshots of workflowID, newest first.
	Versions(ctx context.Context, workflowID string) ([]models.WorkflowVersion, error)
	// Version returns ErrVersionNotFound when the snapshot does not exist.
	Version(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error)
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	// GetByID returns ErrExecutionNotFound when id is unknown.
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// LatestByWorkflow returns nil without error when the workflow never ran.
	LatestByWorkflow(ctx context.Context, workflowID string) (*models.Execution, error)
	// ListByWorkflow returns executions of workflowID, most recently started first.
	ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.Execution, error)
}

// ListWorkflowsOptions selects a page of workflows. Search matches names
// case-insensitively.
type ListWorkflowsOptions struct {
	Limit  int
	Offset int
	Search string
}

// WorkflowListResult is one page of workflows plus the filtered total.
type WorkflowListResult struct {
	Workflows  []*models.Workflow
	TotalCount int
}
