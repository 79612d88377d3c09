// Package remote defines the collaborator the editor talks to for persistence
// and execution, and an HTTP implementation of it.
package remote

import (
	"context"

	"github.com/dukex/dagstudio/pkg/models"
)

// Client is the remote collaborator contract. Every call is fallible: failures
// come back as *RemoteError (transport or non-2xx) or *ParseError (malformed body).
type Client interface {
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts models.ListOptions) (*models.WorkflowList, error)

	RunWorkflow(ctx context.Context, workflowID string) (string, error)
	GetExecution(ctx context.Context, executionID string) (*models.Execution, error)

	ListWorkflowVersions(ctx context.Context, workflowID string) (*models.VersionList, error)
	GetWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error)
	RestoreWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.Workflow, error)
}
