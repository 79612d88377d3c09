package web

import "github.com/dukex/dagstudio/pkg/models"

// CreateWorkflowRequest is the body of POST /workflows.
type CreateWorkflowRequest struct {
	Name  string        `json:"name"  validate:"required,max=255"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// UpdateWorkflowRequest is the body of PUT /workflows/:id. An empty name keeps
// the stored one, an absent graph keeps the stored graph.
type UpdateWorkflowRequest struct {
	Name  string        `json:"name"  validate:"omitempty,max=255"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// ListWorkflowsQuery holds the query parameters of GET /workflows.
type ListWorkflowsQuery struct {
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
	Search string `query:"search" validate:"max=255"`
}

// ListExecutionsQuery holds the query parameters of GET /workflows/:id/executions.
type ListExecutionsQuery struct {
	Limit  int `query:"limit"  validate:"min=0,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// RunWorkflowResponse is returned by POST /workflows/:id/run.
type RunWorkflowResponse struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
}

// ExecutionListResponse is returned by GET /workflows/:id/executions.
type ExecutionListResponse struct {
	Executions []*models.Execution `json:"executions"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}
