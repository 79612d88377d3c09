// Package mocks provides testify mocks of the collaborator interfaces.
package mocks

import (
	"context"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/stretchr/testify/mock"
)

var _ remote.Client = (*MockRemoteClient)(nil)

// MockRemoteClient is a mock implementation of remote.Client.
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	args := m.Called(ctx, workflow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRemoteClient) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRemoteClient) UpdateWorkflow(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	args := m.Called(ctx, id, workflow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockRemoteClient) ListWorkflows(ctx context.Context, opts models.ListOptions) (*models.WorkflowList, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowList), args.Error(1)
}

func (m *MockRemoteClient) RunWorkflow(ctx context.Context, workflowID string) (string, error) {
	args := m.Called(ctx, workflowID)

	return args.String(0), args.Error(1)
}

func (m *MockRemoteClient) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockRemoteClient) ListWorkflowVersions(ctx context.Context, workflowID string) (*models.VersionList, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.VersionList), args.Error(1)
}

func (m *MockRemoteClient) GetWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	args := m.Called(ctx, workflowID, versionNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowVersion), args.Error(1)
}

func (m *MockRemoteClient) RestoreWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.Workflow, error) {
	args := m.Called(ctx, workflowID, versionNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}
