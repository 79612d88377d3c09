package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Workflow struct {
	persistence persistence.Persistence
	config

	// versionMu serializes version number assignment.
	versionMu sync.Mutex
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, opts ...Option) *Workflow {
	return &Workflow{
		persistence: p,
		config:      newConfig(opts),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// GraphInput is the editable part of a workflow. On update a nil Nodes and
// Edges pair keeps the stored graph and an empty Name keeps the stored name.
type GraphInput struct {
	Name  string
	Nodes []models.Node
	Edges []models.Edge
}

func (in GraphInput) hasGraph() bool {
	return in.Nodes != nil || in.Edges != nil
}

// validateGraph normalizes the graph and rejects it unless it is a valid DAG.
func validateGraph(op, name string, nodes []models.Node, edges []models.Edge) (*models.Workflow, error) {
	wf := dag.Normalize(&models.Workflow{Name: name, Nodes: nodes, Edges: edges})

	result := dag.Validate(wf)
	if !result.Valid {
		return nil, NewValidationError(op, "invalid_workflow", strings.Join(result.Errors, "; "), result.Err())
	}

	return wf, nil
}

// Create validates and stores a new workflow as version 1.
func (w *Workflow) Create(ctx context.Context, in GraphInput) (*models.Workflow, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, NewValidationError("Create", "validation_error", "", ErrWorkflowNameRequired)
	}

	wf, err := validateGraph("Create", in.Name, in.Nodes, in.Edges)
	if err != nil {
		return nil, err
	}

	now := w.timestamp()
	wf.ID = w.newID()
	wf.Version = 1
	wf.CreatedAt = now
	wf.UpdatedAt = now

	w.versionMu.Lock()
	defer w.versionMu.Unlock()

	if err := w.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if err := w.snapshot(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to create initial version: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", wf.ID, "nodes", len(wf.Nodes))

	return wf, nil
}

// FetchByID returns a stored workflow.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return wf, nil
}

// Update replaces the name and graph of a workflow. A new version is
// recorded only when the name or the graph actually changed.
func (w *Workflow) Update(ctx context.Context, id string, in GraphInput) (*models.Workflow, error) {
	w.versionMu.Lock()
	defer w.versionMu.Unlock()

	repo := w.persistence.WorkflowRepository()

	current, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if strings.TrimSpace(in.Name) != "" {
		name = in.Name
	}

	nodes, edges := current.Nodes, current.Edges
	if in.hasGraph() {
		nodes, edges = in.Nodes, in.Edges
	}

	next, err := validateGraph("Update", name, nodes, edges)
	if err != nil {
		return nil, err
	}

	next.ID = current.ID
	next.Version = current.Version
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = w.timestamp()

	changed, err := graphChanged(current, next)
	if err != nil {
		return nil, err
	}

	if changed {
		next.Version = current.Version + 1
	}

	if err := repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if changed {
		if err := w.snapshot(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to save workflow version: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", id, "version", next.Version, "changed", changed)

	return next, nil
}

// graphChanged compares name, nodes and edges by their canonical JSON encoding.
func graphChanged(a, b *models.Workflow) (bool, error) {
	if a.Name != b.Name {
		return true, nil
	}

	encode := func(wf *models.Workflow) ([]byte, error) {
		return json.Marshal(struct {
			Nodes []models.Node `json:"nodes"`
			Edges []models.Edge `json:"edges"`
		}{models.CloneNodes(wf.Nodes), models.CloneEdges(wf.Edges)})
	}

	before, err := encode(a)
	if err != nil {
		return false, fmt.Errorf("failed to encode stored graph: %w", err)
	}

	after, err := encode(b)
	if err != nil {
		return false, fmt.Errorf("failed to encode new graph: %w", err)
	}

	return string(before) != string(after), nil
}

// snapshot records wf's current state as version wf.Version.
func (w *Workflow) snapshot(ctx context.Context, wf *models.Workflow) error {
	return w.persistence.WorkflowRepository().SaveVersion(ctx, &models.WorkflowVersion{
		ID:            w.newID(),
		WorkflowID:    wf.ID,
		VersionNumber: wf.Version,
		Name:          wf.Name,
		Nodes:         models.CloneNodes(wf.Nodes),
		Edges:         models.CloneEdges(wf.Edges),
		CreatedAt:     wf.UpdatedAt,
	})
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit  int `validate:"min=0"`
	Offset int `validate:"min=0"`
	Search string
}

// List returns one page of workflow summaries. The limit is clamped to
// 1..MaxListLimit and defaults to DefaultListLimit.
func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) (*models.WorkflowList, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	limit = min(limit, MaxListLimit)
	offset := max(req.Offset, 0)

	result, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Limit:  limit,
		Offset: offset,
		Search: req.Search,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	items := make([]models.WorkflowSummary, 0, len(result.Workflows))

	for _, wf := range result.Workflows {
		summary := models.WorkflowSummary{
			ID:        wf.ID,
			Name:      wf.Name,
			UpdatedAt: wf.UpdatedAt,
			NodeCount: len(wf.Nodes),
			EdgeCount: len(wf.Edges),
		}

		last, err := w.persistence.ExecutionRepository().LatestByWorkflow(ctx, wf.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load last execution of %s: %w", wf.ID, err)
		}

		if last != nil {
			summary.LastExecution = &models.ExecutionSummary{
				ID:         last.ID,
				Status:     last.Status,
				FinishedAt: last.FinishedAt,
			}
		}

		items = append(items, summary)
	}

	return &models.WorkflowList{
		Items:  items,
		Total:  result.TotalCount,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// Versions lists the snapshots of a workflow, newest first, without their graphs.
func (w *Workflow) Versions(ctx context.Context, id string) (*models.VersionList, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	versions, err := w.persistence.WorkflowRepository().Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	for i := range versions {
		versions[i].Nodes = nil
		versions[i].Edges = nil
	}

	return &models.VersionList{
		Versions:       versions,
		Total:          len(versions),
		CurrentVersion: wf.Version,
	}, nil
}

// Version returns one snapshot with its graph.
func (w *Workflow) Version(ctx context.Context, id string, versionNumber int) (*models.WorkflowVersion, error) {
	return w.persistence.WorkflowRepository().Version(ctx, id, versionNumber)
}

// Restore makes a snapshot the current state. The restored state is itself
// recorded as a new version, so history is never rewritten.
func (w *Workflow) Restore(ctx context.Context, id string, versionNumber int) (*models.Workflow, error) {
	w.versionMu.Lock()
	defer w.versionMu.Unlock()

	repo := w.persistence.WorkflowRepository()

	current, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	version, err := repo.Version(ctx, id, versionNumber)
	if err != nil {
		return nil, err
	}

	restored := &models.Workflow{
		ID:        current.ID,
		Name:      version.Name,
		Version:   current.Version + 1,
		Nodes:     models.CloneNodes(version.Nodes),
		Edges:     models.CloneEdges(version.Edges),
		CreatedAt: current.CreatedAt,
		UpdatedAt: w.timestamp(),
	}

	if err := repo.Save(ctx, restored); err != nil {
		return nil, fmt.Errorf("failed to save restored workflow: %w", err)
	}

	if err := w.snapshot(ctx, restored); err != nil {
		return nil, fmt.Errorf("failed to save restored version: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow version restored",
		"workflow_id", id, "from_version", versionNumber, "version", restored.Version)

	return restored, nil
}
