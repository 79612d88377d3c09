package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	p *Persistence
}

// List returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	all, err := wr.loadAllLocked()
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(opts.Search))
	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if search != "" && !strings.Contains(strings.ToLower(workflow.Name), search) {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].UpdatedAt.After(filtered[j].UpdatedAt)
	})

	total := len(filtered)
	start := min(max(opts.Offset, 0), total)
	end := total

	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}

	return &persistence.WorkflowListResult{
		Workflows:  filtered[start:end],
		TotalCount: total,
	}, nil
}

func (wr *WorkflowRepository) loadAllLocked() ([]*models.Workflow, error) {
	dir := wr.p.path("workflows")

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var workflow models.Workflow

		found, err := readJSON(filepath.Join(dir, file), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", strings.TrimSuffix(file, ".json"), err)
		}

		if found {
			workflows = append(workflows, &workflow)
		}
	}

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	var workflow models.Workflow

	found, err := readJSON(wr.p.path("workflows", id+".json"), &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	wr.p.mu.Lock()
	defer wr.p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = workflow.CreatedAt
	}

	if err := writeJSON(wr.p.path("workflows", workflow.ID+".json"), workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// SaveVersion stores an immutable snapshot.
func (wr *WorkflowRepository) SaveVersion(_ context.Context, version *models.WorkflowVersion) error {
	if err := validateID(version.WorkflowID); err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	wr.p.mu.Lock()
	defer wr.p.mu.Unlock()

	path := wr.p.path("versions", version.WorkflowID, strconv.Itoa(version.VersionNumber)+".json")
	if err := writeJSON(path, version); err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	return nil
}

// Versions returns every snapshot of workflowID, newest first.
func (wr *WorkflowRepository) Versions(_ context.Context, workflowID string) ([]models.WorkflowVersion, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.NewWorkflowError("Versions", workflowID, persistence.ErrWorkflowNotFound)
	}

	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	dir := wr.p.path("versions", workflowID)

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, persistence.NewWorkflowError("Versions", workflowID, err)
	}

	versions := make([]models.WorkflowVersion, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var version models.WorkflowVersion

		found, err := readJSON(filepath.Join(dir, file), &version)
		if err != nil {
			return nil, persistence.NewWorkflowError("Versions", workflowID, err)
		}

		if found {
			versions = append(versions, version)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})

	return versions, nil
}

// Version returns one snapshot of workflowID.
func (wr *WorkflowRepository) Version(_ context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.NewWorkflowError("Version", workflowID, persistence.ErrVersionNotFound)
	}

	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	var version models.WorkflowVersion

	found, err := readJSON(wr.p.path("versions", workflowID, strconv.Itoa(versionNumber)+".json"), &version)
	if err != nil {
		return nil, persistence.NewWorkflowError("Version", workflowID, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("Version", workflowID, persistence.ErrVersionNotFound)
	}

	return &version, nil
}
