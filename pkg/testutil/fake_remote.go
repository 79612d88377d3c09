package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
)

var _ remote.Client = (*FakeRemote)(nil)

// FakeRemote is an in-memory remote.Client. Every save stores a version
// snapshot; executions replay a scripted sequence of snapshots.
type FakeRemote struct {
	mu         sync.Mutex
	seq        int
	workflows  map[string]*models.Workflow
	versions   map[string][]models.WorkflowVersion
	scripts    map[string][]*models.Execution
	calls      map[string]int
	nextScript []*models.Execution

	// RunErr, when set, fails every RunWorkflow call.
	RunErr error
}

// NewFakeRemote creates an empty fake collaborator.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		workflows: map[string]*models.Workflow{},
		versions:  map[string][]models.WorkflowVersion{},
		scripts:   map[string][]*models.Execution{},
		calls:     map[string]int{},
	}
}

// ScriptNextRun makes the next RunWorkflow return an execution that reports
// the given statuses on consecutive polls. The last one repeats.
func (f *FakeRemote) ScriptNextRun(steps ...*models.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextScript = steps
}

// Calls returns how many times op was invoked.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Put stores wf as if it had been saved, and returns its id.
func (f *FakeRemote) Put(wf *models.Workflow) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	saved := f.storeLocked("", wf)

	return saved.ID
}

func (f *FakeRemote) storeLocked(id string, wf *models.Workflow) *models.Workflow {
	if id == "" {
		f.seq++
		id = fmt.Sprintf("wf-%d", f.seq)
	}

	versions := f.versions[id]
	now := time.Now().UTC()

	stored := wf.Clone()
	stored.ID = id
	stored.Version = len(versions) + 1
	stored.UpdatedAt = now

	if prev, ok := f.workflows[id]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}

	f.workflows[id] = stored
	f.versions[id] = append(versions, models.WorkflowVersion{
		ID:            fmt.Sprintf("%s-v%d", id, stored.Version),
		WorkflowID:    id,
		VersionNumber: stored.Version,
		Name:          stored.Name,
		Nodes:         models.CloneNodes(stored.Nodes),
		Edges:         models.CloneEdges(stored.Edges),
		CreatedAt:     now,
	})

	return stored.Clone()
}

func (f *FakeRemote) CreateWorkflow(_ context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["CreateWorkflow"]++

	return f.storeLocked("", workflow), nil
}

func (f *FakeRemote) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["GetWorkflow"]++

	wf, ok := f.workflows[id]
	if !ok {
		return nil, remote.NewServerError("GetWorkflow", 404, "workflow_not_found", "workflow not found")
	}

	return wf.Clone(), nil
}

func (f *FakeRemote) UpdateWorkflow(_ context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["UpdateWorkflow"]++

	if _, ok := f.workflows[id]; !ok {
		return nil, remote.NewServerError("UpdateWorkflow", 404, "workflow_not_found", "workflow not found")
	}

	return f.storeLocked(id, workflow), nil
}

func (f *FakeRemote) ListWorkflows(_ context.Context, opts models.ListOptions) (*models.WorkflowList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["ListWorkflows"]++

	ids := make([]string, 0, len(f.workflows))
	for id, wf := range f.workflows {
		if opts.Search == "" || strings.Contains(strings.ToLower(wf.Name), strings.ToLower(opts.Search)) {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	list := &models.WorkflowList{Items: []models.WorkflowSummary{}, Total: len(ids), Limit: limit, Offset: opts.Offset}

	for i := opts.Offset; i < len(ids) && i < opts.Offset+limit; i++ {
		wf := f.workflows[ids[i]]
		list.Items = append(list.Items, models.WorkflowSummary{
			ID:        wf.ID,
			Name:      wf.Name,
			UpdatedAt: wf.UpdatedAt,
			NodeCount: len(wf.Nodes),
			EdgeCount: len(wf.Edges),
		})
	}

	return list, nil
}

func (f *FakeRemote) RunWorkflow(_ context.Context, workflowID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["RunWorkflow"]++

	if f.RunErr != nil {
		return "", f.RunErr
	}

	f.seq++
	execID := fmt.Sprintf("exec-%d", f.seq)

	script := f.nextScript
	f.nextScript = nil

	if len(script) == 0 {
		script = []*models.Execution{{Status: models.ExecutionStatusCompleted}}
	}

	steps := make([]*models.Execution, len(script))
	for i, s := range script {
		cp := *s
		cp.ID = execID
		cp.WorkflowID = workflowID
		steps[i] = &cp
	}

	f.scripts[execID] = steps

	return execID, nil
}

func (f *FakeRemote) GetExecution(_ context.Context, executionID string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["GetExecution"]++

	steps, ok := f.scripts[executionID]
	if !ok || len(steps) == 0 {
		return nil, remote.NewServerError("GetExecution", 404, "execution_not_found", "execution not found")
	}

	current := *steps[0]
	if len(steps) > 1 {
		f.scripts[executionID] = steps[1:]
	}

	return &current, nil
}

func (f *FakeRemote) ListWorkflowVersions(_ context.Context, workflowID string) (*models.VersionList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["ListWorkflowVersions"]++

	versions := slices.Clone(f.versions[workflowID])
	slices.Reverse(versions)

	return &models.VersionList{Versions: versions, Total: len(versions), CurrentVersion: len(versions)}, nil
}

func (f *FakeRemote) GetWorkflowVersion(_ context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["GetWorkflowVersion"]++

	versions := f.versions[workflowID]
	if versionNumber < 1 || versionNumber > len(versions) {
		return nil, remote.NewServerError("GetWorkflowVersion", 404, "version_not_found", "version not found")
	}

	v := versions[versionNumber-1]
	v.Nodes = models.CloneNodes(v.Nodes)
	v.Edges = models.CloneEdges(v.Edges)

	return &v, nil
}

func (f *FakeRemote) RestoreWorkflowVersion(_ context.Context, workflowID string, versionNumber int) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["RestoreWorkflowVersion"]++

	versions := f.versions[workflowID]
	if versionNumber < 1 || versionNumber > len(versions) {
		return nil, remote.NewServerError("RestoreWorkflowVersion", 404, "version_not_found", "version not found")
	}

	v := versions[versionNumber-1]

	return f.storeLocked(workflowID, &models.Workflow{Name: v.Name, Nodes: v.Nodes, Edges: v.Edges}), nil
}
