package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/dagstudio/pkg/channels/gochannel"
	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/events"
	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/executor"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
	"github.com/dukex/dagstudio/pkg/persistence/file"
	"github.com/dukex/dagstudio/pkg/services"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/dagstudio/pkg/mocks"
)

type fixture struct {
	persistence persistence.Persistence
	workflows   *services.Workflow
	executions  *services.Execution
	executor    *executor.Executor
	bus         *mocks.MockEventBus
	published   []events.ExecutionStatusChanged
	mu          sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		persistence: file.NewPersistence(t.TempDir()),
		bus:         &mocks.MockEventBus{},
	}

	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		if changed, ok := args.Get(2).(events.ExecutionStatusChanged); ok {
			f.mu.Lock()
			f.published = append(f.published, changed)
			f.mu.Unlock()
		}
	}).Return(nil)

	f.workflows = services.NewWorkflow(f.persistence)
	f.executions = services.NewExecution(f.persistence, f.bus)
	f.executor = executor.New(f.persistence, f.executions, f.bus, nil)

	return f
}

func (f *fixture) statuses() []models.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.ExecutionStatus, 0, len(f.published))
	for _, e := range f.published {
		out = append(out, e.Status)
	}

	return out
}

func request(workflowID, executionID string, version int) *events.ExecutionRequested {
	return &events.ExecutionRequested{
		BaseEvent:       events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
		ExecutionID:     executionID,
		WorkflowVersion: version,
	}
}

func TestExecutor_CompletesWithPlan(t *testing.T) {
	f := newFixture(t)

	wf := testutil.LinearWorkflow("https://example.com/orders")
	wf.Nodes[1] = testutil.HTTPNode("http-1", "https://example.com/orders", models.MethodPost)

	created, err := f.workflows.Create(t.Context(), services.GraphInput{Name: "Orders", Nodes: wf.Nodes, Edges: wf.Edges})
	require.NoError(t, err)

	exec, err := f.executions.Run(t.Context(), created.ID)
	require.NoError(t, err)

	require.NoError(t, f.executor.Execute(t.Context(), request(created.ID, exec.ID, created.Version)))

	stored, err := f.executions.FetchByID(t.Context(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	require.NotNil(t, stored.FinishedAt)
	require.NotNil(t, stored.ResultJSON)

	result, err := execution.NormalizeResult(stored)
	require.NoError(t, err)

	plan, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"start-1", "http-1", "output-1"}, plan["order"])

	steps := plan["nodes"].([]any)
	require.Len(t, steps, 3)
	assert.Equal(t, map[string]any{
		"id": "http-1", "type": "http", "method": "POST", "url": "https://example.com/orders",
	}, steps[1])

	assert.Equal(t,
		[]models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusCompleted},
		f.statuses())
}

func TestExecutor_FailsInvalidSnapshot(t *testing.T) {
	f := newFixture(t)

	wf := testutil.LinearWorkflow("https://example.com", testutil.WithID("wf-broken"), testutil.WithVersion(1))
	wf.Edges = append(wf.Edges, testutil.Edge("output-1", "http-1"))
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), wf))

	exec, err := f.executions.Run(t.Context(), "wf-broken")
	require.NoError(t, err)

	require.NoError(t, f.executor.Execute(t.Context(), request("wf-broken", exec.ID, 0)))

	stored, err := f.executions.FetchByID(t.Context(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "Workflow contains a cycle", stored.ErrorMessage())
	assert.Nil(t, stored.ResultJSON)

	assert.Equal(t,
		[]models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusFailed},
		f.statuses())
}

func TestExecutor_MissingVersionFails(t *testing.T) {
	f := newFixture(t)

	created, err := f.workflows.Create(t.Context(), services.GraphInput{
		Name:  "Orders",
		Nodes: testutil.LinearWorkflow("https://example.com").Nodes,
		Edges: testutil.LinearWorkflow("https://example.com").Edges,
	})
	require.NoError(t, err)

	exec, err := f.executions.Run(t.Context(), created.ID)
	require.NoError(t, err)

	require.NoError(t, f.executor.Execute(t.Context(), request(created.ID, exec.ID, 7)))

	stored, err := f.executions.FetchByID(t.Context(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, "workflow version not found", stored.ErrorMessage())
}

func TestExecutor_SkipsFinishedExecution(t *testing.T) {
	f := newFixture(t)

	finished := time.Now().UTC()
	require.NoError(t, f.persistence.ExecutionRepository().Save(t.Context(), &models.Execution{
		ID: "done", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted,
		StartedAt: finished, FinishedAt: &finished,
	}))

	require.NoError(t, f.executor.Execute(t.Context(), request("wf-1", "done", 0)))
	assert.Empty(t, f.statuses())
}

func TestExecutor_UnknownExecution(t *testing.T) {
	f := newFixture(t)

	err := f.executor.Execute(t.Context(), request("wf-1", "missing", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrExecutionNotFound))
}

func TestExecutor_ConsumesRequestsFromTheBus(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	p := file.NewPersistence(t.TempDir())
	workflows := services.NewWorkflow(p)
	executions := services.NewExecution(p, bus)

	require.NoError(t, executor.New(p, executions, bus, nil).Register(bus))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	wf := testutil.LinearWorkflow("https://example.com")
	created, err := workflows.Create(t.Context(), services.GraphInput{Name: "Orders", Nodes: wf.Nodes, Edges: wf.Edges})
	require.NoError(t, err)

	exec, err := executions.Run(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, exec.Status)

	require.Eventually(t, func() bool {
		stored, err := executions.FetchByID(t.Context(), exec.ID)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := executions.FetchByID(t.Context(), exec.ID)
	require.NoError(t, err)

	var result executor.Result
	require.NoError(t, json.Unmarshal([]byte(*stored.ResultJSON), &result))
	assert.Equal(t, 200, result.StatusCode)
	assert.Contains(t, result.Body, `"order":["start-1","http-1","output-1"]`)
}
