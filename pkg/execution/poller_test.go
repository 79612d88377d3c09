package execution_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dagstudio/pkg/events"
	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/mocks"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	fastInterval = 10 * time.Millisecond
	waitFor      = 2 * time.Second
)

func waitForState(t *testing.T, p *execution.Poller, want execution.State) execution.Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		return p.Snapshot().State == want
	}, waitFor, fastInterval/2)

	return p.Snapshot()
}

func TestPoller_StartsIdle(t *testing.T) {
	t.Parallel()

	p := execution.NewPoller(testutil.NewFakeRemote())

	snap := p.Snapshot()
	assert.Equal(t, execution.StateIdle, snap.State)
	assert.Nil(t, snap.Execution)
	assert.False(t, p.Polling())
}

func TestPoller_RunPollsUntilCompleted(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(
		&models.Execution{Status: models.ExecutionStatusPending},
		&models.Execution{Status: models.ExecutionStatusRunning},
		&models.Execution{Status: models.ExecutionStatusCompleted, ResultJSON: strPtr(`{"body":"{\"x\":1}"}`)},
	)

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	execID, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.NotEmpty(t, execID)

	snap := waitForState(t, p, execution.StateCompleted)

	assert.Equal(t, execID, snap.ExecutionID)
	assert.Equal(t, map[string]any{"x": float64(1)}, snap.Result)
	assert.Equal(t, models.ExecutionStatusCompleted, snap.Execution.Status)
	assert.Equal(t, map[string]any{"x": float64(1)}, snap.Execution.Result)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 3, fake.Calls("GetExecution"))
}

func TestPoller_TerminalStatusStopsPollingOnce(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(&models.Execution{Status: models.ExecutionStatusCompleted})

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	var (
		mu        sync.Mutex
		terminals int
	)

	p.Subscribe(func(s execution.Snapshot) {
		if s.State == execution.StateCompleted {
			mu.Lock()
			terminals++
			mu.Unlock()
		}
	})

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	waitForState(t, p, execution.StateCompleted)
	time.Sleep(10 * fastInterval)

	assert.Equal(t, 1, fake.Calls("GetExecution"))
	assert.False(t, p.Polling())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, terminals)
}

func TestPoller_FailedExecution(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(
		&models.Execution{Status: models.ExecutionStatusRunning},
		&models.Execution{Status: models.ExecutionStatusFailed, Error: strPtr("node http-1 timed out")},
	)

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	snap := waitForState(t, p, execution.StateFailed)
	assert.Equal(t, "node http-1 timed out", snap.Error)
	assert.Nil(t, snap.Result)
}

func TestPoller_FailedWithoutMessage(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(&models.Execution{Status: models.ExecutionStatusFailed})

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	snap := waitForState(t, p, execution.StateFailed)
	assert.Equal(t, "Execution failed", snap.Error)
}

func TestPoller_SubmissionFailureNeverPolls(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.RunErr = remote.NewServerError("RunWorkflow", 500, "", "executor unavailable")

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	var states []execution.State

	p.Subscribe(func(s execution.Snapshot) { states = append(states, s.State) })

	execID, err := p.Run(t.Context(), "wf-1")
	require.Error(t, err)
	assert.Empty(t, execID)
	assert.True(t, remote.IsServerError(err))

	snap := p.Snapshot()
	assert.Equal(t, execution.StateFailed, snap.State)
	assert.Equal(t, "executor unavailable", snap.Error)
	assert.False(t, snap.Loading)
	assert.False(t, p.Polling())

	time.Sleep(5 * fastInterval)
	assert.Zero(t, fake.Calls("GetExecution"))
	assert.Equal(t, []execution.State{execution.StateRunning, execution.StateFailed}, states)
}

func TestPoller_PollFailureKeepsPolling(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	client.On("RunWorkflow", mock.Anything, "wf-1").Return("exec-1", nil).Once()
	client.On("GetExecution", mock.Anything, "exec-1").
		Return(nil, remote.NewNoResponseError("GetExecution", errors.New("timeout"))).Twice()
	client.On("GetExecution", mock.Anything, "exec-1").
		Return(&models.Execution{ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted}, nil).Once()

	p := execution.NewPoller(client, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	waitForState(t, p, execution.StateCompleted)
	client.AssertNumberOfCalls(t, "GetExecution", 3)
}

func TestPoller_ClearStopsPollingAndResets(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(&models.Execution{Status: models.ExecutionStatusRunning})

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fake.Calls("GetExecution") >= 2 }, waitFor, fastInterval)

	p.Clear()
	p.Clear()

	snap := p.Snapshot()
	assert.Equal(t, execution.StateIdle, snap.State)
	assert.Empty(t, snap.ExecutionID)
	assert.Nil(t, snap.Execution)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.Error)
	assert.False(t, p.Polling())

	time.Sleep(2 * fastInterval)
	calls := fake.Calls("GetExecution")
	time.Sleep(5 * fastInterval)
	assert.Equal(t, calls, fake.Calls("GetExecution"))
	assert.Equal(t, execution.StateIdle, p.Snapshot().State)
}

func TestPoller_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(&models.Execution{Status: models.ExecutionStatusRunning})

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	p.Close()
	p.Close()

	assert.False(t, p.Polling())
}

func TestPoller_StaleRunResponseIsIgnored(t *testing.T) {
	t.Parallel()

	client := &mocks.MockRemoteClient{}
	release := make(chan struct{})
	started := make(chan struct{})

	client.On("RunWorkflow", mock.Anything, "wf-1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("exec-old", nil).Once()

	p := execution.NewPoller(client, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	errCh := make(chan error, 1)

	go func() {
		_, err := p.Run(context.Background(), "wf-1")
		errCh <- err
	}()

	<-started
	p.Clear()
	close(release)

	assert.ErrorIs(t, <-errCh, execution.ErrCleared)
	assert.Equal(t, execution.StateIdle, p.Snapshot().State)
	assert.False(t, p.Polling())
	client.AssertNotCalled(t, "GetExecution", mock.Anything, mock.Anything)
}

func TestPoller_PollExecutionIsOneShot(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(
		&models.Execution{Status: models.ExecutionStatusRunning},
		&models.Execution{Status: models.ExecutionStatusCompleted, ResultJSON: strPtr(`{"body":{"n":2}}`)},
	)

	execID, err := fake.RunWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval))
	t.Cleanup(p.Close)

	require.NoError(t, p.PollExecution(t.Context(), execID))
	assert.Equal(t, execution.StateRunning, p.Snapshot().State)
	assert.False(t, p.Polling())

	require.NoError(t, p.PollExecution(t.Context(), execID))

	snap := p.Snapshot()
	assert.Equal(t, execution.StateCompleted, snap.State)
	assert.Equal(t, map[string]any{"n": float64(2)}, snap.Result)
	assert.Equal(t, 2, fake.Calls("GetExecution"))
}

func TestPoller_PollExecutionFailure(t *testing.T) {
	t.Parallel()

	p := execution.NewPoller(testutil.NewFakeRemote())

	err := p.PollExecution(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	snap := p.Snapshot()
	assert.Equal(t, execution.StateIdle, snap.State)
	assert.Equal(t, "execution not found", snap.Error)
}

func TestPoller_PublishesStatusChanges(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeRemote()
	fake.ScriptNextRun(
		&models.Execution{Status: models.ExecutionStatusRunning},
		&models.Execution{Status: models.ExecutionStatusRunning},
		&models.Execution{Status: models.ExecutionStatusCompleted},
	)

	bus := &mocks.MockEventBus{}

	var (
		mu       sync.Mutex
		statuses []models.ExecutionStatus
	)

	bus.On("Publish", mock.Anything, "wf-1", mock.AnythingOfType("events.ExecutionStatusChanged")).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()

			statuses = append(statuses, args.Get(2).(events.ExecutionStatusChanged).Status)
		}).
		Return(nil)

	p := execution.NewPoller(fake, execution.WithInterval(fastInterval), execution.WithPublisher(bus))
	t.Cleanup(p.Close)

	_, err := p.Run(t.Context(), "wf-1")
	require.NoError(t, err)

	waitForState(t, p, execution.StateCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(statuses) == 2
	}, waitFor, fastInterval)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusCompleted}, statuses)
}
