// Package execution tracks one server-side execution at a time: it submits a
// run, polls the collaborator until a terminal status and exposes the result.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/dagstudio/pkg/eventbus"
	"github.com/dukex/dagstudio/pkg/events"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
)

// DefaultInterval is the delay between two polls of a running execution.
const DefaultInterval = 2 * time.Second

// ErrCleared is returned by a Run or PollExecution whose response arrived
// after the poller was cleared, closed or handed a newer execution.
var ErrCleared = errors.New("execution tracking was cleared")

// State is the client-side lifecycle of the tracked execution.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Snapshot is a copy of the poller state.
type Snapshot struct {
	State       State
	ExecutionID string
	Execution   *models.Execution
	Result      any
	Error       string
	Loading     bool
}

type observer struct {
	id int
	fn func(Snapshot)
}

// Poller owns the lifecycle of a single in-flight execution.
type Poller struct {
	client    remote.Client
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	interval  time.Duration

	mu        sync.Mutex
	state     State
	execID    string
	execution *models.Execution
	result    any
	errMsg    string
	loading   bool
	gen       uint64
	cancel    context.CancelFunc
	observers []observer
	nextObs   int
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithPublisher publishes an ExecutionStatusChanged event on every observed transition.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Poller) {
		p.publisher = publisher
	}
}

// NewPoller creates an idle poller.
func NewPoller(client remote.Client, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		logger:   slog.Default(),
		interval: DefaultInterval,
		state:    StateIdle,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	var exec *models.Execution

	if p.execution != nil {
		cp := *p.execution
		exec = &cp
	}

	return Snapshot{
		State:       p.state,
		ExecutionID: p.execID,
		Execution:   exec,
		Result:      p.result,
		Error:       p.errMsg,
		Loading:     p.loading,
	}
}

// Subscribe registers fn to be called with a snapshot after every state
// change. fn runs on the goroutine that caused the change and must not block.
func (p *Poller) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextObs++
	id := p.nextObs
	p.observers = append(p.observers, observer{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.observers = slices.DeleteFunc(p.observers, func(o observer) bool { return o.id == id })
	}
}

func (p *Poller) notify(s Snapshot) {
	p.mu.Lock()
	fns := make([]func(Snapshot), len(p.observers))
	for i, o := range p.observers {
		fns[i] = o.fn
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Run submits workflowID for execution and starts polling it. When the
// submission fails the poller ends in StateFailed and no polling starts.
func (p *Poller) Run(ctx context.Context, workflowID string) (string, error) {
	p.mu.Lock()
	p.stopLocked()
	p.gen++
	gen := p.gen
	p.resetLocked()
	p.state = StateRunning
	p.loading = true
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)

	execID, err := p.client.RunWorkflow(ctx, workflowID)

	p.mu.Lock()

	if gen != p.gen {
		p.mu.Unlock()

		return "", ErrCleared
	}

	p.loading = false

	if err != nil {
		p.state = StateFailed
		p.errMsg = remote.Message(err)
		snap = p.snapshotLocked()
		p.mu.Unlock()

		p.logger.ErrorContext(ctx, "Failed to run workflow", "workflow_id", workflowID, "error", err)
		p.notify(snap)

		return "", fmt.Errorf("failed to run workflow %s: %w", workflowID, err)
	}

	p.execID = execID

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	snap = p.snapshotLocked()
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Execution started", "workflow_id", workflowID, "execution_id", execID)
	p.notify(snap)

	go p.loop(loopCtx, gen, execID)

	return execID, nil
}

func (p *Poller) loop(ctx context.Context, gen uint64, execID string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.poll(ctx, gen, execID) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.poll(ctx, gen, execID) {
				return
			}
		}
	}
}

// poll fetches execID once and reports whether the loop should stop.
func (p *Poller) poll(ctx context.Context, gen uint64, execID string) bool {
	exec, err := p.client.GetExecution(ctx, execID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}

		p.logger.WarnContext(ctx, "Failed to poll execution", "execution_id", execID, "error", err)

		return false
	}

	stop, applied := p.apply(ctx, gen, exec)

	return stop || !applied
}

// apply stores exec as the current execution. It reports whether exec is
// terminal and whether it was applied at all; responses of an older
// generation are dropped.
func (p *Poller) apply(ctx context.Context, gen uint64, exec *models.Execution) (bool, bool) {
	result, parseErr := NormalizeResult(exec)
	if parseErr != nil {
		p.logger.WarnContext(ctx, "Failed to parse execution result", "execution_id", exec.ID, "error", parseErr)
	}

	p.mu.Lock()

	if gen != p.gen {
		p.mu.Unlock()

		return false, false
	}

	var previous models.ExecutionStatus
	if p.execution != nil {
		previous = p.execution.Status
	}

	stored := *exec
	stored.Result = result
	p.execution = &stored

	terminal := false

	switch exec.Status {
	case models.ExecutionStatusCompleted:
		p.state = StateCompleted
		p.result = result
		terminal = true
	case models.ExecutionStatusFailed:
		p.state = StateFailed
		p.errMsg = exec.ErrorMessage()

		if p.errMsg == "" {
			p.errMsg = "Execution failed"
		}

		terminal = true
	default:
		p.state = StateRunning
	}

	if terminal {
		p.stopLocked()
	}

	snap := p.snapshotLocked()
	p.mu.Unlock()

	if previous != exec.Status {
		p.publish(ctx, previous, exec)
	}

	p.notify(snap)

	return terminal, true
}

func (p *Poller) publish(ctx context.Context, previous models.ExecutionStatus, exec *models.Execution) {
	if p.publisher == nil {
		return
	}

	event := events.ExecutionStatusChanged{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStatusChangedEvent, exec.WorkflowID),
		ExecutionID: exec.ID,
		Previous:    previous,
		Status:      exec.Status,
		Error:       exec.ErrorMessage(),
	}

	if err := p.publisher.Publish(ctx, exec.WorkflowID, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish execution status", "execution_id", exec.ID, "error", err)
	}
}

// PollExecution inspects executionID once, replacing the tracked execution.
// It never starts the polling loop.
func (p *Poller) PollExecution(ctx context.Context, executionID string) error {
	p.mu.Lock()
	p.stopLocked()
	p.gen++
	gen := p.gen
	p.resetLocked()
	p.execID = executionID
	p.loading = true
	p.mu.Unlock()

	exec, err := p.client.GetExecution(ctx, executionID)

	p.mu.Lock()

	if gen != p.gen {
		p.mu.Unlock()

		return ErrCleared
	}

	p.loading = false

	if err != nil {
		p.errMsg = remote.Message(err)
		snap := p.snapshotLocked()
		p.mu.Unlock()

		p.notify(snap)

		return fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	p.mu.Unlock()

	if _, applied := p.apply(ctx, gen, exec); !applied {
		return ErrCleared
	}

	return nil
}

// Clear stops polling and returns to idle, discarding the execution.
func (p *Poller) Clear() {
	p.mu.Lock()
	p.stopLocked()
	p.gen++
	p.resetLocked()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
}

// Close stops polling for good. Calling it more than once is safe.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.gen++
}

// Polling reports whether a polling loop is active.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancel != nil
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) resetLocked() {
	p.state = StateIdle
	p.execID = ""
	p.execution = nil
	p.result = nil
	p.errMsg = ""
	p.loading = false
}
