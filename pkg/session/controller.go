// Package session orchestrates the editing session: it composes the workflow
// store, the execution poller and the workflow history into the operations a
// user interface invokes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/dukex/dagstudio/pkg/sessionstate"
	"github.com/dukex/dagstudio/pkg/workflow"
)

const (
	DefaultWorkflowName  = "My Workflow"
	UntitledWorkflowName = "Untitled Workflow"
	DefaultHistoryLimit  = 20
)

// Confirmation prompts shown before unsaved changes are discarded.
const (
	ConfirmLeaveUnsaved   = "You have unsaved changes. Continue without saving?"
	ConfirmDiscardForNew  = "Discard current changes and start a new workflow?"
	viewingVersionMessage = "You are viewing a previous version. Please switch back to current version to save changes."
)

var (
	ErrViewingVersion = errors.New(viewingVersionMessage)
	ErrNoWorkflow     = errors.New("no saved workflow is open")
)

// Mode is what the session is currently showing.
type Mode int

const (
	ModeDraft Mode = iota
	ModeEditing
	ModeViewingVersion
)

func (m Mode) String() string {
	switch m {
	case ModeDraft:
		return "draft"
	case ModeEditing:
		return "editing"
	case ModeViewingVersion:
		return "viewing-version"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, message string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, message string) bool {
	return f(ctx, message)
}

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) bool { return true })

// Controller is the top-level session orchestrator. It is safe for
// concurrent use and never holds its lock across a remote call.
type Controller struct {
	client    remote.Client
	store     *workflow.Store
	poller    *execution.Poller
	state     sessionstate.Store
	confirmer Confirmer
	logger    *slog.Logger
	limit     int

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu               sync.Mutex
	name             string
	nameDirty        bool
	baseline         string
	viewports        map[string]models.Viewport
	viewing          *models.WorkflowVersion
	history          History
	historyGen       uint64
	selectedID       string
	validationErrors []string
	lastErr          string
	lastTerminal     string
	unsubscribe      func()
	closed           bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore uses store instead of a fresh one.
func WithStore(store *workflow.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithPoller uses poller instead of a fresh one.
func WithPoller(poller *execution.Poller) Option {
	return func(c *Controller) {
		c.poller = poller
	}
}

// WithSessionState persists viewports and the draft through state.
func WithSessionState(state sessionstate.Store) Option {
	return func(c *Controller) {
		c.state = state
	}
}

// WithConfirmer sets who is asked before unsaved changes are discarded.
// Without one, every such prompt is declined.
func WithConfirmer(confirmer Confirmer) Option {
	return func(c *Controller) {
		c.confirmer = confirmer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHistoryLimit sets the page size of the workflow history.
func WithHistoryLimit(limit int) Option {
	return func(c *Controller) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// New creates a session on an empty draft.
func New(client remote.Client, opts ...Option) *Controller {
	c := &Controller{
		client:    client,
		logger:    slog.Default(),
		limit:     DefaultHistoryLimit,
		name:      DefaultWorkflowName,
		baseline:  workflow.Fingerprint(DefaultWorkflowName, nil, nil),
		viewports: map[string]models.Viewport{models.DraftWorkflowKey: models.DefaultViewport},
		confirmer: ConfirmFunc(func(context.Context, string) bool { return false }),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = workflow.NewStore(client, workflow.WithLogger(c.logger))
	}

	if c.poller == nil {
		c.poller = execution.NewPoller(client, execution.WithLogger(c.logger))
	}

	c.history.Limit = c.limit
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.unsubscribe = c.poller.Subscribe(c.onExecution)

	return c
}

// Store returns the workflow store that canvas edits go through.
func (c *Controller) Store() *workflow.Store {
	return c.store
}

// Mode reports whether the session shows a draft, a saved workflow or a past version.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	viewing := c.viewing != nil
	c.mu.Unlock()

	switch {
	case viewing:
		return ModeViewingVersion
	case c.store.ID() == "":
		return ModeDraft
	default:
		return ModeEditing
	}
}

// WorkflowName returns the name the next save will use.
func (c *Controller) WorkflowName() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.name
}

// SetWorkflowName renames the workflow. The name stays as typed until the next save or switch.
func (c *Controller) SetWorkflowName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = name
	c.nameDirty = true
}

// HasUnsavedChanges compares the current name and graph with the last saved or loaded state.
func (c *Controller) HasUnsavedChanges() bool {
	c.mu.Lock()
	name, baseline := c.name, c.baseline
	c.mu.Unlock()

	return c.store.Fingerprint(name) != baseline
}

// LastError returns the message of the last failed operation, or "".
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// ValidationErrors returns the violations found by the last save or run attempt.
func (c *Controller) ValidationErrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.validationErrors...)
}

// SelectedHistoryID returns the workflow highlighted in the history listing.
func (c *Controller) SelectedHistoryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectedID
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = msg
}

// workflowKey keys per-workflow state such as viewports.
func (c *Controller) workflowKey() string {
	if id := c.store.ID(); id != "" {
		return id
	}

	return models.DraftWorkflowKey
}

// SetViewport remembers the canvas viewport of the current workflow.
func (c *Controller) SetViewport(viewport models.Viewport) {
	key := c.workflowKey()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.viewports[key] = viewport
}

// ActiveViewport returns the remembered viewport of the current workflow.
func (c *Controller) ActiveViewport() models.Viewport {
	key := c.workflowKey()

	c.mu.Lock()
	defer c.mu.Unlock()

	if vp, ok := c.viewports[key]; ok {
		return vp
	}

	return models.DefaultViewport
}

// Viewports returns a copy of every remembered viewport.
func (c *Controller) Viewports() map[string]models.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.viewports)
}

// EditWorkflow switches to workflow id. With unsaved changes the confirmer
// is asked first; a declined prompt returns false. Switching to the workflow
// already open does nothing.
func (c *Controller) EditWorkflow(ctx context.Context, id string) (bool, error) {
	if id == c.store.ID() {
		return true, nil
	}

	if c.HasUnsavedChanges() && !c.confirmer.Confirm(ctx, ConfirmLeaveUnsaved) {
		return false, nil
	}

	c.mu.Lock()
	c.selectedID = id
	c.mu.Unlock()

	wf, err := c.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, workflow.ErrSuperseded) {
			c.setError("Failed to load workflow: " + remote.Message(err))
		}

		return false, err
	}

	name := wf.Name
	if name == "" {
		name = UntitledWorkflowName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = name
	c.nameDirty = false
	c.baseline = workflow.Fingerprint(name, wf.Nodes, wf.Edges)
	c.viewing = nil
	c.validationErrors = nil
	c.lastErr = ""

	if _, ok := c.viewports[id]; !ok {
		c.viewports[id] = models.DefaultViewport
	}

	c.logger.InfoContext(ctx, "Editing workflow", "workflow_id", id, "name", name)

	return true, nil
}

// NewDraft discards the current workflow and starts an empty draft. With
// unsaved changes the confirmer is asked first.
func (c *Controller) NewDraft(ctx context.Context) bool {
	if c.HasUnsavedChanges() && !c.confirmer.Confirm(ctx, ConfirmDiscardForNew) {
		return false
	}

	c.store.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = DefaultWorkflowName
	c.nameDirty = false
	c.selectedID = ""
	c.baseline = workflow.Fingerprint(DefaultWorkflowName, nil, nil)
	c.viewports[models.DraftWorkflowKey] = models.DefaultViewport
	c.viewing = nil
	c.validationErrors = nil
	c.lastErr = ""

	return true
}

// Save validates and persists the current workflow, then refreshes the
// history. It fails with ErrViewingVersion while a past version is shown.
func (c *Controller) Save(ctx context.Context) (string, error) {
	id, err := c.save(ctx)
	if err != nil {
		return "", err
	}

	if err := c.RefreshHistory(ctx); err != nil && !errors.Is(err, workflow.ErrSuperseded) {
		c.logger.WarnContext(ctx, "Failed to refresh history after save", "error", err)
	}

	return id, nil
}

func (c *Controller) save(ctx context.Context) (string, error) {
	if c.Mode() == ModeViewingVersion {
		c.setError(viewingVersionMessage)

		return "", ErrViewingVersion
	}

	result := c.store.Validate()
	if !result.Valid {
		err := result.Err()

		c.mu.Lock()
		c.validationErrors = result.Errors
		c.lastErr = err.Error()
		c.mu.Unlock()

		return "", err
	}

	c.mu.Lock()
	name := c.name
	c.validationErrors = nil
	c.mu.Unlock()

	wasDraft := c.store.ID() == ""
	fingerprint := c.store.Fingerprint(name)

	id, err := c.store.Save(ctx, name)
	if err != nil {
		if !errors.Is(err, workflow.ErrSuperseded) {
			c.setError("Failed to save workflow: " + remote.Message(err))
		}

		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.baseline = fingerprint
	c.nameDirty = false
	c.selectedID = id
	c.lastErr = ""

	if _, ok := c.viewports[id]; !ok && wasDraft {
		c.viewports[id] = c.viewports[models.DraftWorkflowKey]
	}

	return id, nil
}

// Run validates, saves and then runs the current workflow. A failed run
// leaves the workflow saved.
func (c *Controller) Run(ctx context.Context) (string, error) {
	id, err := c.save(ctx)
	if err != nil {
		return "", err
	}

	execID, err := c.poller.Run(ctx, id)
	if err != nil {
		if !errors.Is(err, execution.ErrCleared) {
			c.setError("Failed to run workflow: " + remote.Message(err))
		}

		return "", err
	}

	return execID, nil
}

// RunFromHistory runs an already saved workflow without touching the editor.
func (c *Controller) RunFromHistory(ctx context.Context, workflowID string) (string, error) {
	execID, err := c.poller.Run(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, execution.ErrCleared) {
			c.setError("Failed to run workflow: " + remote.Message(err))
		}

		return "", err
	}

	c.mu.Lock()
	c.selectedID = workflowID
	c.mu.Unlock()

	return execID, nil
}

// ViewExecution inspects a past execution once.
func (c *Controller) ViewExecution(ctx context.Context, executionID string) error {
	if err := c.poller.PollExecution(ctx, executionID); err != nil {
		if !errors.Is(err, execution.ErrCleared) {
			c.setError(remote.Message(err))
		}

		return err
	}

	return nil
}

// Execution returns the state of the tracked execution.
func (c *Controller) Execution() execution.Snapshot {
	return c.poller.Snapshot()
}

// ClearExecution stops tracking the current execution.
func (c *Controller) ClearExecution() {
	c.poller.Clear()
}

// onExecution refreshes the history once per terminal execution state.
func (c *Controller) onExecution(s execution.Snapshot) {
	if s.State != execution.StateCompleted && s.State != execution.StateFailed {
		return
	}

	key := s.ExecutionID + "/" + string(s.State)

	c.mu.Lock()
	if c.closed || key == c.lastTerminal {
		c.mu.Unlock()

		return
	}

	c.lastTerminal = key
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()

		if err := c.RefreshHistory(c.bgCtx); err != nil && !errors.Is(err, workflow.ErrSuperseded) {
			c.logger.WarnContext(c.bgCtx, "Failed to refresh history after execution", "error", err)
		}
	}()
}

// Close persists the session state and releases the poller.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	err := c.Persist(ctx)

	c.unsubscribe()
	c.poller.Close()
	c.bgCancel()
	c.bg.Wait()

	if c.state != nil {
		err = errors.Join(err, c.state.Close())
	}

	return err
}
