// Package workflow holds the workflow being edited: its graph, the edits
// applied to it and its synchronization with the remote collaborator.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/dagstudio/pkg/dag"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
)

// ErrSuperseded is returned by a load or save whose response arrived after a
// newer load, save or reset started. The response is discarded.
var ErrSuperseded = errors.New("superseded by a newer operation")

// Store owns the current workflow. Every method is safe for concurrent use;
// remote calls run without holding the lock and generation counters decide
// which responses are still current.
type Store struct {
	client remote.Client
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	id        string
	name      string
	version   int
	nodes     []models.Node
	edges     []models.Edge
	versions  *models.VersionList
	inflight  int
	lastErr   error
	lastToken int64

	saveGen     uint64
	loadGen     uint64
	versionsGen uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the clock used for node id tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty draft store backed by client.
func NewStore(client remote.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		now:    time.Now,
		nodes:  []models.Node{},
		edges:  []models.Edge{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the bound server id, or "" for a draft.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

// Name returns the name of the last loaded or saved workflow.
func (s *Store) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.name
}

// Version returns the server version of the last loaded or saved workflow.
func (s *Store) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version
}

// Loading reports whether a remote operation is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inflight > 0
}

// Err returns the error of the last failed operation, cleared by the next success.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Nodes returns a copy of the current nodes.
func (s *Store) Nodes() []models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.CloneNodes(s.nodes)
}

// Edges returns a copy of the current edges.
func (s *Store) Edges() []models.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.CloneEdges(s.edges)
}

// SetNodes replaces the node list wholesale, as a canvas does after a drag.
// Edges left without an endpoint are removed with it.
func (s *Store) SetNodes(nodes []models.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = models.CloneNodes(nodes)

	ids := make(map[string]struct{}, len(s.nodes))
	for _, n := range s.nodes {
		ids[n.ID] = struct{}{}
	}

	s.edges = slices.DeleteFunc(s.edges, func(e models.Edge) bool {
		_, src := ids[e.Source]
		_, dst := ids[e.Target]

		return !src || !dst
	})
}

// SetEdges replaces the edge list wholesale.
func (s *Store) SetEdges(edges []models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = models.CloneEdges(edges)
}

// Snapshot returns a deep copy of the current workflow.
func (s *Store) Snapshot() models.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked(s.name)
}

func (s *Store) snapshotLocked(name string) models.Workflow {
	return models.Workflow{
		ID:      s.id,
		Name:    name,
		Version: s.version,
		Nodes:   models.CloneNodes(s.nodes),
		Edges:   models.CloneEdges(s.edges),
	}
}

// Fingerprint hashes the current graph under the given name.
func (s *Store) Fingerprint(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Fingerprint(name, s.nodes, s.edges)
}

// Validate runs the DAG validator over the current graph.
func (s *Store) Validate() dag.Result {
	wf := s.Snapshot()

	return dag.Validate(&wf)
}

// AddNode appends a default-configured node of kind and returns it.
func (s *Store) AddNode(kind models.NodeKind, position models.Position) models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.now().UnixMilli()
	if token <= s.lastToken {
		token = s.lastToken + 1
	}

	s.lastToken = token

	node := models.NewNode(string(kind)+"-"+strconv.FormatInt(token, 10), kind, position)
	s.nodes = append(s.nodes, node)

	return node.Clone()
}

// UpdateNode shallow-merges patch into the configuration of node id. It
// reports false when no such node exists, and an error when the merged data
// does not fit the node's kind; the node is left unchanged in both cases.
func (s *Store) UpdateNode(id string, patch map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfNode(id)
	if i < 0 {
		return false, nil
	}

	node := s.nodes[i]

	merged, err := mergeConfig(node, patch)
	if err != nil {
		return true, fmt.Errorf("failed to update node %s: %w", id, err)
	}

	s.nodes[i].Config = merged

	return true, nil
}

func mergeConfig(node models.Node, patch map[string]any) (models.NodeConfig, error) {
	current := map[string]any{}

	switch c := node.Config.(type) {
	case nil:
	case *models.UnknownConfig:
		if err := json.Unmarshal(c.Raw, &current); err != nil {
			return nil, err
		}
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(data, &current); err != nil {
			return nil, err
		}
	}

	maps.Copy(current, patch)

	data, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateConfigShape(node.Kind, data); err != nil {
		return nil, err
	}

	return models.DecodeConfig(node.Kind, data)
}

// MoveNode sets the canvas position of node id.
func (s *Store) MoveNode(id string, position models.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfNode(id)
	if i < 0 {
		return false
	}

	s.nodes[i].Position = position

	return true
}

// DeleteNode removes node id together with every edge that touches it.
func (s *Store) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfNode(id)
	if i < 0 {
		return false
	}

	s.nodes = slices.Delete(s.nodes, i, i+1)
	s.edges = slices.DeleteFunc(s.edges, func(e models.Edge) bool {
		return e.Source == id || e.Target == id
	})

	return true
}

// AddEdge connects source to target. Adding an edge that already exists
// returns the existing one. No validation runs here.
func (s *Store) AddEdge(source, target string) models.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.EdgeID(source, target)
	for _, e := range s.edges {
		if e.ID == id {
			return e
		}
	}

	edge := models.Edge{ID: id, Source: source, Target: target}
	s.edges = append(s.edges, edge)

	return edge
}

// DeleteEdge removes edge id.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.edges)
	s.edges = slices.DeleteFunc(s.edges, func(e models.Edge) bool { return e.ID == id })

	return len(s.edges) != before
}

func (s *Store) indexOfNode(id string) int {
	return slices.IndexFunc(s.nodes, func(n models.Node) bool { return n.ID == id })
}

// Reset clears the store to an empty draft and invalidates in-flight loads and saves.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = ""
	s.name = ""
	s.version = 0
	s.nodes = []models.Node{}
	s.edges = []models.Edge{}
	s.versions = nil
	s.lastErr = nil
	s.saveGen++
	s.loadGen++
	s.versionsGen++
}

// Load fetches workflow id and adopts it. On failure the current graph is kept.
func (s *Store) Load(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	s.loadGen++
	gen := s.loadGen
	s.inflight++
	s.mu.Unlock()

	wf, err := s.client.GetWorkflow(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--

	if gen != s.loadGen {
		s.logger.DebugContext(ctx, "Discarding stale load response", "workflow_id", id)

		return nil, ErrSuperseded
	}

	if err != nil {
		s.lastErr = err
		s.logger.ErrorContext(ctx, "Failed to load workflow", "workflow_id", id, "error", err)

		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	s.adoptLocked(wf)

	return wf.Clone(), nil
}

// adoptLocked makes wf the current workflow. Saves started before it are stale.
func (s *Store) adoptLocked(wf *models.Workflow) {
	s.id = wf.ID
	s.name = wf.Name
	s.version = wf.Version
	s.nodes = models.CloneNodes(wf.Nodes)
	s.edges = models.CloneEdges(wf.Edges)
	s.lastErr = nil
	s.saveGen++
}

// Save validates the current graph and creates or updates it remotely under
// name. A graph that fails validation returns *dag.ValidationError and never
// reaches the collaborator.
func (s *Store) Save(ctx context.Context, name string) (string, error) {
	s.mu.Lock()

	wf := s.snapshotLocked(name)

	result := dag.Validate(&wf)
	if !result.Valid {
		err := result.Err()
		s.lastErr = err
		s.mu.Unlock()

		return "", err
	}

	s.saveGen++
	gen := s.saveGen
	s.inflight++
	s.mu.Unlock()

	payload := dag.Normalize(&wf)

	var (
		saved *models.Workflow
		err   error
	)

	if wf.ID == "" {
		saved, err = s.client.CreateWorkflow(ctx, payload)
	} else {
		saved, err = s.client.UpdateWorkflow(ctx, wf.ID, payload)
	}

	if err == nil && saved.ID == "" {
		err = &remote.ParseError{Op: "SaveWorkflow", Field: "id", Err: errors.New("response carries no workflow id")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--

	if gen != s.saveGen {
		s.logger.DebugContext(ctx, "Discarding stale save response", "workflow_id", wf.ID)

		return "", ErrSuperseded
	}

	if err != nil {
		s.lastErr = err
		s.logger.ErrorContext(ctx, "Failed to save workflow", "workflow_id", wf.ID, "error", err)

		return "", fmt.Errorf("failed to save workflow: %w", err)
	}

	s.id = saved.ID
	s.version = saved.Version
	s.name = name
	s.lastErr = nil

	s.logger.InfoContext(ctx, "Workflow saved", "workflow_id", saved.ID, "version", saved.Version)

	return saved.ID, nil
}

// Versions returns the cached version list, or nil before the first LoadVersions.
func (s *Store) Versions() *models.VersionList {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions == nil {
		return nil
	}

	cp := *s.versions
	cp.Versions = slices.Clone(s.versions.Versions)

	return &cp
}

// LoadVersions fetches and caches the version history of workflowID.
func (s *Store) LoadVersions(ctx context.Context, workflowID string) (*models.VersionList, error) {
	s.mu.Lock()
	s.versionsGen++
	gen := s.versionsGen
	s.inflight++
	s.mu.Unlock()

	list, err := s.client.ListWorkflowVersions(ctx, workflowID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--

	if gen != s.versionsGen {
		return nil, ErrSuperseded
	}

	if err != nil {
		s.lastErr = err

		return nil, fmt.Errorf("failed to load versions of workflow %s: %w", workflowID, err)
	}

	s.versions = list

	return list, nil
}

// LoadVersion fetches one historical version. The current graph is not touched.
func (s *Store) LoadVersion(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	version, err := s.client.GetWorkflowVersion(ctx, workflowID, versionNumber)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		return nil, fmt.Errorf("failed to load version %d of workflow %s: %w", versionNumber, workflowID, err)
	}

	return version, nil
}

// RestoreVersion restores a historical version server-side, reloads the
// workflow and refreshes the version list, since a restore creates a version.
func (s *Store) RestoreVersion(ctx context.Context, workflowID string, versionNumber int) (*models.Workflow, error) {
	restored, err := s.client.RestoreWorkflowVersion(ctx, workflowID, versionNumber)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		return nil, fmt.Errorf("failed to restore version %d of workflow %s: %w", versionNumber, workflowID, err)
	}

	wf, err := s.Load(ctx, workflowID)
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return nil, err
		}

		s.logger.WarnContext(ctx, "Reload after restore failed, using restore response",
			"workflow_id", workflowID, "error", err)

		s.mu.Lock()
		s.loadGen++
		s.adoptLocked(restored)
		s.mu.Unlock()

		wf = restored.Clone()
	}

	if _, err := s.LoadVersions(ctx, workflowID); err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.WarnContext(ctx, "Failed to refresh versions after restore", "workflow_id", workflowID, "error", err)
	}

	return wf, nil
}
