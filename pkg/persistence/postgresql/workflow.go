package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// List returns one page of workflows, most recently updated first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	where := ""
	args := []any{}

	if search := strings.TrimSpace(opts.Search); search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+escapeLike(search)+"%")
	}

	var total int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	query := `
		SELECT
			id
		  , name
		  , version
		  , nodes
		  , edges
		  , created_at
		  , updated_at
		FROM workflows
		` + where + `
		ORDER BY updated_at DESC, id`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return &persistence.WorkflowListResult{Workflows: workflows, TotalCount: total}, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id
		  , name
		  , version
		  , nodes
		  , edges
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// Save upserts a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = workflow.CreatedAt
	}

	nodes, edges, err := marshalGraph(workflow.Nodes, workflow.Edges)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, version, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at`,
		workflow.ID, workflow.Name, workflow.Version, nodes, edges, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// SaveVersion inserts an immutable snapshot.
func (r *WorkflowRepository) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	nodes, edges, err := marshalGraph(version.Nodes, version.Edges)
	if err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_versions (id, workflow_id, version_number, name, nodes, edges, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		version.ID, version.WorkflowID, version.VersionNumber, version.Name, nodes, edges, version.CreatedAt)
	if err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	return nil
}

// Versions returns every snapshot of workflowID, newest first.
func (r *WorkflowRepository) Versions(ctx context.Context, workflowID string) ([]models.WorkflowVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id
		  , workflow_id
		  , version_number
		  , name
		  , nodes
		  , edges
		  , created_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version_number DESC`, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("Versions", workflowID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]models.WorkflowVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("Versions", workflowID, err)
		}

		versions = append(versions, *version)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("Versions", workflowID, err)
	}

	return versions, nil
}

// Version returns one snapshot of workflowID.
func (r *WorkflowRepository) Version(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id
		  , workflow_id
		  , version_number
		  , name
		  , nodes
		  , edges
		  , created_at
		FROM workflow_versions
		WHERE workflow_id = $1 AND version_number = $2`, workflowID, versionNumber)

	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("Version", workflowID, persistence.ErrVersionNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Version", workflowID, err)
	}

	return version, nil
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow     models.Workflow
		nodes, edges []byte
	)

	err := row.Scan(&workflow.ID, &workflow.Name, &workflow.Version, &nodes, &edges,
		&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	workflow.Nodes, workflow.Edges, err = unmarshalGraph(nodes, edges)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func scanVersion(row scanner) (*models.WorkflowVersion, error) {
	var (
		version      models.WorkflowVersion
		nodes, edges []byte
	)

	err := row.Scan(&version.ID, &version.WorkflowID, &version.VersionNumber, &version.Name,
		&nodes, &edges, &version.CreatedAt)
	if err != nil {
		return nil, err
	}

	version.Nodes, version.Edges, err = unmarshalGraph(nodes, edges)
	if err != nil {
		return nil, err
	}

	return &version, nil
}

func marshalGraph(nodes []models.Node, edges []models.Edge) ([]byte, []byte, error) {
	nodesJSON, err := json.Marshal(models.CloneNodes(nodes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(models.CloneEdges(edges))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal edges: %w", err)
	}

	return nodesJSON, edgesJSON, nil
}

func unmarshalGraph(nodesJSON, edgesJSON []byte) ([]models.Node, []models.Edge, error) {
	nodes := []models.Node{}
	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	edges := []models.Edge{}
	if err := json.Unmarshal(edgesJSON, &edges); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return nodes, edges, nil
}

// escapeLike escapes the ILIKE wildcards so search matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
