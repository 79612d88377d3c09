package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/otelhelper"
	"github.com/moogar0880/problems"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 16 << 20
)

// HTTPClient implements Client against the dagstudio REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(h *HTTPClient) {
		h.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) {
		h.logger = l
	}
}

// NewHTTPClient creates a client for the API served at baseURL, e.g. http://localhost:9091.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		http:    &http.Client{Timeout: defaultTimeout},
		tracer:  otel.Tracer("dagstudio/remote"),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type graphRequest struct {
	Name  string        `json:"name"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

func newGraphRequest(w *models.Workflow) graphRequest {
	return graphRequest{
		Name:  w.Name,
		Nodes: models.CloneNodes(w.Nodes),
		Edges: models.CloneEdges(w.Edges),
	}
}

func (c *HTTPClient) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	const op = "CreateWorkflow"

	body, err := c.do(ctx, op, http.MethodPost, "/workflows", nil, newGraphRequest(workflow))
	if err != nil {
		return nil, err
	}

	return DecodeWorkflow(op, body)
}

func (c *HTTPClient) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	const op = "GetWorkflow"

	body, err := c.do(ctx, op, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, nil,
		attribute.String(otelhelper.WorkflowIDKey, id))
	if err != nil {
		return nil, err
	}

	return DecodeWorkflow(op, body)
}

func (c *HTTPClient) UpdateWorkflow(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	const op = "UpdateWorkflow"

	body, err := c.do(ctx, op, http.MethodPut, "/workflows/"+url.PathEscape(id), nil, newGraphRequest(workflow),
		attribute.String(otelhelper.WorkflowIDKey, id))
	if err != nil {
		return nil, err
	}

	return DecodeWorkflow(op, body)
}

func (c *HTTPClient) ListWorkflows(ctx context.Context, opts models.ListOptions) (*models.WorkflowList, error) {
	const op = "ListWorkflows"

	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	if opts.Search != "" {
		query.Set("search", opts.Search)
	}

	body, err := c.do(ctx, op, http.MethodGet, "/workflows", query, nil)
	if err != nil {
		return nil, err
	}

	var list models.WorkflowList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}

	if list.Items == nil {
		list.Items = []models.WorkflowSummary{}
	}

	return &list, nil
}

func (c *HTTPClient) RunWorkflow(ctx context.Context, workflowID string) (string, error) {
	const op = "RunWorkflow"

	body, err := c.do(ctx, op, http.MethodPost, "/workflows/"+url.PathEscape(workflowID)+"/run", nil, nil,
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	if err != nil {
		return "", err
	}

	var resp struct {
		ExecutionID string `json:"execution_id"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ParseError{Op: op, Err: err}
	}

	if resp.ExecutionID == "" {
		return "", &ParseError{Op: op, Field: "execution_id", Err: errors.New("missing execution id")}
	}

	return resp.ExecutionID, nil
}

func (c *HTTPClient) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	const op = "GetExecution"

	body, err := c.do(ctx, op, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, nil,
		attribute.String(otelhelper.ExecutionIDKey, executionID))
	if err != nil {
		return nil, err
	}

	var exec models.Execution
	if err := json.Unmarshal(body, &exec); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}

	return &exec, nil
}

func (c *HTTPClient) ListWorkflowVersions(ctx context.Context, workflowID string) (*models.VersionList, error) {
	const op = "ListWorkflowVersions"

	body, err := c.do(ctx, op, http.MethodGet, "/workflows/"+url.PathEscape(workflowID)+"/versions", nil, nil,
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	if err != nil {
		return nil, err
	}

	var list models.VersionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}

	if list.Versions == nil {
		list.Versions = []models.WorkflowVersion{}
	}

	return &list, nil
}

func (c *HTTPClient) GetWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.WorkflowVersion, error) {
	const op = "GetWorkflowVersion"

	body, err := c.do(ctx, op, http.MethodGet, versionPath(workflowID, versionNumber), nil, nil,
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.VersionNumberKey, versionNumber))
	if err != nil {
		return nil, err
	}

	return DecodeVersion(op, body)
}

func (c *HTTPClient) RestoreWorkflowVersion(ctx context.Context, workflowID string, versionNumber int) (*models.Workflow, error) {
	const op = "RestoreWorkflowVersion"

	body, err := c.do(ctx, op, http.MethodPost, versionPath(workflowID, versionNumber)+"/restore", nil, nil,
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.VersionNumberKey, versionNumber))
	if err != nil {
		return nil, err
	}

	return DecodeWorkflow(op, body)
}

func versionPath(workflowID string, versionNumber int) string {
	return "/workflows/" + url.PathEscape(workflowID) + "/versions/" + strconv.Itoa(versionNumber)
}

// do sends one request and returns the body of a 2xx response.
func (c *HTTPClient) do(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	payload any,
	attrs ...attribute.KeyValue,
) ([]byte, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "remote."+op,
		append(attrs, attribute.String("http.method", method), attribute.String("http.path", path))...)
	defer span.End()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("%s: failed to encode request: %w", op, err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		otelhelper.SetError(span, err)
		c.logger.DebugContext(ctx, "Remote call got no response", "op", op, "error", err)

		return nil, NewNoResponseError(op, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.DebugContext(ctx, "Failed to close response body", "op", op, "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, NewNoResponseError(op, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := decodeServerError(op, resp.StatusCode, body)
		otelhelper.SetError(span, remoteErr)

		return nil, remoteErr
	}

	return body, nil
}

// decodeServerError reads an RFC 7807 problem or an {"error": "..."} body.
func decodeServerError(op string, status int, body []byte) *RemoteError {
	var problem problems.Problem
	if err := json.Unmarshal(body, &problem); err == nil && (problem.Detail != "" || problem.Title != "") {
		message := problem.Detail
		if message == "" {
			message = problem.Title
		}

		return NewServerError(op, status, problem.Type, message)
	}

	var legacy struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	if err := json.Unmarshal(body, &legacy); err == nil && legacy.Error != "" {
		return NewServerError(op, status, legacy.Code, legacy.Error)
	}

	return NewServerError(op, status, "", strings.TrimSpace(string(body)))
}
