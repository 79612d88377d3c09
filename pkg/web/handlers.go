// Package web provides the HTTP handlers of the dagstudio REST API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/dagstudio/pkg/otelhelper"
	"github.com/dukex/dagstudio/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	validator        *validator.Validate
	tracer           trace.Tracer
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		validator:        validator,
		tracer:           otel.Tracer("dagstudio-api"),
	}
}

// Register mounts the workflow and execution routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Post("/:id/run", h.RunWorkflow)
	w.Get("/:id/executions", h.ListWorkflowExecutions)
	w.Get("/:id/versions", h.ListWorkflowVersions)
	w.Get("/:id/versions/:version", h.GetWorkflowVersion)
	w.Post("/:id/versions/:version/restore", h.RestoreWorkflowVersion)

	router.Get("/executions/:id", h.GetExecution)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	var query ListWorkflowsQuery
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	list, err := h.workflowService.List(c.Context(), services.ListWorkflowsRequest{
		Limit:  query.Limit,
		Offset: query.Offset,
		Search: query.Search,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(list)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	ctx, span := otelhelper.StartSpan(c.Context(), h.tracer, "api.CreateWorkflow")
	defer span.End()

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(ctx, services.GraphInput{
		Name:  req.Name,
		Nodes: req.Nodes,
		Edges: req.Edges,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return handleServiceError(c, err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, created.ID))

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	ctx, span := otelhelper.StartSpan(c.Context(), h.tracer, "api.UpdateWorkflow",
		attribute.String(otelhelper.WorkflowIDKey, id))
	defer span.End()

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(ctx, id, services.GraphInput{
		Name:  req.Name,
		Nodes: req.Nodes,
		Edges: req.Edges,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	ctx, span := otelhelper.StartSpan(c.Context(), h.tracer, "api.RunWorkflow",
		attribute.String(otelhelper.WorkflowIDKey, id))
	defer span.End()

	execution, err := h.executionService.Run(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleServiceError(c, err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	return c.Status(fiber.StatusAccepted).JSON(RunWorkflowResponse{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      execution.Status,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	var query ListExecutionsQuery
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.executionService.ListByWorkflow(c.Context(), c.Params("id"), query.Limit, query.Offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	limit := query.Limit
	if limit == 0 {
		limit = services.DefaultExecutionListLimit
	}

	return c.JSON(ExecutionListResponse{
		Executions: executions,
		Limit:      limit,
		Offset:     query.Offset,
	})
}

func (h *APIHandlers) ListWorkflowVersions(c fiber.Ctx) error {
	versions, err := h.workflowService.Versions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(versions)
}

func (h *APIHandlers) GetWorkflowVersion(c fiber.Ctx) error {
	number, err := versionParam(c)
	if err != nil {
		return badRequest(c, "Version must be a positive integer")
	}

	version, err := h.workflowService.Version(c.Context(), c.Params("id"), number)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

func (h *APIHandlers) RestoreWorkflowVersion(c fiber.Ctx) error {
	number, err := versionParam(c)
	if err != nil {
		return badRequest(c, "Version must be a positive integer")
	}

	id := c.Params("id")

	ctx, span := otelhelper.StartSpan(c.Context(), h.tracer, "api.RestoreWorkflowVersion",
		attribute.String(otelhelper.WorkflowIDKey, id),
		attribute.Int(otelhelper.VersionNumberKey, number))
	defer span.End()

	restored, err := h.workflowService.Restore(ctx, id, number)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleServiceError(c, err)
	}

	return c.JSON(restored)
}

func versionParam(c fiber.Ctx) (int, error) {
	number, err := strconv.Atoi(c.Params("version"))
	if err != nil {
		return 0, err
	}

	if number < 1 {
		return 0, strconv.ErrRange
	}

	return number, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "dagstudio API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "dagstudio API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
