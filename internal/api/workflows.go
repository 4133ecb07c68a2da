// Package api contains the HTTP handlers for the governance workflow service
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"datagov-catalog/backend/internal/compliance"
	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/internal/workflows"
	"datagov-catalog/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Catalog    *workflows.Catalog
	Engine     *workflows.Engine
	Executions repository.ExecutionStore
	Policies   compliance.PolicyClient
	Logger     *logging.Logger
}

// NewServer creates a new Server.
func NewServer(catalog *workflows.Catalog, engine *workflows.Engine, executions repository.ExecutionStore, policies compliance.PolicyClient, logger *logging.Logger) *Server {
	return &Server{
		Catalog:    catalog,
		Engine:     engine,
		Executions: executions,
		Policies:   policies,
		Logger:     logger,
	}
}

// RegisterRoutes mounts the workflow routes on the given group.
func RegisterRoutes(g *echo.Group, s *Server) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/step-types", s.StepTypes)
	g.GET("/workflows/executions", s.ListExecutions)
	g.POST("/workflows/validate", s.ValidateWorkflow)
	g.POST("/workflows/load-defaults", s.LoadDefaults)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.POST("/workflows/:id/toggle-active", s.ToggleWorkflowActive)
	g.POST("/workflows/:id/duplicate", s.DuplicateWorkflow)
	g.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	g.GET("/workflows/:id/referenced-policies", s.ReferencedPolicies)
}

// ListWorkflows returns all workflows, optionally filtered by active status
// (GET /api/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	var isActive *bool
	if raw := c.QueryParam("is_active"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid is_active filter: "+raw)
		}
		isActive = &value
	}

	list, err := s.Catalog.List(ctx, isActive)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, models.WorkflowListResponse{Workflows: list, Total: len(list)})
}

// GetWorkflow returns a single workflow by ID
// (GET /api/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	workflow, err := s.Catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// CreateWorkflow validates and persists a new workflow
// (POST /api/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var workflow models.Workflow
	if err := c.Bind(&workflow); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	created, err := s.Catalog.Create(c.Request().Context(), &workflow, actorFrom(c))
	if err != nil {
		var vErr *workflows.ValidationError
		if errors.As(err, &vErr) {
			return c.JSON(http.StatusBadRequest, vErr.Result)
		}
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, created)
}

// UpdateWorkflow applies a partial update to a workflow
// (PUT /api/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	var update models.WorkflowUpdate
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	workflow, err := s.Catalog.Update(c.Request().Context(), c.Param("id"), update, actorFrom(c))
	if err != nil {
		var vErr *workflows.ValidationError
		if errors.As(err, &vErr) {
			return c.JSON(http.StatusBadRequest, vErr.Result)
		}
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow removes a workflow; defaults are refused
// (DELETE /api/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.Catalog.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Workflow deleted"})
}

// ToggleWorkflowActive flips a workflow's active flag
// (POST /api/workflows/:id/toggle-active)
func (s *Server) ToggleWorkflowActive(c echo.Context) error {
	raw := c.QueryParam("is_active")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active query parameter is required")
	}
	active, err := strconv.ParseBool(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid is_active value: "+raw)
	}

	workflow, err := s.Catalog.ToggleActive(c.Request().Context(), c.Param("id"), active, actorFrom(c))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// DuplicateWorkflow deep-copies a workflow under a new name
// (POST /api/workflows/:id/duplicate)
func (s *Server) DuplicateWorkflow(c echo.Context) error {
	newName := c.QueryParam("new_name")
	if newName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new_name query parameter is required")
	}

	workflow, err := s.Catalog.Duplicate(c.Request().Context(), c.Param("id"), newName, actorFrom(c))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// ExecuteWorkflow manually runs a workflow, bypassing trigger matching
// (POST /api/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	entityKind := c.QueryParam("entity_kind")
	entityID := c.QueryParam("entity_id")
	if entityKind == "" || entityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity_kind and entity_id query parameters are required")
	}

	workflow, err := s.Catalog.Get(ctx, c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}

	trigger := &models.TriggerContext{
		Kind:       models.TriggerManual,
		EntityKind: models.EntityKind(entityKind),
		EntityID:   entityID,
		Actor:      actorFrom(c),
	}
	if name := c.QueryParam("entity_name"); name != "" {
		trigger.EntityName = &name
	}

	execution, err := s.Engine.Execute(ctx, workflow, trigger)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to execute workflow: "+err.Error())
	}
	return c.JSON(http.StatusOK, execution)
}

// ValidateWorkflow runs validation without persisting anything
// (POST /api/workflows/validate)
func (s *Server) ValidateWorkflow(c echo.Context) error {
	var workflow models.Workflow
	if err := c.Bind(&workflow); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return c.JSON(http.StatusOK, s.Catalog.Validate(&workflow))
}

// StepTypes lists the schemas of all registered step capabilities
// (GET /api/workflows/step-types)
func (s *Server) StepTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Catalog.StepTypeSchemas())
}

// ListExecutions returns a paginated execution listing
// (GET /api/workflows/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	filter := models.ExecutionFilter{Limit: 50}

	if workflowID := c.QueryParam("workflow_id"); workflowID != "" {
		filter.WorkflowID = &workflowID
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := models.ExecutionStatus(raw)
		filter.Status = &status
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
		}
		filter.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be non-negative")
		}
		filter.Offset = offset
	}

	executions, err := s.Executions.ListExecutions(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, models.ExecutionListResponse{Executions: executions, Total: len(executions)})
}

// LoadDefaults installs the built-in default workflows
// (POST /api/workflows/load-defaults)
func (s *Server) LoadDefaults(c echo.Context) error {
	count, err := s.Catalog.LoadDefaults(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Defaults loaded", "created": count})
}

// ReferencedPolicies lists the compliance policies a workflow's policy_check
// steps reference
// (GET /api/workflows/:id/referenced-policies)
func (s *Server) ReferencedPolicies(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("id")

	policyIDs, err := s.Catalog.ReferencedPolicies(ctx, workflowID)
	if err != nil {
		return s.mapError(err)
	}

	policies := make([]map[string]any, 0, len(policyIDs))
	for _, policyID := range policyIDs {
		entry := map[string]any{"id": policyID}
		if policy, err := s.Policies.GetPolicy(ctx, policyID); err == nil {
			entry["name"] = policy.Name
			entry["slug"] = policy.Slug
			entry["category"] = policy.Category
			entry["severity"] = policy.Severity
			entry["is_active"] = policy.IsActive
		} else {
			s.Logger.Warn("Failed to resolve policy %s: %v", policyID, err)
		}
		policies = append(policies, entry)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"workflow_id":  workflowID,
		"policy_count": len(policies),
		"policies":     policies,
	})
}

// mapError converts catalog errors into HTTP errors.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	case errors.Is(err, workflows.ErrDefaultWorkflow):
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot delete default workflows. Disable it instead.")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// actorFrom extracts the acting user's identity when the gateway supplies it.
func actorFrom(c echo.Context) *string {
	if email := c.Request().Header.Get("X-User-Email"); email != "" {
		return &email
	}
	return nil
}
