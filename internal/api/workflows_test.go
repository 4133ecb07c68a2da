package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagov-catalog/backend/internal/compliance"
	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/internal/workflows"
	"datagov-catalog/backend/pkg/models"
)

// fakeStore backs the API tests with in-memory workflow and execution storage.
type fakeStore struct {
	workflows  map[string]*models.Workflow
	executions []*models.WorkflowExecution
}

func newFakeStore() *fakeStore {
	return &fakeStore{workflows: make(map[string]*models.Workflow)}
}

func (s *fakeStore) Create(ctx context.Context, workflow *models.Workflow) error {
	copied := *workflow
	s.workflows[workflow.ID] = &copied
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *workflow
	return &copied, nil
}

func (s *fakeStore) List(ctx context.Context, isActive *bool) ([]*models.Workflow, error) {
	var list []*models.Workflow
	for _, workflow := range s.workflows {
		if isActive != nil && workflow.IsActive != *isActive {
			continue
		}
		copied := *workflow
		list = append(list, &copied)
	}
	return list, nil
}

func (s *fakeStore) Update(ctx context.Context, workflow *models.Workflow) error {
	if _, ok := s.workflows[workflow.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *workflow
	s.workflows[workflow.ID] = &copied
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.workflows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *fakeStore) Match(ctx context.Context, query models.TriggerQuery) ([]*models.Workflow, error) {
	return nil, nil
}

func (s *fakeStore) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	copied := *execution
	s.executions = append(s.executions, &copied)
	return nil
}

func (s *fakeStore) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	for i, stored := range s.executions {
		if stored.ID != execution.ID {
			continue
		}
		if stored.Status.Terminal() {
			return repository.ErrExecutionFinished
		}
		copied := *execution
		s.executions[i] = &copied
		return nil
	}
	return repository.ErrNotFound
}

func (s *fakeStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	var list []*models.WorkflowExecution
	for i := len(s.executions) - 1; i >= 0; i-- {
		execution := s.executions[i]
		if filter.WorkflowID != nil && execution.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Status != nil && execution.Status != *filter.Status {
			continue
		}
		copied := *execution
		list = append(list, &copied)
	}
	return list, nil
}

type fakePolicyClient struct {
	policies map[string]*compliance.Policy
}

func (c *fakePolicyClient) GetPolicy(ctx context.Context, id string) (*compliance.Policy, error) {
	policy, ok := c.policies[id]
	if !ok {
		return nil, compliance.ErrPolicyNotFound
	}
	return policy, nil
}

func newTestServer(store *fakeStore) *echo.Echo {
	logger := logging.NewLogger()
	policies := &fakePolicyClient{policies: map[string]*compliance.Policy{
		"pol-1": {ID: "pol-1", Name: "PII Ownership", Slug: "pii-ownership", Severity: "high", IsActive: true},
	}}
	capabilities := workflows.DefaultCapabilities(policies, "", logger)
	catalog := workflows.NewCatalog(store, capabilities, logger)
	engine := workflows.NewEngine(store, capabilities, logger, 0)

	e := echo.New()
	e.HTTPErrorHandler = ProblemDetailsHandler
	RegisterRoutes(e.Group("/api"), NewServer(catalog, engine, store, policies, logger))
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const validWorkflowJSON = `{
	"name": "deletion audit",
	"trigger": {"trigger_kind": "on_delete", "entity_kind": "data_contract"},
	"is_active": true,
	"steps": [
		{"name": "notify stewards", "step_kind": "notification",
		 "config": {"message": "contract removed"}, "order": 0}
	]
}`

func TestCreateAndGetWorkflow(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "deletion audit", created.Name)
	require.Len(t, created.Steps, 1)
	assert.Equal(t, models.FailureHalt, created.Steps[0].OnFailure)

	rec = doRequest(e, http.MethodGet, "/api/workflows/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.WorkflowListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestCreateInvalidWorkflow(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows", `{
		"name": "",
		"trigger": {"trigger_kind": "on_delete", "entity_kind": "data_contract"}
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "name is required")
}

func TestGetMissingWorkflowIsProblemDetails(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodGet, "/api/workflows/2b6bfb4e-0000-0000-0000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "Workflow not found", problem.Detail)
}

func TestDeleteDefaultWorkflowRefused(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store)

	rec := doRequest(e, http.MethodPost, "/api/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	stored := store.workflows[created.ID]
	stored.IsDefault = true

	rec = doRequest(e, http.MethodDelete, "/api/workflows/"+created.ID, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cannot delete default workflows")

	// The workflow can still be deactivated.
	rec = doRequest(e, http.MethodPost, "/api/workflows/"+created.ID+"/toggle-active?is_active=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.IsActive)
}

func TestToggleActiveRequiresParam(t *testing.T) {
	e := newTestServer(newFakeStore())
	rec := doRequest(e, http.MethodPost, "/api/workflows/some-id/toggle-active", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateWorkflow(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(e, http.MethodPost, "/api/workflows/"+created.ID+"/duplicate?new_name=audit+copy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var duplicate models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &duplicate))
	assert.NotEqual(t, created.ID, duplicate.ID)
	assert.Equal(t, "audit copy", duplicate.Name)

	rec = doRequest(e, http.MethodPost, "/api/workflows/"+created.ID+"/duplicate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows/validate", `{
		"name": "transition watch",
		"trigger": {"trigger_kind": "on_status_change", "entity_kind": "dataset"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings, "wildcard status transition and no steps warn")
}

func TestManualExecute(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store)

	rec := doRequest(e, http.MethodPost, "/api/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(e, http.MethodPost,
		"/api/workflows/"+created.ID+"/execute?entity_kind=data_contract&entity_id=dc1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execution))
	assert.Equal(t, models.ExecutionSucceeded, execution.Status)
	assert.Equal(t, 1, execution.SuccessCount)

	rec = doRequest(e, http.MethodPost, "/api/workflows/"+created.ID+"/execute", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "entity params are required")
}

func TestListExecutionsEndpoint(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store)

	rec := doRequest(e, http.MethodPost, "/api/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	for range 2 {
		rec = doRequest(e, http.MethodPost,
			"/api/workflows/"+created.ID+"/execute?entity_kind=data_contract&entity_id=dc1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/workflows/executions?workflow_id="+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.ExecutionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	rec = doRequest(e, http.MethodGet, "/api/workflows/executions?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Total)

	rec = doRequest(e, http.MethodGet, "/api/workflows/executions?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStepTypes(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodGet, "/api/workflows/step-types", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var schemas []models.StepTypeSchema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schemas))
	require.Len(t, schemas, 3)

	kinds := make(map[models.StepKind]bool)
	for _, schema := range schemas {
		kinds[schema.Kind] = true
	}
	assert.True(t, kinds[models.StepPolicyCheck])
	assert.True(t, kinds[models.StepFieldCheck])
	assert.True(t, kinds[models.StepNotification])
}

func TestReferencedPoliciesEndpoint(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows", `{
		"name": "policy gate",
		"trigger": {"trigger_kind": "before_create", "entity_kind": "dataset"},
		"steps": [
			{"name": "pii", "step_kind": "policy_check", "config": {"policy_id": "pol-1"}, "order": 0},
			{"name": "ghost", "step_kind": "policy_check", "config": {"policy_id": "pol-x"}, "order": 1}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(e, http.MethodGet, "/api/workflows/"+created.ID+"/referenced-policies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		WorkflowID  string           `json:"workflow_id"`
		PolicyCount int              `json:"policy_count"`
		Policies    []map[string]any `json:"policies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, created.ID, response.WorkflowID)
	assert.Equal(t, 2, response.PolicyCount)

	byID := make(map[string]map[string]any)
	for _, policy := range response.Policies {
		byID[policy["id"].(string)] = policy
	}
	assert.Equal(t, "PII Ownership", byID["pol-1"]["name"])
	_, resolved := byID["pol-x"]["name"]
	assert.False(t, resolved, "unresolvable policies keep only their ID")
}

func TestLoadDefaultsEndpoint(t *testing.T) {
	e := newTestServer(newFakeStore())

	rec := doRequest(e, http.MethodPost, "/api/workflows/load-defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, float64(3), response["created"])

	rec = doRequest(e, http.MethodPost, "/api/workflows/load-defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Zero(t, response["created"])
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "datagov-catalog", status.Service)
}
