package workflows

import (
	"context"
	"fmt"
	"sync"

	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/pkg/models"
)

// memStore is an in-memory implementation of the WorkflowStore and
// ExecutionStore interfaces for engine and registry tests.
type memStore struct {
	mu         sync.Mutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.WorkflowExecution
	execOrder  []string

	// failExecutionsFor makes execution creation fail for one workflow ID,
	// simulating an unavailable persistence layer for that firing.
	failExecutionsFor string
}

func newMemStore() *memStore {
	return &memStore{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.WorkflowExecution),
	}
}

func (s *memStore) Create(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *workflow
	s.workflows[workflow.ID] = &copied
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *workflow
	return &copied, nil
}

func (s *memStore) List(ctx context.Context, isActive *bool) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memStore) Update(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[workflow.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *workflow
	s.workflows[workflow.ID] = &copied
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *memStore) Match(ctx context.Context, query models.TriggerQuery) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.Workflow
	for _, workflow := range s.workflows {
		if !workflow.IsActive {
			continue
		}
		spec := workflow.Trigger
		if spec.Kind != query.Kind || spec.EntityKind != query.EntityKind {
			continue
		}
		if !wildcardEq(scopeKindString(spec.ScopeKind), scopeKindString(query.ScopeKind)) ||
			!wildcardEq(spec.ScopeID, query.ScopeID) ||
			!wildcardEq(spec.StatusFrom, query.StatusFrom) ||
			!wildcardEq(spec.StatusTo, query.StatusTo) {
			continue
		}
		copied := *workflow
		matches = append(matches, &copied)
	}
	return matches, nil
}

// wildcardEq mirrors the SQL matching rule: an unset spec field matches any
// event value, a set spec field must equal it exactly.
func wildcardEq(spec, event *string) bool {
	if spec == nil {
		return true
	}
	return event != nil && *spec == *event
}

func scopeKindString(kind *models.ScopeKind) *string {
	if kind == nil {
		return nil
	}
	s := string(*kind)
	return &s
}

func (s *memStore) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failExecutionsFor != "" && execution.WorkflowID == s.failExecutionsFor {
		return fmt.Errorf("execution store unavailable")
	}
	copied := *execution
	s.executions[execution.ID] = &copied
	s.execOrder = append(s.execOrder, execution.ID)
	return nil
}

func (s *memStore) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.executions[execution.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status.Terminal() {
		return repository.ErrExecutionFinished
	}
	copied := *execution
	s.executions[execution.ID] = &copied
	return nil
}

func (s *memStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var list []*models.WorkflowExecution
	for i := len(s.execOrder) - 1; i >= 0; i-- {
		execution := s.executions[s.execOrder[i]]
		if filter.WorkflowID != nil && execution.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Status != nil && execution.Status != *filter.Status {
			continue
		}
		copied := *execution
		list = append(list, &copied)
	}
	if filter.Offset >= len(list) {
		return nil, nil
	}
	list = list[filter.Offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// storedExecution returns the store's copy of an execution.
func (s *memStore) storedExecution(id string) *models.WorkflowExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions[id]
}

// stubCapability is a configurable step capability for tests.
type stubCapability struct {
	kind models.StepKind
	run  func(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error)
}

func (c *stubCapability) Kind() models.StepKind { return c.kind }

func (c *stubCapability) Schema() models.StepTypeSchema {
	return models.StepTypeSchema{Kind: c.kind, Title: string(c.kind)}
}

func (c *stubCapability) Run(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
	return c.run(ctx, config, trigger)
}

func stubRegistry(capabilities ...Capability) *CapabilityRegistry {
	registry := NewCapabilityRegistry()
	for _, capability := range capabilities {
		registry.Register(capability)
	}
	return registry
}

func passingCapability(kind models.StepKind) Capability {
	return &stubCapability{kind: kind, run: func(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
		return &StepResult{OK: true, Message: "ok"}, nil
	}}
}

func failingCapability(kind models.StepKind, message string) Capability {
	return &stubCapability{kind: kind, run: func(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
		return &StepResult{OK: false, Message: message}, nil
	}}
}
