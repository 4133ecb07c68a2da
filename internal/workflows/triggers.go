package workflows

import (
	"context"

	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/pkg/models"
)

// Mode selects whether a firing gates the caller's operation.
type Mode int

const (
	// NonBlocking firings run after the caller's own state change is durable;
	// the caller does not gate its operation on the outcome.
	NonBlocking Mode = iota
	// Blocking firings suspend the caller's operation until every matched
	// execution reaches a terminal state.
	Blocking
)

// EventOptions carries the optional fields of a trigger event.
type EventOptions struct {
	EntityName *string
	Snapshot   map[string]any
	Actor      *string
	ScopeKind  *models.ScopeKind
	ScopeID    *string
}

// Registry accepts domain events, matches them to workflow definitions and
// dispatches execution. It receives its catalog and engine at construction.
type Registry struct {
	catalog *Catalog
	engine  *Engine
	logger  *logging.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(catalog *Catalog, engine *Engine, logger *logging.Logger) *Registry {
	return &Registry{catalog: catalog, engine: engine, logger: logger}
}

// Fire matches the event against active workflow definitions and executes
// each match. Zero matches is success, not failure. A single workflow's
// engine-level error is logged and excluded from the result; it never aborts
// sibling executions. Both modes execute inline on the caller's goroutine;
// the mode states whether the caller gates its operation on the result.
func (r *Registry) Fire(ctx context.Context, event models.TriggerEvent, mode Mode) ([]*models.WorkflowExecution, error) {
	r.logger.Info("Trigger fired: %s for %s %q", event.Kind, event.EntityKind, event.EntityID)

	matches, err := r.catalog.Match(ctx, models.TriggerQuery{
		Kind:       event.Kind,
		EntityKind: event.EntityKind,
		ScopeKind:  event.ScopeKind,
		ScopeID:    event.ScopeID,
		StatusFrom: event.StatusFrom,
		StatusTo:   event.StatusTo,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		r.logger.Debug("No workflows match trigger %s", event.Kind)
		return nil, nil
	}
	r.logger.Info("Found %d matching workflow(s)", len(matches))

	// One normalized context shared by every matched workflow.
	trigger := &models.TriggerContext{
		Kind:       event.Kind,
		EntityKind: event.EntityKind,
		EntityID:   event.EntityID,
		EntityName: event.EntityName,
		Snapshot:   event.EntitySnapshot,
		Actor:      event.Actor,
		StatusFrom: event.StatusFrom,
		StatusTo:   event.StatusTo,
	}

	executions := make([]*models.WorkflowExecution, 0, len(matches))
	for _, workflow := range matches {
		execution, err := r.engine.Execute(ctx, workflow, trigger)
		if err != nil {
			r.logger.Error("Failed to execute workflow %q: %v", workflow.Name, err)
			continue
		}
		executions = append(executions, execution)
		r.logger.Info("Workflow %q executed with status %s", workflow.Name, execution.Status)
	}
	_ = mode
	return executions, nil
}

// OnCreate fires an on_create trigger after the entity has been persisted.
func (r *Registry) OnCreate(ctx context.Context, entityKind models.EntityKind, entityID string, opts EventOptions) ([]*models.WorkflowExecution, error) {
	return r.Fire(ctx, buildEvent(models.TriggerOnCreate, entityKind, entityID, opts), NonBlocking)
}

// OnUpdate fires an on_update trigger after the entity has been persisted.
func (r *Registry) OnUpdate(ctx context.Context, entityKind models.EntityKind, entityID string, opts EventOptions) ([]*models.WorkflowExecution, error) {
	return r.Fire(ctx, buildEvent(models.TriggerOnUpdate, entityKind, entityID, opts), NonBlocking)
}

// OnDelete fires an on_delete trigger after the entity has been removed.
func (r *Registry) OnDelete(ctx context.Context, entityKind models.EntityKind, entityID string, opts EventOptions) ([]*models.WorkflowExecution, error) {
	return r.Fire(ctx, buildEvent(models.TriggerOnDelete, entityKind, entityID, opts), NonBlocking)
}

// OnStatusChange fires an on_status_change trigger for a durable status
// transition.
func (r *Registry) OnStatusChange(ctx context.Context, entityKind models.EntityKind, entityID, fromStatus, toStatus string, opts EventOptions) ([]*models.WorkflowExecution, error) {
	event := buildEvent(models.TriggerOnStatusChange, entityKind, entityID, opts)
	event.StatusFrom = &fromStatus
	event.StatusTo = &toStatus
	return r.Fire(ctx, event, NonBlocking)
}

// BeforeCreate fires a blocking before_create gate. It reports true only when
// every matched execution succeeded; zero matched workflows is a pass, since
// absence of policy is not a denial. The registry is purely advisory: the
// caller decides whether to proceed with its creation.
func (r *Registry) BeforeCreate(ctx context.Context, entityKind models.EntityKind, entityID string, opts EventOptions) (bool, []*models.WorkflowExecution, error) {
	return r.gate(ctx, buildEvent(models.TriggerBeforeCreate, entityKind, entityID, opts))
}

// BeforeUpdate fires a blocking before_update gate with the same aggregate
// semantics as BeforeCreate.
func (r *Registry) BeforeUpdate(ctx context.Context, entityKind models.EntityKind, entityID string, opts EventOptions) (bool, []*models.WorkflowExecution, error) {
	return r.gate(ctx, buildEvent(models.TriggerBeforeUpdate, entityKind, entityID, opts))
}

func (r *Registry) gate(ctx context.Context, event models.TriggerEvent) (bool, []*models.WorkflowExecution, error) {
	executions, err := r.Fire(ctx, event, Blocking)
	if err != nil {
		return false, nil, err
	}

	allPassed := true
	for _, execution := range executions {
		if execution.Status != models.ExecutionSucceeded {
			allPassed = false
			break
		}
	}
	return allPassed, executions, nil
}

func buildEvent(kind models.TriggerKind, entityKind models.EntityKind, entityID string, opts EventOptions) models.TriggerEvent {
	return models.TriggerEvent{
		Kind:           kind,
		EntityKind:     entityKind,
		EntityID:       entityID,
		EntityName:     opts.EntityName,
		EntitySnapshot: opts.Snapshot,
		Actor:          opts.Actor,
		ScopeKind:      opts.ScopeKind,
		ScopeID:        opts.ScopeID,
	}
}
