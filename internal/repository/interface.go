package repository

import (
	"context"
	"errors"

	"datagov-catalog/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrExecutionFinished is returned when an update targets an execution that
// has already reached a terminal status. Terminal executions are immutable.
var ErrExecutionFinished = errors.New("execution already finished")

// WorkflowStore is an interface for storing and matching workflow definitions.
type WorkflowStore interface {
	// Create persists a workflow and its steps.
	Create(ctx context.Context, workflow *models.Workflow) error
	// Get retrieves a workflow with its steps by ID.
	Get(ctx context.Context, id string) (*models.Workflow, error)
	// List returns all workflows, optionally filtered by active status.
	List(ctx context.Context, isActive *bool) ([]*models.Workflow, error)
	// Update replaces a workflow definition and its steps.
	Update(ctx context.Context, workflow *models.Workflow) error
	// Delete removes a workflow and its steps.
	Delete(ctx context.Context, id string) error
	// Match returns active workflows whose trigger spec matches the query.
	// Unset spec fields act as wildcards; inactive workflows never match.
	Match(ctx context.Context, query models.TriggerQuery) ([]*models.Workflow, error)
}

// ExecutionStore is an append/update interface for workflow execution records.
// There is no delete: executions are an immutable audit trail once terminal.
type ExecutionStore interface {
	// CreateExecution appends a new execution record.
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	// UpdateExecution writes an execution's status, counters, current step and
	// timestamps in a single atomic write. It refuses updates to executions
	// that already reached a terminal status.
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	// ListExecutions returns executions matching the filter, newest first.
	ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error)
}
