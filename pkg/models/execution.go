package models

import (
	"time"
)

// ExecutionStatus represents the lifecycle state of a workflow execution
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed
}

// WorkflowExecution represents one run of a workflow against an entity.
// Created pending, mutated in place as steps complete, immutable once the
// status is terminal.
type WorkflowExecution struct {
	ID            string          `json:"id" db:"id"`
	WorkflowID    string          `json:"workflow_id" db:"workflow_id"`
	WorkflowName  *string         `json:"workflow_name,omitempty"`
	Status        ExecutionStatus `json:"status" db:"status"`
	CurrentStepID *string         `json:"current_step_id,omitempty" db:"current_step_id"`
	SuccessCount  int             `json:"success_count" db:"success_count"`
	FailureCount  int             `json:"failure_count" db:"failure_count"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	TriggeredBy   string          `json:"triggered_by" db:"triggered_by"`
}

// TriggerEvent is the ephemeral description of a domain action handed to the
// trigger registry. It has no lifecycle of its own.
type TriggerEvent struct {
	Kind           TriggerKind    `json:"trigger_kind"`
	EntityKind     EntityKind     `json:"entity_kind"`
	EntityID       string         `json:"entity_id"`
	EntityName     *string        `json:"entity_name,omitempty"`
	EntitySnapshot map[string]any `json:"entity_snapshot,omitempty"`
	Actor          *string        `json:"actor,omitempty"`
	StatusFrom     *string        `json:"status_from,omitempty"`
	StatusTo       *string        `json:"status_to,omitempty"`
	ScopeKind      *ScopeKind     `json:"scope_kind,omitempty"`
	ScopeID        *string        `json:"scope_id,omitempty"`
}

// TriggerContext is the normalized view of a trigger event shared by all
// workflows matched for one firing and handed to each step capability.
type TriggerContext struct {
	Kind       TriggerKind    `json:"trigger_kind"`
	EntityKind EntityKind     `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	EntityName *string        `json:"entity_name,omitempty"`
	Snapshot   map[string]any `json:"entity_snapshot,omitempty"`
	Actor      *string        `json:"actor,omitempty"`
	StatusFrom *string        `json:"status_from,omitempty"`
	StatusTo   *string        `json:"status_to,omitempty"`
}

// TriggerQuery is the shape the workflow store matches trigger specs against
type TriggerQuery struct {
	Kind       TriggerKind
	EntityKind EntityKind
	ScopeKind  *ScopeKind
	ScopeID    *string
	StatusFrom *string
	StatusTo   *string
}

// ExecutionFilter narrows an execution listing
type ExecutionFilter struct {
	WorkflowID *string
	Status     *ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionListResponse wraps an execution listing
type ExecutionListResponse struct {
	Executions []*WorkflowExecution `json:"executions"`
	Total      int                  `json:"total"`
}
