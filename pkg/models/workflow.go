// Package models defines the domain models for the governance workflow service
package models

import (
	"time"
)

// TriggerKind represents the category of event that can start a workflow
type TriggerKind string

const (
	TriggerOnCreate       TriggerKind = "on_create"
	TriggerOnUpdate       TriggerKind = "on_update"
	TriggerOnDelete       TriggerKind = "on_delete"
	TriggerOnStatusChange TriggerKind = "on_status_change"
	TriggerManual         TriggerKind = "manual"
	TriggerBeforeCreate   TriggerKind = "before_create"
	TriggerBeforeUpdate   TriggerKind = "before_update"
)

// Blocking reports whether the trigger kind gates the originating operation.
func (k TriggerKind) Blocking() bool {
	return k == TriggerBeforeCreate || k == TriggerBeforeUpdate
}

// EntityKind represents the domain object type an event concerns
type EntityKind string

const (
	EntityDataset      EntityKind = "dataset"
	EntityDataContract EntityKind = "data_contract"
	EntityDataProduct  EntityKind = "data_product"
)

// ScopeKind narrows a workflow's applicability to a project, catalog or domain
type ScopeKind string

const (
	ScopeProject ScopeKind = "project"
	ScopeCatalog ScopeKind = "catalog"
	ScopeDomain  ScopeKind = "domain"
)

// StepKind identifies a registered step capability
type StepKind string

const (
	StepPolicyCheck  StepKind = "policy_check"
	StepFieldCheck   StepKind = "field_check"
	StepNotification StepKind = "notification"
)

// FailurePolicy controls whether a failing step halts the execution
type FailurePolicy string

const (
	FailureHalt     FailurePolicy = "halt"
	FailureContinue FailurePolicy = "continue"
)

// TriggerSpec describes which events a workflow reacts to. Unset optional
// fields act as wildcards during matching.
type TriggerSpec struct {
	Kind       TriggerKind `json:"trigger_kind" db:"trigger_kind"`
	EntityKind EntityKind  `json:"entity_kind" db:"entity_kind"`
	ScopeKind  *ScopeKind  `json:"scope_kind,omitempty" db:"scope_kind"`
	ScopeID    *string     `json:"scope_id,omitempty" db:"scope_id"`
	StatusFrom *string     `json:"status_from,omitempty" db:"status_from"`
	StatusTo   *string     `json:"status_to,omitempty" db:"status_to"`
}

// Step is a single ordered unit of work within a workflow
type Step struct {
	ID         string         `json:"id" db:"id"`
	WorkflowID string         `json:"workflow_id" db:"workflow_id"`
	Name       string         `json:"name" db:"name"`
	Kind       StepKind       `json:"step_kind" db:"step_kind"`
	Config     map[string]any `json:"config,omitempty" db:"config"` // JSONB
	Order      int            `json:"order" db:"step_order"`
	OnFailure  FailurePolicy  `json:"on_failure" db:"on_failure"`
	// TimeoutSeconds overrides the engine's default per-step timeout.
	TimeoutSeconds *int      `json:"timeout_seconds,omitempty" db:"timeout_seconds"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Workflow is a declaratively defined sequence of steps bound to a trigger
type Workflow struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description *string     `json:"description,omitempty" db:"description"`
	Trigger     TriggerSpec `json:"trigger"`
	Steps       []Step      `json:"steps"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	IsDefault   bool        `json:"is_default" db:"is_default"`

	// Audit fields
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	CreatedBy *string   `json:"created_by,omitempty" db:"created_by"`
	UpdatedBy *string   `json:"updated_by,omitempty" db:"updated_by"`
}

// WorkflowUpdate carries a partial update of a workflow definition.
// Nil fields are left unchanged; a non-nil Steps slice replaces all steps.
type WorkflowUpdate struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Trigger     *TriggerSpec `json:"trigger,omitempty"`
	IsActive    *bool        `json:"is_active,omitempty"`
	Steps       []Step       `json:"steps,omitempty"`
}

// ValidationResult reports the outcome of workflow definition validation
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// StepConfigField documents a single configuration field of a step kind
type StepConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// StepTypeSchema describes a step capability for the workflow designer
type StepTypeSchema struct {
	Kind         StepKind          `json:"step_kind"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	ConfigFields []StepConfigField `json:"config_fields,omitempty"`
}

// WorkflowListResponse wraps a workflow listing
type WorkflowListResponse struct {
	Workflows []*Workflow `json:"workflows"`
	Total     int         `json:"total"`
}
