package workflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/pkg/models"
)

// ErrDefaultWorkflow is returned when a delete targets a default workflow.
// Default workflows can only be deactivated.
var ErrDefaultWorkflow = errors.New("default workflows cannot be deleted, deactivate instead")

// ValidationError carries a failed validation result across the catalog
// boundary.
type ValidationError struct {
	Result models.ValidationResult
}

func (e *ValidationError) Error() string {
	return "invalid workflow definition: " + strings.Join(e.Result.Errors, "; ")
}

var validTriggerKinds = map[models.TriggerKind]bool{
	models.TriggerOnCreate:       true,
	models.TriggerOnUpdate:       true,
	models.TriggerOnDelete:       true,
	models.TriggerOnStatusChange: true,
	models.TriggerManual:         true,
	models.TriggerBeforeCreate:   true,
	models.TriggerBeforeUpdate:   true,
}

var validEntityKinds = map[models.EntityKind]bool{
	models.EntityDataset:      true,
	models.EntityDataContract: true,
	models.EntityDataProduct:  true,
}

// Catalog owns workflow definitions: CRUD, validation, duplication and
// trigger matching.
type Catalog struct {
	store        repository.WorkflowStore
	capabilities *CapabilityRegistry
	logger       *logging.Logger
}

// NewCatalog creates a new Catalog.
func NewCatalog(store repository.WorkflowStore, capabilities *CapabilityRegistry, logger *logging.Logger) *Catalog {
	return &Catalog{store: store, capabilities: capabilities, logger: logger}
}

// List returns all workflows, optionally filtered by active status.
func (c *Catalog) List(ctx context.Context, isActive *bool) ([]*models.Workflow, error) {
	return c.store.List(ctx, isActive)
}

// Get retrieves a workflow by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return c.store.Get(ctx, id)
}

// Create validates and persists a new workflow definition.
func (c *Catalog) Create(ctx context.Context, workflow *models.Workflow, createdBy *string) (*models.Workflow, error) {
	if result := c.Validate(workflow); !result.Valid {
		return nil, &ValidationError{Result: result}
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.CreatedBy = createdBy
	workflow.UpdatedBy = createdBy
	prepareSteps(workflow, now)

	if err := c.store.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow %q: %w", workflow.Name, err)
	}
	c.logger.Info("Workflow created: %q (%s)", workflow.Name, workflow.ID)
	return workflow, nil
}

// Update applies a partial update. A non-nil Steps slice replaces all steps
// and triggers re-validation of the merged definition.
func (c *Catalog) Update(ctx context.Context, id string, update models.WorkflowUpdate, updatedBy *string) (*models.Workflow, error) {
	workflow, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		workflow.Name = *update.Name
	}
	if update.Description != nil {
		workflow.Description = update.Description
	}
	if update.Trigger != nil {
		workflow.Trigger = *update.Trigger
	}
	if update.IsActive != nil {
		workflow.IsActive = *update.IsActive
	}
	if update.Steps != nil {
		workflow.Steps = update.Steps
	}

	if result := c.Validate(workflow); !result.Valid {
		return nil, &ValidationError{Result: result}
	}

	now := time.Now().UTC()
	workflow.UpdatedAt = now
	workflow.UpdatedBy = updatedBy
	prepareSteps(workflow, now)

	if err := c.store.Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", id, err)
	}
	return workflow, nil
}

// Delete removes a workflow. Default workflows are refused here, at the
// catalog boundary, so the protection holds regardless of caller.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	workflow, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if workflow.IsDefault {
		return ErrDefaultWorkflow
	}
	return c.store.Delete(ctx, id)
}

// ToggleActive flips a workflow's active flag. Allowed for any workflow,
// defaults included.
func (c *Catalog) ToggleActive(ctx context.Context, id string, active bool, updatedBy *string) (*models.Workflow, error) {
	workflow, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	workflow.IsActive = active
	workflow.UpdatedAt = time.Now().UTC()
	workflow.UpdatedBy = updatedBy
	if err := c.store.Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to toggle workflow %s: %w", id, err)
	}
	return workflow, nil
}

// Duplicate deep-copies a workflow and its steps under a new identity.
// The copy is never a default workflow.
func (c *Catalog) Duplicate(ctx context.Context, id, newName string, createdBy *string) (*models.Workflow, error) {
	source, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duplicate := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        newName,
		Description: source.Description,
		Trigger:     source.Trigger,
		IsActive:    source.IsActive,
		IsDefault:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		UpdatedBy:   createdBy,
	}
	for _, step := range source.Steps {
		copied := step
		copied.ID = ""
		duplicate.Steps = append(duplicate.Steps, copied)
	}
	prepareSteps(duplicate, now)

	if err := c.store.Create(ctx, duplicate); err != nil {
		return nil, fmt.Errorf("failed to duplicate workflow %s: %w", id, err)
	}
	c.logger.Info("Workflow %q duplicated as %q (%s)", source.Name, newName, duplicate.ID)
	return duplicate, nil
}

// Match returns active workflows whose trigger spec matches the query.
func (c *Catalog) Match(ctx context.Context, query models.TriggerQuery) ([]*models.Workflow, error) {
	return c.store.Match(ctx, query)
}

// StepTypeSchemas lists the schemas of all registered step capabilities.
func (c *Catalog) StepTypeSchemas() []models.StepTypeSchema {
	return c.capabilities.Schemas()
}

// Validate checks a workflow definition without persisting anything.
func (c *Catalog) Validate(workflow *models.Workflow) models.ValidationResult {
	var result models.ValidationResult

	if strings.TrimSpace(workflow.Name) == "" {
		result.Errors = append(result.Errors, "name is required")
	}
	if !validTriggerKinds[workflow.Trigger.Kind] {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown trigger kind %q", workflow.Trigger.Kind))
	}
	if !validEntityKinds[workflow.Trigger.EntityKind] {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown entity kind %q", workflow.Trigger.EntityKind))
	}
	if workflow.Trigger.ScopeID != nil && workflow.Trigger.ScopeKind == nil {
		result.Errors = append(result.Errors, "scope_id requires scope_kind")
	}

	// A status-change trigger with neither boundary set degenerates to
	// "any update", which is almost always a misconfiguration.
	if workflow.Trigger.Kind == models.TriggerOnStatusChange &&
		emptyStatus(workflow.Trigger.StatusFrom) && emptyStatus(workflow.Trigger.StatusTo) {
		result.Warnings = append(result.Warnings,
			"on_status_change with neither status_from nor status_to matches every status transition")
	}

	if len(workflow.Steps) == 0 {
		result.Warnings = append(result.Warnings, "workflow has no steps and will succeed trivially")
	}

	orders := make([]int, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		orders = append(orders, step.Order)

		if _, ok := c.capabilities.Get(step.Kind); !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("step %q has unknown step kind %q", step.Name, step.Kind))
			continue
		}
		if step.OnFailure != "" && step.OnFailure != models.FailureHalt && step.OnFailure != models.FailureContinue {
			result.Errors = append(result.Errors, fmt.Sprintf("step %q has invalid on_failure policy %q", step.Name, step.OnFailure))
		}
		result.Errors = append(result.Errors, c.missingConfigFields(step)...)
	}

	sort.Ints(orders)
	for i, order := range orders {
		if order != i {
			result.Errors = append(result.Errors,
				fmt.Sprintf("step order values must be unique and contiguous from 0, got %v", orders))
			break
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ReferencedPolicies returns the IDs of compliance policies referenced by a
// workflow's policy_check steps.
func (c *Catalog) ReferencedPolicies(ctx context.Context, id string) ([]string, error) {
	workflow, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var policyIDs []string
	for _, step := range workflow.Steps {
		if step.Kind != models.StepPolicyCheck || step.Config == nil {
			continue
		}
		policyID, ok := step.Config["policy_id"].(string)
		if !ok || policyID == "" || seen[policyID] {
			continue
		}
		seen[policyID] = true
		policyIDs = append(policyIDs, policyID)
	}
	sort.Strings(policyIDs)
	return policyIDs, nil
}

func (c *Catalog) missingConfigFields(step models.Step) []string {
	capability, ok := c.capabilities.Get(step.Kind)
	if !ok {
		return nil
	}
	var errs []string
	for _, field := range capability.Schema().ConfigFields {
		if !field.Required {
			continue
		}
		value, present := step.Config[field.Name]
		if !present || value == nil || value == "" {
			errs = append(errs, fmt.Sprintf("step %q is missing required config field %q", step.Name, field.Name))
		}
	}
	return errs
}

// prepareSteps assigns fresh identities and defaults to a workflow's steps.
func prepareSteps(workflow *models.Workflow, now time.Time) {
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		step.WorkflowID = workflow.ID
		if step.OnFailure == "" {
			step.OnFailure = models.FailureHalt
		}
		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}
		step.UpdatedAt = now
	}
}

func emptyStatus(status *string) bool {
	return status == nil || *status == ""
}
