// Package workflows implements the trigger and workflow execution engine:
// the workflow catalog, the execution engine, the step capabilities and the
// trigger registry that ties them together.
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"datagov-catalog/backend/internal/compliance"
	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/pkg/models"
)

// StepResult is the outcome a step capability reports back to the engine.
type StepResult struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
}

// Capability is the polymorphic unit of work a workflow step performs.
// The engine is agnostic to step semantics; new step kinds are added by
// registering a new capability, not by modifying the engine.
type Capability interface {
	// Kind returns the step kind this capability handles.
	Kind() models.StepKind
	// Schema describes the capability and its configuration fields.
	Schema() models.StepTypeSchema
	// Run executes the step against the trigger context. A returned error is
	// treated by the engine as a step failure, never propagated further.
	Run(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error)
}

// CapabilityRegistry maps step kinds to their capability implementations.
type CapabilityRegistry struct {
	capabilities map[models.StepKind]Capability
}

// NewCapabilityRegistry creates an empty CapabilityRegistry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		capabilities: make(map[models.StepKind]Capability),
	}
}

// Register adds a capability to the registry, replacing any previous
// capability for the same kind.
func (r *CapabilityRegistry) Register(capability Capability) {
	r.capabilities[capability.Kind()] = capability
}

// Get returns the capability for a step kind.
func (r *CapabilityRegistry) Get(kind models.StepKind) (Capability, bool) {
	capability, ok := r.capabilities[kind]
	return capability, ok
}

// Schemas returns the schemas of all registered capabilities, sorted by kind.
func (r *CapabilityRegistry) Schemas() []models.StepTypeSchema {
	schemas := make([]models.StepTypeSchema, 0, len(r.capabilities))
	for _, capability := range r.capabilities {
		schemas = append(schemas, capability.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Kind < schemas[j].Kind })
	return schemas
}

// DefaultCapabilities returns a registry with the builtin step capabilities.
func DefaultCapabilities(policies compliance.PolicyClient, webhookURL string, logger *logging.Logger) *CapabilityRegistry {
	registry := NewCapabilityRegistry()
	registry.Register(NewPolicyCheckStep(policies))
	registry.Register(NewFieldCheckStep())
	registry.Register(NewNotificationStep(webhookURL, logger))
	return registry
}

// decodeConfig deserializes a step's opaque config map into the capability's
// typed configuration struct.
func decodeConfig(config map[string]any, out any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode step config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid step config: %w", err)
	}
	return nil
}
