package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"datagov-catalog/backend/pkg/models"
)

// PostgresWorkflowStore is a PostgreSQL implementation of the WorkflowStore
// and ExecutionStore interfaces.
type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

// NewPostgresWorkflowStore creates a new PostgresWorkflowStore.
func NewPostgresWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

const workflowColumns = `id, name, description, trigger_kind, entity_kind, scope_kind, scope_id,
	status_from, status_to, is_active, is_default, created_at, updated_at, created_by, updated_by`

// Create persists a workflow and its steps in one transaction.
func (s *PostgresWorkflowStore) Create(ctx context.Context, workflow *models.Workflow) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		workflow.ID, workflow.Name, workflow.Description,
		string(workflow.Trigger.Kind), string(workflow.Trigger.EntityKind),
		scopeKindArg(workflow.Trigger.ScopeKind), workflow.Trigger.ScopeID,
		workflow.Trigger.StatusFrom, workflow.Trigger.StatusTo,
		workflow.IsActive, workflow.IsDefault,
		workflow.CreatedAt, workflow.UpdatedAt, workflow.CreatedBy, workflow.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	if err := insertSteps(ctx, tx, workflow.Steps); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get retrieves a workflow with its steps by ID.
func (s *PostgresWorkflowStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if workflow.Steps, err = s.loadSteps(ctx, workflow.ID); err != nil {
		return nil, err
	}
	return workflow, nil
}

// List returns all workflows, optionally filtered by active status.
func (s *PostgresWorkflowStore) List(ctx context.Context, isActive *bool) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE $1::boolean IS NULL OR is_active = $1 ORDER BY name`, isActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectWorkflows(ctx, rows)
}

// Update replaces a workflow definition and its steps in one transaction.
func (s *PostgresWorkflowStore) Update(ctx context.Context, workflow *models.Workflow) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE workflows SET name = $2, description = $3,
		trigger_kind = $4, entity_kind = $5, scope_kind = $6, scope_id = $7,
		status_from = $8, status_to = $9, is_active = $10, is_default = $11,
		updated_at = $12, updated_by = $13 WHERE id = $1`,
		workflow.ID, workflow.Name, workflow.Description,
		string(workflow.Trigger.Kind), string(workflow.Trigger.EntityKind),
		scopeKindArg(workflow.Trigger.ScopeKind), workflow.Trigger.ScopeID,
		workflow.Trigger.StatusFrom, workflow.Trigger.StatusTo,
		workflow.IsActive, workflow.IsDefault,
		workflow.UpdatedAt, workflow.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_steps WHERE workflow_id = $1`, workflow.ID); err != nil {
		return fmt.Errorf("failed to clear workflow steps: %w", err)
	}
	if err := insertSteps(ctx, tx, workflow.Steps); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Delete removes a workflow; its steps are removed by cascade.
func (s *PostgresWorkflowStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Match returns active workflows whose trigger spec matches the query.
// A NULL spec field matches any event value; a set spec field must equal the
// event value exactly.
func (s *PostgresWorkflowStore) Match(ctx context.Context, query models.TriggerQuery) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE is_active
		  AND trigger_kind = $1
		  AND entity_kind = $2
		  AND (scope_kind IS NULL OR scope_kind = $3)
		  AND (scope_id IS NULL OR scope_id = $4)
		  AND (status_from IS NULL OR status_from = $5)
		  AND (status_to IS NULL OR status_to = $6)
		ORDER BY name`,
		string(query.Kind), string(query.EntityKind),
		scopeKindArg(query.ScopeKind), query.ScopeID,
		query.StatusFrom, query.StatusTo,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectWorkflows(ctx, rows)
}

func (s *PostgresWorkflowStore) collectWorkflows(ctx context.Context, rows pgx.Rows) ([]*models.Workflow, error) {
	var workflows []*models.Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, workflow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		steps, err := s.loadSteps(ctx, workflow.ID)
		if err != nil {
			return nil, err
		}
		workflow.Steps = steps
	}
	return workflows, nil
}

func (s *PostgresWorkflowStore) loadSteps(ctx context.Context, workflowID string) ([]models.Step, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workflow_id, name, step_kind, config, step_order,
		on_failure, timeout_seconds, created_at, updated_at
		FROM workflow_steps WHERE workflow_id = $1 ORDER BY step_order`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var step models.Step
		var kind, onFailure string
		var config []byte
		err := rows.Scan(&step.ID, &step.WorkflowID, &step.Name, &kind, &config,
			&step.Order, &onFailure, &step.TimeoutSeconds, &step.CreatedAt, &step.UpdatedAt)
		if err != nil {
			return nil, err
		}
		step.Kind = models.StepKind(kind)
		step.OnFailure = models.FailurePolicy(onFailure)
		if len(config) > 0 {
			if err := json.Unmarshal(config, &step.Config); err != nil {
				return nil, fmt.Errorf("failed to decode step config: %w", err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func insertSteps(ctx context.Context, tx pgx.Tx, steps []models.Step) error {
	for _, step := range steps {
		var config []byte
		if step.Config != nil {
			encoded, err := json.Marshal(step.Config)
			if err != nil {
				return fmt.Errorf("failed to encode step config: %w", err)
			}
			config = encoded
		}
		_, err := tx.Exec(ctx, `INSERT INTO workflow_steps
			(id, workflow_id, name, step_kind, config, step_order, on_failure, timeout_seconds, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			step.ID, step.WorkflowID, step.Name, string(step.Kind), config,
			step.Order, string(step.OnFailure), step.TimeoutSeconds,
			step.CreatedAt, step.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %q: %w", step.Name, err)
		}
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var workflow models.Workflow
	var triggerKind, entityKind string
	var scopeKind *string
	err := row.Scan(&workflow.ID, &workflow.Name, &workflow.Description,
		&triggerKind, &entityKind, &scopeKind, &workflow.Trigger.ScopeID,
		&workflow.Trigger.StatusFrom, &workflow.Trigger.StatusTo,
		&workflow.IsActive, &workflow.IsDefault,
		&workflow.CreatedAt, &workflow.UpdatedAt, &workflow.CreatedBy, &workflow.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	workflow.Trigger.Kind = models.TriggerKind(triggerKind)
	workflow.Trigger.EntityKind = models.EntityKind(entityKind)
	if scopeKind != nil {
		kind := models.ScopeKind(*scopeKind)
		workflow.Trigger.ScopeKind = &kind
	}
	return &workflow, nil
}

func scopeKindArg(kind *models.ScopeKind) *string {
	if kind == nil {
		return nil
	}
	s := string(*kind)
	return &s
}
