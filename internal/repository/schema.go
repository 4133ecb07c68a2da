package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	trigger_kind TEXT NOT NULL,
	entity_kind TEXT NOT NULL,
	scope_kind TEXT,
	scope_id TEXT,
	status_from TEXT,
	status_to TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by TEXT,
	updated_by TEXT
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	step_kind TEXT NOT NULL,
	config JSONB,
	step_order INT NOT NULL,
	on_failure TEXT NOT NULL DEFAULT 'halt',
	timeout_seconds INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (workflow_id, step_order)
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	current_step_id UUID,
	success_count INT NOT NULL DEFAULT 0,
	failure_count INT NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	triggered_by TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflows_trigger
	ON workflows (trigger_kind, entity_kind) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_executions_workflow
	ON workflow_executions (workflow_id, started_at DESC);
`

// Migrate creates the workflow tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
