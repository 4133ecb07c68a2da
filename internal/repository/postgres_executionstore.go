package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"datagov-catalog/backend/pkg/models"
)

// CreateExecution appends a new execution record.
func (s *PostgresWorkflowStore) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	_, err := s.db.Exec(ctx, `INSERT INTO workflow_executions
		(id, workflow_id, status, current_step_id, success_count, failure_count, error_message, started_at, finished_at, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		execution.ID, execution.WorkflowID, string(execution.Status),
		execution.CurrentStepID, execution.SuccessCount, execution.FailureCount,
		execution.ErrorMessage, execution.StartedAt, execution.FinishedAt, execution.TriggeredBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// UpdateExecution writes the execution's mutable fields in a single atomic
// UPDATE. Executions that already reached a terminal status are refused so
// concurrent readers never observe a terminal record changing.
func (s *PostgresWorkflowStore) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	tag, err := s.db.Exec(ctx, `UPDATE workflow_executions
		SET status = $2, current_step_id = $3, success_count = $4, failure_count = $5,
		    error_message = $6, finished_at = $7
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed')`,
		execution.ID, string(execution.Status), execution.CurrentStepID,
		execution.SuccessCount, execution.FailureCount,
		execution.ErrorMessage, execution.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.db.QueryRow(ctx, `SELECT status FROM workflow_executions WHERE id = $1`, execution.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrExecutionFinished
	}
	return nil
}

// ListExecutions returns executions matching the filter, newest first.
func (s *PostgresWorkflowStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}

	rows, err := s.db.Query(ctx, `SELECT e.id, e.workflow_id, w.name, e.status, e.current_step_id,
		e.success_count, e.failure_count, e.error_message, e.started_at, e.finished_at, e.triggered_by
		FROM workflow_executions e
		LEFT JOIN workflows w ON w.id = e.workflow_id
		WHERE ($1::uuid IS NULL OR e.workflow_id = $1)
		  AND ($2::text IS NULL OR e.status = $2)
		ORDER BY e.started_at DESC
		LIMIT $3 OFFSET $4`,
		filter.WorkflowID, status, limit, filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*models.WorkflowExecution
	for rows.Next() {
		var execution models.WorkflowExecution
		var execStatus string
		err := rows.Scan(&execution.ID, &execution.WorkflowID, &execution.WorkflowName,
			&execStatus, &execution.CurrentStepID,
			&execution.SuccessCount, &execution.FailureCount, &execution.ErrorMessage,
			&execution.StartedAt, &execution.FinishedAt, &execution.TriggeredBy,
		)
		if err != nil {
			return nil, err
		}
		execution.Status = models.ExecutionStatus(execStatus)
		executions = append(executions, &execution)
	}
	return executions, rows.Err()
}
