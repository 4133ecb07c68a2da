package workflows

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/pkg/models"
)

// DefaultStepTimeout bounds a single step when neither the configuration nor
// the step itself specifies one.
const DefaultStepTimeout = 30 * time.Second

// Engine runs a workflow's ordered steps against a trigger context and
// tracks per-execution state in the execution store.
type Engine struct {
	executions   repository.ExecutionStore
	capabilities *CapabilityRegistry
	logger       *logging.Logger
	stepTimeout  time.Duration
}

// NewEngine creates a new Engine. stepTimeout <= 0 selects the default.
func NewEngine(executions repository.ExecutionStore, capabilities *CapabilityRegistry, logger *logging.Logger, stepTimeout time.Duration) *Engine {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Engine{
		executions:   executions,
		capabilities: capabilities,
		logger:       logger,
		stepTimeout:  stepTimeout,
	}
}

// Execute runs a workflow's steps strictly in order and returns the terminal
// execution record. Step failures never escape as errors: they are recorded
// on the execution and resolved through the step's failure policy. A non-nil
// error means the execution record itself could not be created or updated;
// the caller owns isolating such failures from sibling workflows.
func (e *Engine) Execute(ctx context.Context, workflow *models.Workflow, trigger *models.TriggerContext) (*models.WorkflowExecution, error) {
	triggeredBy := "system"
	if trigger.Actor != nil && *trigger.Actor != "" {
		triggeredBy = *trigger.Actor
	}

	execution := &models.WorkflowExecution{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		Status:      models.ExecutionPending,
		StartedAt:   time.Now().UTC(),
		TriggeredBy: triggeredBy,
	}
	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	execution.Status = models.ExecutionRunning
	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to start execution %s: %w", execution.ID, err)
	}

	steps := make([]models.Step, len(workflow.Steps))
	copy(steps, workflow.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	var firstFailure string
	for i := range steps {
		step := &steps[i]

		// Written before the step starts so an observer of an in-flight
		// execution can see progress.
		stepID := step.ID
		execution.CurrentStepID = &stepID
		if err := e.executions.UpdateExecution(ctx, execution); err != nil {
			return nil, fmt.Errorf("failed to advance execution %s: %w", execution.ID, err)
		}

		result := e.runStep(ctx, step, trigger)
		if result.OK {
			execution.SuccessCount++
			continue
		}

		execution.FailureCount++
		if firstFailure == "" {
			firstFailure = result.Message
			if firstFailure == "" {
				firstFailure = fmt.Sprintf("step %q failed", step.Name)
			}
		}
		e.logger.Warn("workflow %q step %q failed: %s", workflow.Name, step.Name, result.Message)

		if step.OnFailure != models.FailureContinue {
			break
		}
	}

	now := time.Now().UTC()
	execution.FinishedAt = &now
	if execution.FailureCount > 0 {
		execution.Status = models.ExecutionFailed
		execution.ErrorMessage = &firstFailure
	} else {
		execution.Status = models.ExecutionSucceeded
	}
	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to finish execution %s: %w", execution.ID, err)
	}

	return execution, nil
}

// runStep runs one step under its timeout, converting capability errors,
// panics and timeouts into failed step results.
func (e *Engine) runStep(ctx context.Context, step *models.Step, trigger *models.TriggerContext) *StepResult {
	capability, ok := e.capabilities.Get(step.Kind)
	if !ok {
		return &StepResult{OK: false, Message: fmt.Sprintf("no capability registered for step kind %q", step.Kind)}
	}

	timeout := e.stepTimeout
	if step.TimeoutSeconds != nil && *step.TimeoutSeconds > 0 {
		timeout = time.Duration(*step.TimeoutSeconds) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *StepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("step %q panicked: %v", step.Name, r)
				done <- &StepResult{OK: false, Message: fmt.Sprintf("step %q panicked: %v", step.Name, r)}
			}
		}()

		result, err := capability.Run(stepCtx, step.Config, trigger)
		if err != nil {
			done <- &StepResult{OK: false, Message: fmt.Sprintf("step %q failed: %v", step.Name, err)}
			return
		}
		if result == nil {
			result = &StepResult{OK: true}
		}
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-stepCtx.Done():
		return &StepResult{OK: false, Message: fmt.Sprintf("step %q timed out after %s", step.Name, timeout)}
	}
}
