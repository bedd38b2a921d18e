package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// ExecutionRepository handles execution, step and durable step log operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution row.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, error, correlation_id, cancel_requested, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		nullableString(execution.Error),
		nullableString(execution.CorrelationID),
		execution.CancelRequested,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return nil
}

// GetByID returns one execution by ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, error, correlation_id, cancel_requested, started_at, completed_at
		FROM executions
		WHERE id = $1
	`

	var (
		execution     models.Execution
		errMsg        sql.NullString
		correlationID sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&errMsg,
		&correlationID,
		&execution.CancelRequested,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	execution.Error = errMsg.String
	execution.CorrelationID = correlationID.String

	return &execution, nil
}

// Finish transitions a RUNNING execution to a terminal status. Terminal
// executions are never mutated, so the update is guarded on the current
// status and a no-op update is reported as ErrExecutionNotRunning.
func (r *ExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, errMsg string, completedAt time.Time) error {
	query := `
		UPDATE executions
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, status, nullableString(errMsg), completedAt, models.ExecutionStatusRunning)
	if err != nil {
		return persistence.NewExecutionError("Finish", id, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Finish", id, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		_, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionNotRunning)
	}

	return nil
}

// RequestCancel flips the cooperative cancellation flag on a RUNNING execution.
func (r *ExecutionRepository) RequestCancel(ctx context.Context, id string) error {
	query := `
		UPDATE executions
		SET cancel_requested = TRUE
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, models.ExecutionStatusRunning)
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		_, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotRunning)
	}

	return nil
}

// CancelRequested reports whether cancellation was requested for an execution.
func (r *ExecutionRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool

	err := r.db.QueryRowContext(ctx, "SELECT cancel_requested FROM executions WHERE id = $1", id).Scan(&requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, persistence.ErrExecutionNotFound
		}

		return false, fmt.Errorf("failed to query cancel flag: %w", err)
	}

	return requested, nil
}

// SaveStep appends one execution step record.
func (r *ExecutionRepository) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO execution_steps (id, execution_id, node_id, node_type, status, step_order, input, output, error, stack, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeType,
		step.Status,
		step.Order,
		inputJSON,
		outputJSON,
		nullableString(step.Error),
		nullableString(step.Stack),
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution step: %w", err)
	}

	return nil
}

// Steps returns all steps of an execution in execution order.
func (r *ExecutionRepository) Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, status, step_order, input, output, error, stack, started_at, completed_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_order, started_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step       models.ExecutionStep
			inputJSON  []byte
			outputJSON []byte
			errMsg     sql.NullString
			stack      sql.NullString
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.NodeType,
			&step.Status,
			&step.Order,
			&inputJSON,
			&outputJSON,
			&errMsg,
			&stack,
			&step.StartedAt,
			&step.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution step: %w", err)
		}

		if inputJSON != nil {
			if err := json.Unmarshal(inputJSON, &step.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
			}
		}

		if outputJSON != nil {
			if err := json.Unmarshal(outputJSON, &step.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
			}
		}

		step.Error = errMsg.String
		step.Stack = stack.String

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution steps: %w", err)
	}

	return steps, nil
}

// DurableStep returns a previously committed step output, if any.
func (r *ExecutionRepository) DurableStep(ctx context.Context, executionID, key string) (map[string]any, bool, error) {
	var outputJSON []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT output FROM durable_steps WHERE execution_id = $1 AND step_key = $2",
		executionID, key,
	).Scan(&outputJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to query durable step: %w", err)
	}

	var output map[string]any

	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &output); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal durable step output: %w", err)
		}
	}

	return output, true, nil
}

// CommitDurableStep records one completed step. The first committed output
// wins; replays of the same key are ignored.
func (r *ExecutionRepository) CommitDurableStep(ctx context.Context, executionID, key string, output map[string]any) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal durable step output: %w", err)
	}

	query := `
		INSERT INTO durable_steps (execution_id, step_key, output)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id, step_key) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query, executionID, key, outputJSON)
	if err != nil {
		return fmt.Errorf("failed to commit durable step: %w", err)
	}

	return nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
