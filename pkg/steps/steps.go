// Package steps provides the durable step log runner. Each named step of an
// execution runs at most once: replays find the committed output and return
// it without re-running the side effect.
package steps

import (
	"context"
	"fmt"
	"log/slog"
)

// Log is the persistence surface the runner needs.
type Log interface {
	DurableStep(ctx context.Context, executionID, key string) (map[string]any, bool, error)
	CommitDurableStep(ctx context.Context, executionID, key string, output map[string]any) error
}

// StepFunc performs one side-effecting unit of work and returns its output.
type StepFunc func(ctx context.Context) (map[string]any, error)

// Runner executes steps against a durable log.
type Runner struct {
	log    Log
	logger *slog.Logger
}

// NewRunner creates a step runner backed by the given log.
func NewRunner(log Log, logger *slog.Logger) *Runner {
	return &Runner{
		log:    log,
		logger: logger.With("module", "steps"),
	}
}

// Do runs the step identified by key within the execution, exactly once.
// If a committed output already exists for the key it is returned verbatim
// and fn is not invoked. Failed steps commit nothing, so a retry of the
// execution re-runs them.
func (r *Runner) Do(ctx context.Context, executionID, key string, fn StepFunc) (map[string]any, error) {
	output, done, err := r.log.DurableStep(ctx, executionID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read durable step %q: %w", key, err)
	}

	if done {
		r.logger.DebugContext(ctx, "Durable step replayed from log",
			"execution_id", executionID,
			"step_key", key)

		return output, nil
	}

	output, err = fn(ctx)
	if err != nil {
		return nil, err
	}

	err = r.log.CommitDurableStep(ctx, executionID, key, output)
	if err != nil {
		return nil, fmt.Errorf("failed to commit durable step %q: %w", key, err)
	}

	return output, nil
}
