// Package persistence provides the data storage abstraction for workflows,
// executions, credentials and the durable step log.
package persistence

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

type Persistence interface {
	// Workflows.
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Executions. Terminal executions are immutable: FinishExecution is the
	// only transition out of RUNNING and is rejected afterwards.
	CreateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, errMsg string, completedAt time.Time) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)

	// Execution steps are append-only.
	SaveExecutionStep(ctx context.Context, step *models.ExecutionStep) error
	ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)

	// Credentials.
	SaveCredential(ctx context.Context, credential *models.Credential) error
	CredentialByID(ctx context.Context, id string) (*models.Credential, error)

	// Durable step log: a committed (executionID, key) pair records the step
	// output so retried runs resume instead of re-executing side effects.
	DurableStep(ctx context.Context, executionID, key string) (map[string]any, bool, error)
	CommitDurableStep(ctx context.Context, executionID, key string, output map[string]any) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
