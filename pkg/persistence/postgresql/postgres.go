// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	executionRepo  *ExecutionRepository
	credentialRepo *CredentialRepository
}

// NewPersistence connects, runs migrations and returns a ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:             database,
		logger:         logger,
		workflowRepo:   NewWorkflowRepository(database, logger),
		executionRepo:  NewExecutionRepository(database, logger),
		credentialRepo: NewCredentialRepository(database),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) CreateExecution(ctx context.Context, execution *models.Execution) error {
	return p.executionRepo.Create(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, errMsg string, completedAt time.Time) error {
	return p.executionRepo.Finish(ctx, id, status, errMsg, completedAt)
}

func (p *Persistence) RequestCancel(ctx context.Context, id string) error {
	return p.executionRepo.RequestCancel(ctx, id)
}

func (p *Persistence) CancelRequested(ctx context.Context, id string) (bool, error) {
	return p.executionRepo.CancelRequested(ctx, id)
}

func (p *Persistence) SaveExecutionStep(ctx context.Context, step *models.ExecutionStep) error {
	return p.executionRepo.SaveStep(ctx, step)
}

func (p *Persistence) ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	return p.executionRepo.Steps(ctx, executionID)
}

func (p *Persistence) SaveCredential(ctx context.Context, credential *models.Credential) error {
	return p.credentialRepo.Save(ctx, credential)
}

func (p *Persistence) CredentialByID(ctx context.Context, id string) (*models.Credential, error) {
	return p.credentialRepo.GetByID(ctx, id)
}

func (p *Persistence) DurableStep(ctx context.Context, executionID, key string) (map[string]any, bool, error) {
	return p.executionRepo.DurableStep(ctx, executionID, key)
}

func (p *Persistence) CommitDurableStep(ctx context.Context, executionID, key string, output map[string]any) error {
	return p.executionRepo.CommitDurableStep(ctx, executionID, key, output)
}
