// Package memory provides an in-memory persistence implementation for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	workflows   map[string]*models.Workflow
	executions  map[string]*models.Execution
	steps       map[string][]*models.ExecutionStep
	credentials map[string]*models.Credential
	stepLog     map[string]map[string]map[string]any // executionID -> key -> output
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:   make(map[string]*models.Workflow),
		executions:  make(map[string]*models.Execution),
		steps:       make(map[string][]*models.ExecutionStep),
		credentials: make(map[string]*models.Credential),
		stepLog:     make(map[string]map[string]map[string]any),
	}
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	for _, conn := range workflow.Connections {
		conn.Normalize()
	}

	p.workflows[workflow.ID] = workflow

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) CreateExecution(ctx context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.executions[execution.ID] = execution

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	copied := *execution

	return &copied, nil
}

func (p *Persistence) FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, errMsg string, completedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, ok := p.executions[id]
	if !ok {
		return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionNotFound)
	}

	if execution.IsTerminal() {
		return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionNotRunning)
	}

	execution.Status = status
	execution.Error = errMsg
	execution.CompletedAt = &completedAt

	return nil
}

func (p *Persistence) RequestCancel(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, ok := p.executions[id]
	if !ok {
		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotFound)
	}

	if execution.IsTerminal() {
		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotRunning)
	}

	execution.CancelRequested = true

	return nil
}

func (p *Persistence) CancelRequested(ctx context.Context, id string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	return execution.CancelRequested, nil
}

func (p *Persistence) SaveExecutionStep(ctx context.Context, step *models.ExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	p.steps[step.ExecutionID] = append(p.steps[step.ExecutionID], step)

	return nil
}

func (p *Persistence) ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	steps := make([]*models.ExecutionStep, len(p.steps[executionID]))
	copy(steps, p.steps[executionID])

	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	return steps, nil
}

func (p *Persistence) SaveCredential(ctx context.Context, credential *models.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if credential.ID == "" {
		credential.ID = uuid.New().String()
	}

	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	credential.UpdatedAt = now
	p.credentials[credential.ID] = credential

	return nil
}

func (p *Persistence) CredentialByID(ctx context.Context, id string) (*models.Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	credential, ok := p.credentials[id]
	if !ok {
		return nil, persistence.ErrCredentialNotFound
	}

	return credential, nil
}

func (p *Persistence) DurableStep(ctx context.Context, executionID, key string) (map[string]any, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	byKey, ok := p.stepLog[executionID]
	if !ok {
		return nil, false, nil
	}

	output, ok := byKey[key]

	return output, ok, nil
}

func (p *Persistence) CommitDurableStep(ctx context.Context, executionID, key string, output map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stepLog[executionID] == nil {
		p.stepLog[executionID] = make(map[string]map[string]any)
	}

	p.stepLog[executionID][key] = output

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}
