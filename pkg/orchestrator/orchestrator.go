// Package orchestrator drives workflow executions: it validates the graph,
// walks nodes in topological order, invokes executors as durable steps,
// threads context between nodes, publishes live status and persists the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/graph"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/otelhelper"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/steps"
)

// ErrExecutionCancelled is the terminal error recorded when a cooperative
// cancel request is observed between nodes.
var ErrExecutionCancelled = errors.New("execution cancelled")

// Orchestrator runs one workflow at a time per call. It holds no run state
// beyond the call; everything crosses process boundaries via persistence.
type Orchestrator struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	steps       *steps.Runner
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer used for run and node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	store persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	orchestrator := &Orchestrator{
		persistence: store,
		registry:    reg,
		steps:       steps.NewRunner(store, logger),
		publisher:   publisher,
		logger:      logger.With("module", "orchestrator"),
		tracer:      noop.NewTracerProvider().Tracer("orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	return orchestrator
}

// RunParams describes one requested run.
type RunParams struct {
	WorkflowID string

	// ExecutionID pins the run to a deterministic execution identity.
	// Enqueued runs derive it from the request event, so a redelivered
	// request resumes the same execution and replays its committed durable
	// steps instead of starting a fresh one. Empty mints a new identity.
	ExecutionID string

	// TriggerNodeID starts the run at a specific trigger (webhook-initiated
	// runs). Empty means the workflow's first declared trigger.
	TriggerNodeID string

	// InitialContext seeds the context mapping before any node executes.
	InitialContext map[string]any

	// CorrelationID links the execution to the external request that caused it.
	CorrelationID string

	// Enqueued marks runs that arrive through the queue (webhook, schedule).
	// Validation failures on enqueued runs are recorded as FAILED executions;
	// interactive runs surface the validation error and create no execution.
	Enqueued bool
}

// Run executes a workflow to a terminal status. The returned execution is
// terminal except when validation fails interactively, in which case no
// execution exists and the validation error is returned directly.
func (o *Orchestrator) Run(ctx context.Context, params RunParams) (*models.Execution, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", params.WorkflowID),
	))
	defer span.End()

	logger := o.logger.With("workflow_id", params.WorkflowID)

	workflow, err := o.persistence.WorkflowByID(ctx, params.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load workflow %s: %w", params.WorkflowID, err)
	}

	order, validationErr := o.resolveOrder(workflow, params.TriggerNodeID)
	if validationErr != nil {
		if !params.Enqueued {
			return nil, validationErr
		}

		// Enqueued runs have no caller to surface the error to; record the
		// failure as a terminal execution instead.
		execution, err := o.ensureExecution(ctx, params)
		if err != nil {
			return nil, err
		}

		if execution.IsTerminal() {
			return execution, nil
		}

		return o.finishFailed(ctx, execution, "", validationErr, 0)
	}

	execution, err := o.ensureExecution(ctx, params)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	logger = logger.With("execution_id", execution.ID)

	if execution.IsTerminal() {
		logger.InfoContext(ctx, "Execution already terminal, ignoring redelivered request", "status", execution.Status)

		return execution, nil
	}
	logger.InfoContext(ctx, "Execution started", "nodes", len(order))

	o.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
	})

	executionCtx := models.NewExecutionContext(execution.ID, workflow.ID, params.InitialContext)

	for position, nodeID := range order {
		cancelled, err := o.persistence.CancelRequested(ctx, execution.ID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to read cancel flag", "error", err)
		} else if cancelled {
			logger.InfoContext(ctx, "Cancel requested, stopping before next node", "node_id", nodeID)

			return o.finishFailed(ctx, execution, "", ErrExecutionCancelled, position)
		}

		node := workflow.NodeByID(nodeID)
		if node == nil {
			return o.finishFailed(ctx, execution, nodeID, fmt.Errorf("node %s not found in workflow", nodeID), position)
		}

		output, nodeErr := o.executeNode(ctx, execution, executionCtx, node, position)
		if nodeErr != nil {
			logger.ErrorContext(ctx, "Node failed, halting execution",
				"node_id", node.ID,
				"node_type", node.Type,
				"error", nodeErr)

			return o.finishFailed(ctx, execution, node.ID, nodeErr, position)
		}

		executionCtx.Set(node.VariableName(), output)
	}

	completedAt := o.now()

	err = o.persistence.FinishExecution(ctx, execution.ID, models.ExecutionStatusSuccess, "", completedAt)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to finish execution %s: %w", execution.ID, err)
	}

	execution.Status = models.ExecutionStatusSuccess
	execution.CompletedAt = &completedAt

	o.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, workflow.ID),
		ExecutionID:   execution.ID,
		DurationMs:    completedAt.Sub(execution.StartedAt).Milliseconds(),
		NodesExecuted: len(order),
	})

	logger.InfoContext(ctx, "Execution completed", "nodes_executed", len(order))

	return execution, nil
}

// Cancel flips the cooperative cancellation flag. The run stops before its
// next node; a node already in flight runs to completion.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) error {
	err := o.persistence.RequestCancel(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to request cancellation of execution %s: %w", executionID, err)
	}

	o.logger.InfoContext(ctx, "Cancellation requested", "execution_id", executionID)

	return nil
}

func (o *Orchestrator) resolveOrder(workflow *models.Workflow, triggerNodeID string) ([]string, error) {
	if triggerNodeID != "" {
		return graph.ResolveExecutionOrderFrom(triggerNodeID, workflow.Nodes, workflow.Connections)
	}

	return graph.ResolveExecutionOrder(workflow.Nodes, workflow.Connections)
}

// ensureExecution returns the execution this run operates on. When the params
// pin an execution ID that already exists, that execution is resumed; its
// durable step log then makes re-running committed steps a no-op. Otherwise a
// fresh RUNNING execution is created, under the pinned ID when one is given.
func (o *Orchestrator) ensureExecution(ctx context.Context, params RunParams) (*models.Execution, error) {
	if params.ExecutionID != "" {
		existing, err := o.persistence.ExecutionByID(ctx, params.ExecutionID)
		if err == nil {
			return existing, nil
		}

		if !persistence.IsExecutionNotFound(err) {
			return nil, fmt.Errorf("failed to load execution %s: %w", params.ExecutionID, err)
		}
	}

	id := params.ExecutionID
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate execution ID: %w", err)
		}

		id = generated.String()
	}

	execution := &models.Execution{
		ID:            id,
		WorkflowID:    params.WorkflowID,
		Status:        models.ExecutionStatusRunning,
		CorrelationID: params.CorrelationID,
		StartedAt:     o.now(),
	}

	err := o.persistence.CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	return execution, nil
}

// executeNode runs one node through its three durable steps: publish loading,
// run the executor, publish the outcome. Committed steps replay their output
// on retried runs instead of re-executing the side effect.
func (o *Orchestrator) executeNode(
	ctx context.Context,
	execution *models.Execution,
	executionCtx *models.ExecutionContext,
	node *models.WorkflowNode,
	position int,
) (map[string]any, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	startedAt := o.now()

	step := &models.ExecutionStep{
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Order:       position,
		Input:       snapshot(executionCtx.Data),
		StartedAt:   startedAt,
	}

	_, err := o.steps.Do(ctx, execution.ID, "publish-loading-"+node.ID, func(ctx context.Context) (map[string]any, error) {
		o.publish(ctx, execution.ID, events.NodeStatus{
			BaseEvent:   events.NewBaseEvent(events.NodeStatusEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			Status:      models.StepStatusLoading,
		})

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	output, execErr := o.runExecutor(ctx, execution.ID, executionCtx, node)

	_, publishErr := o.steps.Do(ctx, execution.ID, "publish-done-"+node.ID, func(ctx context.Context) (map[string]any, error) {
		status := models.StepStatusSuccess
		errMsg := ""

		if execErr != nil {
			status = models.StepStatusFailed
			errMsg = execErr.Error()
		}

		o.publish(ctx, execution.ID, events.NodeStatus{
			BaseEvent:   events.NewBaseEvent(events.NodeStatusEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			Status:      status,
			Error:       errMsg,
		})

		return nil, nil
	})
	if publishErr != nil {
		o.logger.WarnContext(ctx, "Failed to run status publish step", "node_id", node.ID, "error", publishErr)
	}

	completedAt := o.now()
	step.CompletedAt = &completedAt

	if execErr != nil {
		step.Status = models.StepStatusFailed
		step.Error = execErr.Error()

		var panicErr *nodePanicError
		if errors.As(execErr, &panicErr) {
			step.Stack = panicErr.stack
		}

		otelhelper.SetError(span, execErr)
	} else {
		step.Status = models.StepStatusSuccess
		step.Output = output
	}

	if err := o.persistence.SaveExecutionStep(ctx, step); err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist execution step", "node_id", node.ID, "error", err)
	}

	return output, execErr
}

// runExecutor invokes the node's executor inside its own durable step, with
// panic recovery so a crashing executor fails the node instead of the worker.
func (o *Orchestrator) runExecutor(
	ctx context.Context,
	executionID string,
	executionCtx *models.ExecutionContext,
	node *models.WorkflowNode,
) (map[string]any, error) {
	executor, err := o.registry.ExecutorFor(node.Type)
	if err != nil {
		// A validated workflow never reaches an unregistered type.
		return nil, fmt.Errorf("invariant violation: %w", err)
	}

	return o.steps.Do(ctx, executionID, "run-"+node.ID, func(ctx context.Context) (output map[string]any, execErr error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				execErr = &nodePanicError{
					nodeID: node.ID,
					value:  recovered,
					stack:  string(debug.Stack()),
				}
			}
		}()

		return executor.Execute(ctx, executionCtx, node)
	})
}

// finishFailed marks the execution FAILED, publishes the failure and returns
// the terminal execution. The failure error is recorded, not returned: the
// run itself completed its protocol.
func (o *Orchestrator) finishFailed(
	ctx context.Context,
	execution *models.Execution,
	nodeID string,
	cause error,
	nodesExecuted int,
) (*models.Execution, error) {
	completedAt := o.now()

	err := o.persistence.FinishExecution(ctx, execution.ID, models.ExecutionStatusFailed, cause.Error(), completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to finish execution %s: %w", execution.ID, err)
	}

	execution.Status = models.ExecutionStatusFailed
	execution.Error = cause.Error()
	execution.CompletedAt = &completedAt

	o.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID:   execution.ID,
		NodeID:        nodeID,
		Error:         cause.Error(),
		DurationMs:    completedAt.Sub(execution.StartedAt).Milliseconds(),
		NodesExecuted: nodesExecuted,
	})

	return execution, nil
}

// publish sends a status event fire-and-forget: a publish failure is logged
// and never fails the run.
func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish status event",
			"event_type", event.GetType(),
			"error", err)
	}
}

func snapshot(data map[string]any) map[string]any {
	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = value
	}

	return copied
}

type nodePanicError struct {
	nodeID string
	value  any
	stack  string
}

func (e *nodePanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.nodeID, e.value)
}
