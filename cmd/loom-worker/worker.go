// Package main provides the Loom worker, which consumes execution requests
// from the event bus and drives the orchestrator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/orchestrator"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
)

type WorkerManager struct {
	id           string
	logger       *slog.Logger
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	orchestrator *orchestrator.Orchestrator
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	reg *registry.Registry,
	opts ...orchestrator.Option,
) *WorkerManager {
	workerLogger := logger.With("module", "loom-worker", "worker_id", id)

	return &WorkerManager{
		id:           id,
		logger:       workerLogger,
		persistence:  store,
		eventBus:     eventBus,
		orchestrator: orchestrator.NewOrchestrator(store, reg, eventBus, workerLogger, opts...),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx, events.ExecutionTopic)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", requested.WorkflowID,
		"event_id", requested.ID,
		"correlation_id", requested.CorrelationID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	// The execution identity is pinned to the request event ID, so a
	// redelivered message resumes the same execution and replays its
	// committed durable steps instead of re-running side effects.
	execution, err := w.orchestrator.Run(ctx, orchestrator.RunParams{
		WorkflowID:     requested.WorkflowID,
		ExecutionID:    requested.ID,
		TriggerNodeID:  requested.TriggerNodeID,
		InitialContext: requested.InitialContext,
		CorrelationID:  requested.CorrelationID,
		Enqueued:       true,
	})
	if err != nil {
		// A workflow deleted after enqueue can never succeed; ack the
		// message instead of letting it redeliver forever.
		if persistence.IsWorkflowNotFound(err) {
			logger.WarnContext(ctx, "Workflow no longer exists, dropping request", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to run workflow", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution finished",
		"execution_id", execution.ID,
		"status", execution.Status,
	)

	return nil
}
