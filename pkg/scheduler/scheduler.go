// Package scheduler enqueues workflow runs for schedule trigger nodes on
// their cron expressions.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

const defaultSyncInterval = time.Minute

// Scheduler watches published workflows for schedule trigger nodes and
// publishes an execution request each time a node's cron expression fires.
// Workflows are re-read on a fixed interval so edits take effect without a
// restart.
type Scheduler struct {
	persistence  persistence.Persistence
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
	syncInterval time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduledEntry // workflowID/nodeID -> active cron entry
}

type scheduledEntry struct {
	id   cron.EntryID
	expr string
}

type Option func(*Scheduler)

// WithSyncInterval overrides how often the workflow set is re-read.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.syncInterval = d }
}

func NewScheduler(
	store persistence.Persistence,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	scheduler := &Scheduler{
		persistence:  store,
		publisher:    publisher,
		logger:       logger.With("module", "scheduler"),
		syncInterval: defaultSyncInterval,
		entries:      make(map[string]scheduledEntry),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	return scheduler
}

// Start schedules all current cron triggers and keeps them in sync until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started")

	go s.syncLoop(ctx)

	return nil
}

// Stop halts the cron runner, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()

			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
			}
		}
	}
}

// Sync reconciles the cron entries against the persisted workflows. Schedule
// nodes on unpublished workflows are descheduled; changed expressions are
// rescheduled.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusPublished {
			continue
		}

		for _, node := range workflow.Nodes {
			if node.Type != models.NodeTypeTriggerSchedule {
				continue
			}

			key := workflow.ID + "/" + node.ID
			seen[key] = true

			s.scheduleNode(ctx, key, workflow.ID, node)
		}
	}

	for key, entry := range s.entries {
		if !seen[key] {
			s.cron.Remove(entry.id)
			delete(s.entries, key)

			s.logger.InfoContext(ctx, "Descheduled trigger", "key", key)
		}
	}

	return nil
}

func (s *Scheduler) scheduleNode(ctx context.Context, key, workflowID string, node *models.WorkflowNode) {
	expr, ok := node.Config["cron"].(string)
	if !ok || expr == "" {
		s.logger.WarnContext(ctx, "Schedule node has no cron expression", "key", key)

		return
	}

	if existing, ok := s.entries[key]; ok {
		if existing.expr == expr {
			return
		}

		s.cron.Remove(existing.id)
		delete(s.entries, key)
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		s.logger.WarnContext(ctx, "Invalid cron expression", "key", key, "cron", expr, "error", err)

		return
	}

	nodeID := node.ID
	variableName := node.VariableName()

	entryID, err := s.cron.AddFunc(expr, func() {
		s.enqueue(context.Background(), workflowID, nodeID, variableName)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to add cron job", "key", key, "cron", expr, "error", err)

		return
	}

	s.entries[key] = scheduledEntry{id: entryID, expr: expr}
	s.logger.InfoContext(ctx, "Scheduled trigger", "key", key, "cron", expr)
}

func (s *Scheduler) enqueue(ctx context.Context, workflowID, nodeID, variableName string) {
	event := events.ExecutionRequested{
		BaseEvent:     events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
		TriggerNodeID: nodeID,
		InitialContext: map[string]any{
			variableName: map[string]any{
				"nodeId":      nodeID,
				"scheduledAt": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	if err := s.publisher.Publish(ctx, workflowID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue scheduled run",
			"workflow_id", workflowID, "node_id", nodeID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Enqueued scheduled run", "workflow_id", workflowID, "node_id", nodeID)
}
