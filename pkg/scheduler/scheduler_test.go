package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, key string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func scheduledWorkflow(id string, status models.WorkflowStatus, expr string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "scheduled " + id,
		Owner:  "user-1",
		Status: status,
		Nodes: []*models.WorkflowNode{
			{
				ID:   "tick",
				Type: models.NodeTypeTriggerSchedule,
				Config: map[string]any{
					"cron":          expr,
					"variable_name": "tick",
				},
			},
			{ID: "note", Type: models.NodeTypeLog, Config: map[string]any{"message": "hi"}},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "tick", TargetNodeID: "note"},
		},
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *memory.Persistence, *capturingPublisher) {
	t.Helper()

	store := memory.NewPersistence()
	publisher := &capturingPublisher{}
	scheduler := NewScheduler(store, publisher, slog.Default())

	require.NoError(t, scheduler.Start(context.Background()))
	t.Cleanup(scheduler.Stop)

	return scheduler, store, publisher
}

func TestSync_SchedulesPublishedWorkflows(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)

	ctx := context.Background()
	require.NoError(t, store.SaveWorkflow(ctx, scheduledWorkflow("wf-1", models.WorkflowStatusPublished, "* * * * *")))
	require.NoError(t, store.SaveWorkflow(ctx, scheduledWorkflow("wf-2", models.WorkflowStatusDraft, "* * * * *")))

	require.NoError(t, scheduler.Sync(ctx))

	assert.Len(t, scheduler.entries, 1)
	assert.Contains(t, scheduler.entries, "wf-1/tick")
}

func TestSync_SkipsInvalidCronExpression(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)

	ctx := context.Background()
	require.NoError(t, store.SaveWorkflow(ctx, scheduledWorkflow("wf-1", models.WorkflowStatusPublished, "not-a-cron")))

	require.NoError(t, scheduler.Sync(ctx))

	assert.Empty(t, scheduler.entries)
}

func TestSync_DeschedulesRemovedTriggers(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)

	ctx := context.Background()
	workflow := scheduledWorkflow("wf-1", models.WorkflowStatusPublished, "* * * * *")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, scheduler.Sync(ctx))
	require.Len(t, scheduler.entries, 1)

	workflow.Status = models.WorkflowStatusDraft
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, scheduler.Sync(ctx))

	assert.Empty(t, scheduler.entries)
}

func TestSync_ReschedulesChangedExpression(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)

	ctx := context.Background()
	workflow := scheduledWorkflow("wf-1", models.WorkflowStatusPublished, "* * * * *")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, scheduler.Sync(ctx))

	first := scheduler.entries["wf-1/tick"]

	workflow.Nodes[0].Config["cron"] = "0 * * * *"
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, scheduler.Sync(ctx))

	second := scheduler.entries["wf-1/tick"]
	assert.NotEqual(t, first.id, second.id)
	assert.Equal(t, "0 * * * *", second.expr)
}

func TestEnqueue_PublishesExecutionRequested(t *testing.T) {
	scheduler, _, publisher := newTestScheduler(t)

	scheduler.enqueue(context.Background(), "wf-1", "tick", "tick")

	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	require.Len(t, publisher.events, 1)

	requested, ok := publisher.events[0].(events.ExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, "wf-1", requested.WorkflowID)
	assert.Equal(t, "tick", requested.TriggerNodeID)

	seeded, ok := requested.InitialContext["tick"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tick", seeded["nodeId"])
	assert.NotEmpty(t, seeded["scheduledAt"])
}
