package executors

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// TriggerExecutor handles trigger nodes. Trigger intake (webhook, schedule,
// manual execute) happens before the run starts, so at execution time the
// trigger's payload already sits in the initial context; the executor
// surfaces it as the node's output.
type TriggerExecutor struct {
	nodeType string
}

// NewManualTriggerExecutor creates the executor for manually started runs.
func NewManualTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{nodeType: models.NodeTypeTriggerManual}
}

// NewWebhookTriggerExecutor creates the executor for webhook-started runs.
func NewWebhookTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{nodeType: models.NodeTypeTriggerWebhook}
}

// NewScheduleTriggerExecutor creates the executor for cron-started runs.
func NewScheduleTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{nodeType: models.NodeTypeTriggerSchedule}
}

func (e *TriggerExecutor) Type() string {
	return e.nodeType
}

func (e *TriggerExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variable_name": map[string]any{
				"type":        "string",
				"description": "Context key the trigger payload is stored under. Defaults to the node ID.",
			},
			"secret": map[string]any{
				"type":        "string",
				"description": "Shared secret callers must present (webhook triggers).",
			},
			"events": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Provider event names to accept. Empty accepts all.",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression (schedule triggers).",
			},
		},
	}
}

func (e *TriggerExecutor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, node *models.WorkflowNode) (map[string]any, error) {
	payload, ok := executionCtx.Get(node.VariableName())
	if ok {
		if asMap, isMap := payload.(map[string]any); isMap {
			return asMap, nil
		}

		return map[string]any{"payload": payload}, nil
	}

	return map[string]any{
		"trigger_type": e.nodeType,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
