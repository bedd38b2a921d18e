package executors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// LogExecutor writes a templated message to the structured log.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates the log executor.
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger.With("module", "executors.log")}
}

func (e *LogExecutor) Type() string {
	return models.NodeTypeLog
}

func (e *LogExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating over context data.",
				"examples": []string{
					"Processing order {{.data.order.id}}",
					"Request returned {{.data.api_call.status_code}}",
				},
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []string{"debug", "info", "warn", "error"},
				"default": "info",
			},
		},
		"required": []string{"message"},
	}
}

func (e *LogExecutor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, node *models.WorkflowNode) (map[string]any, error) {
	message, ok := node.Config["message"].(string)
	if !ok || message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	level := "info"
	if lvl, ok := node.Config["level"].(string); ok && lvl != "" {
		level = lvl
	}

	rendered, err := template.RenderWithContext(message, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render log message: %w", err)
	}

	renderedMessage := fmt.Sprintf("%v", rendered)

	logger := e.logger.With(
		"execution_id", executionCtx.ExecutionID,
		"node_id", node.ID,
	)

	switch level {
	case "debug":
		logger.DebugContext(ctx, renderedMessage)
	case "warn":
		logger.WarnContext(ctx, renderedMessage)
	case "error":
		logger.ErrorContext(ctx, renderedMessage)
	default:
		logger.InfoContext(ctx, renderedMessage)
	}

	return map[string]any{
		"message": renderedMessage,
		"level":   level,
	}, nil
}
