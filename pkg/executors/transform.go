package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// TransformExecutor reshapes context data with a Go template expression.
type TransformExecutor struct{}

// NewTransformExecutor creates the transform executor.
func NewTransformExecutor() *TransformExecutor {
	return &TransformExecutor{}
}

func (e *TransformExecutor) Type() string {
	return models.NodeTypeTransform
}

func (e *TransformExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression producing the node output.",
				"examples": []string{
					`{"total": {{.data.order.amount}}, "currency": "USD"}`,
					"{{.data.api_call.body.name}}",
				},
			},
		},
		"required": []string{"expression"},
	}
}

func (e *TransformExecutor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, node *models.WorkflowNode) (map[string]any, error) {
	expression, ok := node.Config["expression"].(string)
	if !ok || expression == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	result, err := template.RenderWithContext(expression, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	if asMap, ok := result.(map[string]any); ok {
		return asMap, nil
	}

	return map[string]any{"result": result}, nil
}
