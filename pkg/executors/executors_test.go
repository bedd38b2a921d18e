package executors_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/executors"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/registry"
)

func TestRegisterDefaultExecutors(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	executors.RegisterDefaultExecutors(reg, slog.Default())

	for _, nodeType := range []string{
		models.NodeTypeTriggerManual,
		models.NodeTypeTriggerWebhook,
		models.NodeTypeTriggerSchedule,
		models.NodeTypeHTTPRequest,
		models.NodeTypeTransform,
		models.NodeTypeLog,
	} {
		executor, err := reg.ExecutorFor(nodeType)
		require.NoError(t, err, nodeType)
		assert.Equal(t, nodeType, executor.Type())
	}
}

func TestTriggerExecutor_SurfacesSeededPayload(t *testing.T) {
	executor := executors.NewWebhookTriggerExecutor()

	node := &models.WorkflowNode{
		ID:     "hook",
		Type:   models.NodeTypeTriggerWebhook,
		Config: map[string]any{"variable_name": "order"},
	}

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"order": map[string]any{"body": map[string]any{"id": "o-1"}},
	})

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"body": map[string]any{"id": "o-1"}}, output)
}

func TestTriggerExecutor_NoSeededPayload(t *testing.T) {
	executor := executors.NewManualTriggerExecutor()

	node := &models.WorkflowNode{ID: "start", Type: models.NodeTypeTriggerManual}
	executionCtx := models.NewExecutionContext("exec-1", "wf-1", nil)

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTriggerManual, output["trigger_type"])
	assert.NotEmpty(t, output["triggered_at"])
}

func TestHTTPRequestExecutor_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "created"}`))
	}))
	defer server.Close()

	executor := executors.NewHTTPRequestExecutor()

	node := &models.WorkflowNode{
		ID:   "api_call",
		Type: models.NodeTypeHTTPRequest,
		Config: map[string]any{
			"url":    server.URL,
			"method": "POST",
			"headers": map[string]any{
				"Authorization": "Bearer {{.data.token}}",
			},
			"body": `{"id": "{{.data.order.id}}"}`,
		},
	}

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"token": "token-1",
		"order": map[string]any{"id": "o-1"},
	})

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, output["status_code"])
	assert.Equal(t, map[string]any{"status": "created"}, output["body"])
}

func TestHTTPRequestExecutor_ServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	executor := executors.NewHTTPRequestExecutor()

	node := &models.WorkflowNode{
		ID:     "api_call",
		Type:   models.NodeTypeHTTPRequest,
		Config: map[string]any{"url": server.URL},
	}

	_, err := executor.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil), node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPRequestExecutor_MissingURL(t *testing.T) {
	executor := executors.NewHTTPRequestExecutor()

	node := &models.WorkflowNode{ID: "api_call", Type: models.NodeTypeHTTPRequest, Config: map[string]any{}}

	_, err := executor.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil), node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestTransformExecutor_RendersObject(t *testing.T) {
	executor := executors.NewTransformExecutor()

	node := &models.WorkflowNode{
		ID:   "reshape",
		Type: models.NodeTypeTransform,
		Config: map[string]any{
			"expression": `{"total": {{.data.order.amount}}, "currency": "USD"}`,
		},
	}

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"order": map[string]any{"amount": 12.5},
	})

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 12.5, "currency": "USD"}, output)
}

func TestTransformExecutor_ScalarResultWrapped(t *testing.T) {
	executor := executors.NewTransformExecutor()

	node := &models.WorkflowNode{
		ID:     "pick",
		Type:   models.NodeTypeTransform,
		Config: map[string]any{"expression": "{{.data.name}}"},
	}

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{"name": "ada"})

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "ada"}, output)
}

func TestTransformExecutor_MissingExpression(t *testing.T) {
	executor := executors.NewTransformExecutor()

	node := &models.WorkflowNode{ID: "reshape", Type: models.NodeTypeTransform, Config: map[string]any{}}

	_, err := executor.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil), node)
	require.Error(t, err)
}

func TestLogExecutor_RendersMessage(t *testing.T) {
	executor := executors.NewLogExecutor(slog.Default())

	node := &models.WorkflowNode{
		ID:   "note",
		Type: models.NodeTypeLog,
		Config: map[string]any{
			"message": "processed order {{.data.order.id}}",
			"level":   "warn",
		},
	}

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"order": map[string]any{"id": "o-9"},
	})

	output, err := executor.Execute(context.Background(), executionCtx, node)
	require.NoError(t, err)
	assert.Equal(t, "processed order o-9", output["message"])
	assert.Equal(t, "warn", output["level"])
}
