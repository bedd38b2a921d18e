package web_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/web"
)

func webhookWorkflowBody(secret string, events []string) map[string]any {
	config := map[string]any{
		"variable_name": "order",
		"secret":        secret,
	}

	if events != nil {
		list := make([]any, len(events))
		for i, event := range events {
			list[i] = event
		}

		config["events"] = list
	}

	return map[string]any{
		"name":  "webhook pipeline",
		"owner": "user-1",
		"nodes": []map[string]any{
			{"id": "hook", "type": models.NodeTypeTriggerWebhook, "config": config},
			{"id": "note", "type": models.NodeTypeLog, "config": map[string]any{"message": "got {{.data.order.nodeId}}"}},
		},
		"connections": []map[string]any{
			{"source_node_id": "hook", "target_node_id": "note"},
		},
	}
}

func postWebhook(t *testing.T, env *testEnv, path, secret, providerEvent string, body []byte) *http.Response {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")

	if secret != "" {
		request.Header.Set(web.SecretHeader, secret)
	}

	if providerEvent != "" {
		request.Header.Set(web.ProviderEventHeader, providerEvent)
	}

	response, err := env.app.Test(request)
	require.NoError(t, err)

	return response
}

func TestHandleWebhook_EnqueuesRunWithSeededContext(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/", webhookWorkflowBody("hook-secret", nil)))
	workflowID := created["id"].(string)

	response := postWebhook(t, env,
		"/webhooks/"+workflowID+"?nodeId=hook&source=shop",
		"hook-secret", "",
		[]byte(`{"id": "o-1", "amount": 12}`),
	)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	requested := env.publisher.requested()
	require.Len(t, requested, 1)
	assert.Equal(t, "hook", requested[0].TriggerNodeID)

	seeded, ok := requested[0].InitialContext["order"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, map[string]any{"id": "o-1", "amount": float64(12)}, seeded["body"])
	assert.Equal(t, "hook", seeded["nodeId"])
	assert.NotEmpty(t, seeded["receivedAt"])

	query, ok := seeded["query"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "shop", query["source"])

	// The shared secret never enters the execution context.
	headers, ok := seeded["headers"].(map[string]string)
	require.True(t, ok)

	for key := range headers {
		assert.NotEqual(t, web.SecretHeader, http.CanonicalHeaderKey(key))
	}
}

func TestHandleWebhook_MissingNodeID(t *testing.T) {
	env := setupTestApp(t)

	response := postWebhook(t, env, "/webhooks/wf-1", "secret", "", nil)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestHandleWebhook_WorkflowNotFound(t *testing.T) {
	env := setupTestApp(t)

	response := postWebhook(t, env, "/webhooks/missing?nodeId=hook", "secret", "", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestHandleWebhook_WrongNodeType(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/", validWorkflowBody()))
	workflowID := created["id"].(string)

	// "note" exists but is not a webhook trigger.
	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=note", "secret", "", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestHandleWebhook_UnconfiguredSecret(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/", webhookWorkflowBody("", nil)))
	workflowID := created["id"].(string)

	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=hook", "anything", "", nil)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestHandleWebhook_WrongSecret(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/", webhookWorkflowBody("hook-secret", nil)))
	workflowID := created["id"].(string)

	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=hook", "wrong", "", nil)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	assert.Empty(t, env.publisher.requested())
}

func TestHandleWebhook_BadJSON(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/", webhookWorkflowBody("hook-secret", nil)))
	workflowID := created["id"].(string)

	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=hook", "hook-secret", "", []byte(`{broken`))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestHandleWebhook_DisallowedProviderEventIgnored(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/",
		webhookWorkflowBody("hook-secret", []string{"push", "release"})))
	workflowID := created["id"].(string)

	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=hook", "hook-secret", "issues", []byte(`{}`))
	assert.Equal(t, http.StatusOK, response.StatusCode)

	body := decodeBody(t, response)
	assert.Contains(t, body["message"], "ignored")

	assert.Empty(t, env.publisher.requested())
}

func TestHandleWebhook_AllowedProviderEventEnqueues(t *testing.T) {
	env := setupTestApp(t)

	created := decodeBody(t, doJSON(t, env.app, http.MethodPost, "/workflows/",
		webhookWorkflowBody("hook-secret", []string{"push"})))
	workflowID := created["id"].(string)

	response := postWebhook(t, env, "/webhooks/"+workflowID+"?nodeId=hook", "hook-secret", "push", []byte(`{}`))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, env.publisher.requested(), 1)
}
