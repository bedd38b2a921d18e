package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/signing"
)

// SecretHeader carries the caller's shared secret on webhook intake. It is
// stripped from the headers stored in the execution context.
const SecretHeader = "X-Webhook-Secret"

// ProviderEventHeader names the provider event type on provider webhooks,
// checked against the node's configured allow-list.
const ProviderEventHeader = "X-Provider-Event"

// HandleWebhook receives POST /webhooks/:workflowID?nodeId=... and enqueues
// a run starting at the named webhook trigger node.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowID")
	nodeID := c.Query("nodeId")

	if workflowID == "" || nodeID == "" {
		return badRequest(c, "workflow ID and nodeId are required")
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), workflowID)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	node := workflow.NodeByID(nodeID)
	if node == nil || node.Type != models.NodeTypeTriggerWebhook {
		return notFound(c, "webhook node not found")
	}

	secret, _ := node.Config["secret"].(string)
	if secret == "" {
		return badRequest(c, "webhook node has no secret configured")
	}

	if !signing.VerifySharedSecret(c.Get(SecretHeader), secret) {
		return unauthorized(c, "invalid webhook secret")
	}

	if ignored, message := providerEventIgnored(c.Get(ProviderEventHeader), node); ignored {
		return c.JSON(WebhookResponse{Success: true, Message: message})
	}

	body := map[string]any{}

	if rawBody := c.Body(); len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	headers := make(map[string]string)

	for key, values := range c.GetReqHeaders() {
		if http.CanonicalHeaderKey(key) == SecretHeader {
			continue
		}

		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	query := make(map[string]string)
	for key, value := range c.Queries() {
		query[key] = value
	}

	initialContext := map[string]any{
		node.VariableName(): map[string]any{
			"body":       body,
			"headers":    headers,
			"query":      query,
			"nodeId":     node.ID,
			"receivedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}

	event := events.ExecutionRequested{
		BaseEvent:      events.NewBaseEvent(events.ExecutionRequestedEvent, workflow.ID),
		TriggerNodeID:  node.ID,
		InitialContext: initialContext,
		CorrelationID:  uuid.New().String(),
	}

	if err := h.publisher.Publish(c.Context(), workflow.ID, event); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to enqueue webhook execution",
			"workflow_id", workflow.ID,
			"node_id", node.ID,
			"error", err)

		return internalError(c)
	}

	return c.JSON(WebhookResponse{Success: true})
}

// providerEventIgnored checks the provider event header against the node's
// configured allow-list. An empty list allows everything.
func providerEventIgnored(eventName string, node *models.WorkflowNode) (bool, string) {
	if eventName == "" {
		return false, ""
	}

	allowed, ok := node.Config["events"].([]any)
	if !ok || len(allowed) == 0 {
		return false, ""
	}

	for _, entry := range allowed {
		if name, ok := entry.(string); ok && name == eventName {
			return false, ""
		}
	}

	return true, "ignored event type " + eventName
}
