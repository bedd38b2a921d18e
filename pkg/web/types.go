// Package web provides the HTTP surface of the engine: workflow management,
// execution control, webhook intake and the OAuth connect flow.
package web

import "github.com/loomworks/loom/pkg/models"

// SaveWorkflowRequest carries a whole workflow graph. Saves have replace-all
// semantics for nodes and connections.
type SaveWorkflowRequest struct {
	Name        string                 `json:"name"  validate:"required,min=3"`
	Owner       string                 `json:"owner" validate:"required"`
	Status      models.WorkflowStatus  `json:"status,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
}

// ExecuteResponse acknowledges an enqueued run.
type ExecuteResponse struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// WebhookResponse acknowledges webhook intake.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuthorizeResponse carries the provider authorization URL for the UI to
// redirect to.
type AuthorizeResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}
