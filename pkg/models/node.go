package models

import "strings"

// Built-in node types. Trigger types carry the "trigger:" prefix.
const (
	NodeTypeTriggerManual   = "trigger:manual"
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerSchedule = "trigger:schedule"

	NodeTypeHTTPRequest = "httprequest"
	NodeTypeTransform   = "transform"
	NodeTypeLog         = "log"
)

const triggerTypePrefix = "trigger:"

// DefaultHandle is the handle name used when a connection does not name one.
const DefaultHandle = "main"

// WorkflowNode represents one typed unit of work in a workflow. The node ID is
// opaque and client-generated; position is layout-only. Config is read-only
// during execution.
type WorkflowNode struct {
	ID        string         `json:"id"   validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return strings.HasPrefix(n.Type, triggerTypePrefix)
}

// VariableName returns the context key this node's output is stored under.
// Falls back to the node ID when no variable name is configured.
func (n *WorkflowNode) VariableName() string {
	if name, ok := n.Config["variable_name"].(string); ok && name != "" {
		return name
	}

	return n.ID
}

// Connection is a directed edge between a node output handle and a node input
// handle. Handles default to "main".
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourceHandle string `json:"source_handle"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	TargetHandle string `json:"target_handle"`
}

// Normalize fills in default handle names.
func (c *Connection) Normalize() {
	if c.SourceHandle == "" {
		c.SourceHandle = DefaultHandle
	}

	if c.TargetHandle == "" {
		c.TargetHandle = DefaultHandle
	}
}
