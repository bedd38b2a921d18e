// Package events defines event types for execution requests and live status
// publication.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
)

type EventType string

// Topics.
const (
	ExecutionTopic = "loom.execution.requests" // run queue consumed by workers
	StatusTopic    = "loom.execution.status"   // live status feed consumed by observers
)

const (
	EventKeyMetadataKey  = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	NodeStatusEvent         EventType = "node.status"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// ExecutionRequested asks a worker to run a workflow. TriggerNodeID and
// InitialContext are set for webhook-initiated runs.
type ExecutionRequested struct {
	BaseEvent

	TriggerNodeID  string         `json:"trigger_node_id,omitempty"`
	InitialContext map[string]any `json:"initial_context,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
}

func (e ExecutionRequested) GetType() EventType { return ExecutionRequestedEvent }

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	NodeID        string `json:"node_id,omitempty"`
	Error         string `json:"error"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

// NodeStatus is the live per-node status feed: loading, success or failed.
type NodeStatus struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	Status      models.StepStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
}

func (e NodeStatus) GetType() EventType { return NodeStatusEvent }
