package models

import "time"

// ExecutionStatus defines the state machine of one workflow run.
// RUNNING transitions to exactly one of SUCCESS or FAILED; terminal
// executions are never mutated again.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// Execution is one run instance of a workflow.
type Execution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	Status          ExecutionStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}

// StepStatus defines the possible states of a node execution step.
type StepStatus string

const (
	StepStatusLoading StepStatus = "loading"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

// ExecutionStep is the persisted record of one node's execution within a run.
// Steps are append-only and never mutated after the node's executor returns.
type ExecutionStep struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	Status      StepStatus     `json:"status"`
	Order       int            `json:"order"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Stack       string         `json:"stack,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
