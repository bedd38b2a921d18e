package models

// ExecutionContext carries the accumulated data of one run. Each node's
// output is stored under its variable name before the next node executes,
// so downstream nodes read upstream results by name.
type ExecutionContext struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Data        map[string]any `json:"data"`
}

// NewExecutionContext creates a context seeded with the given initial data.
func NewExecutionContext(executionID, workflowID string, initial map[string]any) *ExecutionContext {
	data := make(map[string]any, len(initial))
	for key, value := range initial {
		data[key] = value
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Data:        data,
	}
}

// Set stores a node output under its variable name.
func (c *ExecutionContext) Set(name string, value any) {
	c.Data[name] = value
}

// Get reads a previously stored value.
func (c *ExecutionContext) Get(name string) (any, bool) {
	value, ok := c.Data[name]

	return value, ok
}
