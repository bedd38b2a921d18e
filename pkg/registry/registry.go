// Package registry maps node types to their executors and validates node
// configuration against each executor's JSON schema.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomworks/loom/pkg/models"
)

// ErrUnknownNodeType is returned when a node references a type no executor
// was registered for. Workflows are validated against the registry before
// they run, so hitting this during execution means the registry changed
// underneath a stored workflow.
var ErrUnknownNodeType = errors.New("unknown node type")

// Executor runs one node of a workflow.
type Executor interface {
	// Type returns the node type this executor handles.
	Type() string

	// Schema returns the JSON schema for the node's configuration.
	Schema() map[string]any

	// Execute runs the node and returns its output, which the orchestrator
	// stores under the node's variable name.
	Execute(ctx context.Context, executionCtx *models.ExecutionContext, node *models.WorkflowNode) (map[string]any, error)
}

// Registry holds the executors available to the orchestrator.
type Registry struct {
	logger    *slog.Logger
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		executors: make(map[string]Executor),
	}
}

// Register adds an executor. Registering the same type twice replaces the
// earlier executor.
func (r *Registry) Register(executor Executor) {
	r.executors[executor.Type()] = executor
	r.logger.Debug("Registered node executor", "node_type", executor.Type())
}

// ExecutorFor returns the executor for a node type.
func (r *Registry) ExecutorFor(nodeType string) (Executor, error) {
	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	return executor, nil
}

// NodeTypes returns the registered node types.
func (r *Registry) NodeTypes() []string {
	types := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		types = append(types, nodeType)
	}

	return types
}

// ValidateNodeConfig checks a node's configuration against the schema of its
// executor.
func (r *Registry) ValidateNodeConfig(node *models.WorkflowNode) error {
	executor, err := r.ExecutorFor(node.Type)
	if err != nil {
		return err
	}

	schema := executor.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return fmt.Errorf("failed to validate node %q configuration: %w", node.ID, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, validationError := range result.Errors() {
			messages = append(messages, validationError.String())
		}

		return fmt.Errorf("node %q configuration invalid: %s", node.ID, strings.Join(messages, "; "))
	}

	return nil
}

// ValidateWorkflowConfigs validates the configuration of every node in a
// workflow.
func (r *Registry) ValidateWorkflowConfigs(workflow *models.Workflow) error {
	for _, node := range workflow.Nodes {
		if err := r.ValidateNodeConfig(node); err != nil {
			return err
		}
	}

	return nil
}
