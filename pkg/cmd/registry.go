// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/loomworks/loom/pkg/executors"
	"github.com/loomworks/loom/pkg/registry"
)

// NewRegistry builds a node executor registry with all built-in node types
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	executors.RegisterDefaultExecutors(reg, logger)

	return reg
}
