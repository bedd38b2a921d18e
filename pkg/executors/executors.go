// Package executors provides the built-in node executors.
package executors

import (
	"log/slog"

	"github.com/loomworks/loom/pkg/registry"
)

// RegisterDefaultExecutors registers every built-in executor with the
// registry. Called once at process startup.
func RegisterDefaultExecutors(reg *registry.Registry, logger *slog.Logger) {
	reg.Register(NewManualTriggerExecutor())
	reg.Register(NewWebhookTriggerExecutor())
	reg.Register(NewScheduleTriggerExecutor())

	reg.Register(NewHTTPRequestExecutor())
	reg.Register(NewTransformExecutor())
	reg.Register(NewLogExecutor(logger))
}
