package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/loomworks/loom/pkg/ratelimit"
)

// NewApp assembles the fiber application. oauthHandlers may be nil when no
// provider is configured; the OAuth routes are then not mounted.
func NewApp(handlers *APIHandlers, oauthHandlers *OAuthHandlers, limiter *ratelimit.Limiter) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(RateLimitMiddleware(limiter))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.ListWorkflows)
	workflows.Post("/", handlers.CreateWorkflow)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Put("/:id", handlers.UpdateWorkflow)
	workflows.Delete("/:id", handlers.DeleteWorkflow)
	workflows.Post("/:id/validate", handlers.ValidateWorkflow)
	workflows.Post("/:id/execute", handlers.ExecuteWorkflow)

	executions := app.Group("/executions")
	executions.Get("/:id", handlers.GetExecution)
	executions.Get("/:id/steps", handlers.GetExecutionSteps)
	executions.Post("/:id/cancel", handlers.CancelExecution)

	app.Post("/webhooks/:workflowID", handlers.HandleWebhook)

	if oauthHandlers != nil {
		app.Get("/oauth/:provider", oauthHandlers.Authorize)
		app.Get("/oauth/:provider/callback", oauthHandlers.Callback)
	}

	return app
}
