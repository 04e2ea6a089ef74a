package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with all API routes registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Loom API")
	})

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.GetWorkflows)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Put("/:id", handlers.SaveWorkflow)
	workflows.Delete("/:id", handlers.DeleteWorkflow)
	workflows.Post("/:id/executions", handlers.TriggerWorkflow)

	executions := app.Group("/executions")
	executions.Get("/", handlers.ListExecutions)
	executions.Get("/:id", handlers.GetExecution)

	creds := app.Group("/credentials")
	creds.Post("/", handlers.CreateCredential)
	creds.Delete("/:id", handlers.DeleteCredential)

	webhooks := app.Group("/webhooks")
	webhooks.Post("/stripe", handlers.StripeWebhook)
	webhooks.Post("/forms", handlers.FormsWebhook)

	app.Get("/health", handlers.HealthCheck)

	return app
}
