package web

import (
	"github.com/gofiber/fiber/v3"
)

// Register mounts every route with its access rule.
func Register(app *fiber.App, handlers *APIHandlers, middleware *Middleware) {
	app.Get("/health", handlers.HealthCheck)

	// The trigger path is the capability; no other credential is checked.
	app.Post("/webhook/*", handlers.RelayWebhook)

	w := app.Group("/workflows")

	w.Post("/:id/users", middleware.RequireServiceKey, handlers.GetEligibleUsers)

	w.Get("/", middleware.RequireUser, handlers.GetWorkflows)
	w.Post("/:id/execute", middleware.RequireUser, handlers.ExecuteWorkflow)
	w.Get("/:id/prompt", middleware.RequireUser, handlers.GetPrompt)
	w.Post("/:id/prompt", middleware.RequireUser, handlers.SavePrompt)
	w.Get("/:id/settings", middleware.RequireUser, handlers.GetSettings)
	w.Post("/:id/settings", middleware.RequireUser, handlers.SaveSettings)

	w.Post("/backup", middleware.RequireUser, middleware.RequireAdmin, handlers.BackupWorkflows)
	w.Post("/import", middleware.RequireUser, middleware.RequireAdmin, handlers.ImportWorkflows)
	w.Post("/:id/activate", middleware.RequireUser, middleware.RequireAdmin, handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", middleware.RequireUser, middleware.RequireAdmin, handlers.DeactivateWorkflow)
}
