package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/fairdatapoint/fdp-index/app/controllers"
	"github.com/fairdatapoint/fdp-index/internal/pkg/env"
	"github.com/fairdatapoint/fdp-index/internal/pkg/middleware"
	"github.com/fairdatapoint/fdp-index/internal/pkg/usercontext"
)

type ApiRouter struct {
	controller *controllers.IndexController
	tokens     []middleware.APIToken
	storage    fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	ctrl := h.controller

	index := app.Group("/index", middleware.APIKeyAuthMiddleware(h.tokens))
	public := h.publicLimiter()

	// Ping endpoint, its own admission gate applies on top of the limiter
	index.Post("/", public, ctrl.HandlePing)

	// Entry catalog. "all" and "info" must be registered before ":uuid".
	entries := index.Group("/entries")
	entries.Get("/", public, ctrl.HandleListEntries)
	entries.Get("/all", public, ctrl.HandleAllEntries)
	entries.Get("/info", public, ctrl.HandleEntriesInfo)
	entries.Get("/:uuid", public, ctrl.HandleGetEntry)
	entries.Get("/:uuid/events", public, ctrl.HandleEntryEvents)
	entries.Get("/:uuid/data", public, ctrl.HandleEntryData)
	entries.Put("/:uuid", middleware.RequireAdmin, ctrl.HandleUpdateEntry)
	entries.Delete("/:uuid", middleware.RequireAdmin, ctrl.HandleDeleteEntry)

	// Admin routes
	admin := index.Group("/admin", middleware.RequireAdmin)
	admin.Post("/trigger", ctrl.HandleAdminTrigger)
	admin.Post("/trigger-all", ctrl.HandleAdminTriggerAll)
	admin.Post("/ping-webhook", ctrl.HandlePingWebhook)

	admin.Get("/settings", ctrl.HandleGetSettings)
	admin.Put("/settings", ctrl.HandleUpdateSettings)
	admin.Delete("/settings", ctrl.HandleResetSettings)

	admin.Get("/webhooks", ctrl.HandleListWebhooks)
	admin.Post("/webhooks", ctrl.HandleCreateWebhook)
	admin.Get("/webhooks/:uuid", ctrl.HandleGetWebhook)
	admin.Put("/webhooks/:uuid", ctrl.HandleUpdateWebhook)
	admin.Delete("/webhooks/:uuid", ctrl.HandleDeleteWebhook)

	admin.Get("/events", ctrl.HandleListEvents)
	admin.Get("/events/:uuid", ctrl.HandleGetEvent)
}

// publicLimiter throttles anonymous traffic per client IP. Admins are not
// limited.
func (h ApiRouter) publicLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		Storage:    h.storage,
		Next: func(c *fiber.Ctx) bool {
			return usercontext.IsAdmin(c)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return "index:" + controllers.GetClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}

func NewApiRouter(controller *controllers.IndexController, tokens []middleware.APIToken, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{controller: controller, tokens: tokens, storage: storage}
}
