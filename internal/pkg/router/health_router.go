package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/internal/pkg/cache"
	"github.com/fairdatapoint/fdp-index/internal/pkg/database"
)

type HealthRouter struct{}

// InstallRouter registers GET /health, reporting database and cache reachability
func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"database": "ok", "cache": "disabled"}
		code := fiber.StatusOK

		if db := database.GetDB(); db == nil {
			status["database"] = "unavailable"
			code = fiber.StatusServiceUnavailable
		} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status["database"] = "unavailable"
			code = fiber.StatusServiceUnavailable
		}

		if client := cache.GetClient(); client != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				status["cache"] = "unavailable"
			} else {
				status["cache"] = "ok"
			}
		}
		return c.Status(code).JSON(status)
	})
}

func NewHealthRouter() *HealthRouter {
	return &HealthRouter{}
}
