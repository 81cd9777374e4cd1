package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/app/controllers"
	"github.com/fairdatapoint/fdp-index/internal/pkg/middleware"
)

// Router registers a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the index API. The health route goes first so it
// stays outside the rate limiter.
func InstallRouter(app *fiber.App, controller *controllers.IndexController, tokens []middleware.APIToken) {
	setup(app, NewHealthRouter(), NewApiRouter(controller, tokens, NewLimiterStorage()))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
