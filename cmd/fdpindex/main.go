package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/fairdatapoint/fdp-index/app/controllers"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/fairdatapoint/fdp-index/internal/pkg/cache"
	"github.com/fairdatapoint/fdp-index/internal/pkg/catalog"
	"github.com/fairdatapoint/fdp-index/internal/pkg/database"
	"github.com/fairdatapoint/fdp-index/internal/pkg/env"
	"github.com/fairdatapoint/fdp-index/internal/pkg/jobqueue"
	"github.com/fairdatapoint/fdp-index/internal/pkg/middleware"
	"github.com/fairdatapoint/fdp-index/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("[Main] Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("[Main] Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "8080"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("[Main] Server stopped: %v", err)
	}

	// in-flight harvests and deliveries finish before the stores close
	manager.Stop()
	database.Close()
	cache.Close()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	stack, err := catalog.NewStack(database.GetDB(), newHitCounter(), catalog.StackConfig{
		Workers:        env.GetEnvInt("INDEX_WORKERS", 4),
		RetryDelay:     env.GetEnvDuration("WEBHOOK_RETRY_DELAY", 30*time.Second),
		HarvestTimeout: env.GetEnvDuration("HARVEST_TIMEOUT", 30*time.Second),
		WebhookTimeout: env.GetEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		JobStore:       newJobStore(),
	})
	if err != nil {
		panic(err)
	}

	manager := jobqueue.NewManager(stack.Queue, env.GetEnvDuration("REFRESH_INTERVAL", time.Hour), stack.Service.RefreshStale)
	manager.Start()

	tokens, err := middleware.ParseAPITokens(env.GetEnv("INDEX_API_TOKENS", ""))
	if err != nil {
		panic(err)
	}
	if len(tokens) == 0 {
		log.Warn("[Main] INDEX_API_TOKENS is empty, admin endpoints are unreachable")
	}

	cfg := fiber.Config{
		AppName:   "fdp-index",
		BodyLimit: 1 << 20,
	}
	// behind a reverse proxy the caller address comes from the forwarded header
	if proxy := env.GetEnv("APP_TRUSTED_PROXY", ""); proxy != "" {
		cfg.ProxyHeader = fiber.HeaderXForwardedFor
		cfg.EnableTrustedProxyCheck = true
		cfg.TrustedProxies = strings.Split(proxy, ",")
	}
	app := fiber.New(cfg)

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: findOpenAPISpec(),
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, controllers.NewIndexController(stack.Service), tokens)

	return app, manager
}

// newHitCounter picks where admission hits are counted. Redis lets several
// index instances share one rate limit.
func newHitCounter() admission.HitCounter {
	if env.GetEnv("RATE_LIMIT_BACKEND", "memory") == "redis" {
		if client := cache.GetClient(); client != nil {
			log.Info("[Main] Counting admission hits in Redis")
			return admission.NewRedisCounter(client)
		}
		log.Warn("[Main] RATE_LIMIT_BACKEND=redis but Redis is not configured, counting in memory")
	}
	return admission.NewMemoryCounter()
}

// newJobStore keeps queued harvests and deliveries in Redis so a restart
// resumes them
func newJobStore() *jobqueue.RedisStore {
	if env.GetEnv("JOB_QUEUE_BACKEND", "memory") != "redis" {
		return nil
	}
	client := cache.GetClient()
	if client == nil {
		log.Warn("[Main] JOB_QUEUE_BACKEND=redis but Redis is not configured, queueing in memory")
		return nil
	}
	log.Info("[Main] Persisting queued jobs in Redis")
	return jobqueue.NewRedisStore(client, env.GetEnv("JOB_QUEUE_PREFIX", "fdp-index:"))
}

func findOpenAPISpec() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/fdpindex to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "docs/openapi.yml"); err == nil {
			return path + "docs/openapi.yml"
		}
	}
	panic("Could not find docs/openapi.yml")
}
