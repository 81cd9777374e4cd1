package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/fairdatapoint/fdp-index/internal/pkg/cache"
	"github.com/fairdatapoint/fdp-index/internal/pkg/env"
)

// NewLimiterStorage returns a Redis storage for the request limiter so that
// several index instances share one budget. Without Redis it returns nil
// and the limiter keeps its counters in memory.
func NewLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		return nil
	}

	host, port := cache.Host()
	password := env.GetEnv("CACHE_PASSWORD", "")
	addr := cacheClient.Options().Addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	if p := cacheClient.Options().Password; p != "" {
		password = p
	}

	// Separate database for limiter keys (admission counters use the cache DB)
	database := env.GetEnvInt("CACHE_LIMITER_DB", 1)
	log.Infof("[Router] Using Redis limiter storage at %s:%d/%d", host, port, database)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
