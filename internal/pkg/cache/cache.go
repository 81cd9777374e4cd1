package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fairdatapoint/fdp-index/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
)

// SetupCache connects to Redis when CACHE_HOST is configured. Without it the
// index runs with in-memory rate limiting only.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "")
	if host == "" {
		log.Info("[Cache] CACHE_HOST not set, Redis disabled")
		return
	}
	port := env.GetEnv("CACHE_PORT", "6379")
	db, _ := strconv.Atoi(env.GetEnv("CACHE_DB", "0"))

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v", err)
	} else {
		log.Infof("[Cache] Successfully connected to Redis: %s", pong)
	}
}

// GetClient returns the Redis client, or nil when Redis is not configured
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the client, used by tests and alternative bootstraps
func SetClient(c *redis.Client) {
	client = c
}

// Host returns host and port of the configured Redis, for components that
// open their own connection pool
func Host() (string, int) {
	port, _ := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	return env.GetEnv("CACHE_HOST", ""), port
}

// Close closes the client if one is open
func Close() {
	if client != nil {
		if err := client.Close(); err != nil {
			log.Warnf("[Cache] Error closing Redis client: %v", err)
		}
	}
}
