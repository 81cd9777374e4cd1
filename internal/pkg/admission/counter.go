package admission

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// HitCounter records hits in a sliding window. Hit returns false, without
// recording, when key already has limit hits inside the trailing window.
type HitCounter interface {
	Hit(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (bool, error)
}

type hitLog struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryCounter keeps one hit log per key in process memory. Logs of keys
// without traffic for a whole window expire.
type MemoryCounter struct {
	mu   sync.Mutex
	logs *gocache.Cache
}

// NewMemoryCounter creates an in-process counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		logs: gocache.New(time.Hour, 10*time.Minute),
	}
}

func (m *MemoryCounter) logFor(key string, window time.Duration) *hitLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.logs.Get(key); ok {
		l := v.(*hitLog)
		m.logs.Set(key, l, window)
		return l
	}
	l := &hitLog{}
	m.logs.Set(key, l, window)
	return l
}

// Hit implements HitCounter
func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration, limit int, now time.Time) (bool, error) {
	l := m.logFor(key, window)

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-window)
	kept := l.hits[:0]
	for _, t := range l.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.hits = kept

	if len(l.hits) >= limit {
		return false, nil
	}
	l.hits = append(l.hits, now)
	return true, nil
}

const redisKeyPrefix = "fdp-index:ratelimit:"

// slidingWindowScript prunes, counts and records in one round trip so
// concurrent instances cannot both take the last slot
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local cutoff = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local window = tonumber(ARGV[5])
redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisCounter shares hit logs between index instances through Redis
// sorted sets scored by hit time in milliseconds
type RedisCounter struct {
	client redis.Scripter
}

// NewRedisCounter creates a counter on an existing client
func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{client: client}
}

// Hit implements HitCounter
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	cutoffMs := now.Add(-window).UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.New().String()

	allowed, err := slidingWindowScript.Run(ctx, r.client, []string{redisKeyPrefix + key},
		strconv.FormatInt(cutoffMs, 10),
		strconv.FormatInt(nowMs, 10),
		strconv.Itoa(limit),
		member,
		strconv.FormatInt(window.Milliseconds(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}
