package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key suffixes, prefixed per store
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"

	// Jobs expire after 24 hours
	JobTTL = 24 * time.Hour
)

// RedisStore keeps a copy of every unfinished job in Redis. Waiting jobs sit
// in the queue list, running ones in the processing list. One index process
// owns a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store writing its keys under prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Save records job as waiting
func (s *RedisStore) Save(ctx context.Context, job *Job) error {
	return s.put(ctx, job, JobQueueKey)
}

// Claim records job as running
func (s *RedisStore) Claim(ctx context.Context, job *Job) error {
	return s.put(ctx, job, JobProcessingKey)
}

func (s *RedisStore) put(ctx context.Context, job *Job, list string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(JobKeyPrefix+job.ID), data, JobTTL)
	pipe.LRem(ctx, s.key(JobQueueKey), 0, job.ID)
	pipe.LRem(ctx, s.key(JobProcessingKey), 0, job.ID)
	pipe.RPush(ctx, s.key(list), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return nil
}

// Remove forgets a completed or permanently failed job
func (s *RedisStore) Remove(ctx context.Context, jobID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(JobKeyPrefix+jobID))
	pipe.LRem(ctx, s.key(JobQueueKey), 0, jobID)
	pipe.LRem(ctx, s.key(JobProcessingKey), 0, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	return nil
}

// Unfinished returns every waiting and running job, waiting ones first
func (s *RedisStore) Unfinished(ctx context.Context) ([]*Job, error) {
	waiting, err := s.load(ctx, JobQueueKey)
	if err != nil {
		return nil, err
	}
	running, err := s.load(ctx, JobProcessingKey)
	if err != nil {
		return nil, err
	}
	return append(waiting, running...), nil
}

// Stuck returns running jobs that started longer than maxAge before now
func (s *RedisStore) Stuck(ctx context.Context, maxAge time.Duration, now time.Time) ([]*Job, error) {
	running, err := s.load(ctx, JobProcessingKey)
	if err != nil {
		return nil, err
	}

	var stuck []*Job
	for _, job := range running {
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		} else if started.IsZero() {
			started = job.CreatedAt
		}
		if now.Sub(started) > maxAge {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

// load reads the jobs of one list, dropping ids whose data is gone
func (s *RedisStore) load(ctx context.Context, list string) ([]*Job, error) {
	ids, err := s.client.LRange(ctx, s.key(list), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", list, err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.key(JobKeyPrefix+id)).Result()
		if errors.Is(err, redis.Nil) {
			_ = s.client.LRem(ctx, s.key(list), 0, id).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load job %s: %w", id, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			log.Errorf("[JobQueue] Dropping unreadable job %s: %v", id, err)
			_ = s.Remove(ctx, id)
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}
