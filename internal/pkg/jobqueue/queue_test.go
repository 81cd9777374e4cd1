package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitIdle waits for the queue with a test timeout
func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.jobs)
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, "harvest", string(JobTypeHarvest))
	assert.Equal(t, "webhook_delivery", string(JobTypeWebhookDelivery))
}

func TestQueue_ProcessesRegisteredJobs(t *testing.T) {
	q := NewQueue(2)
	var seen sync.Map
	q.Register(JobTypeHarvest, func(ctx context.Context, job *Job) error {
		payload, err := HarvestJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		seen.Store(payload.ClientURL, payload.EventUUID)
		return nil
	})
	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(JobTypeHarvest, HarvestJobPayload{ClientURL: "https://a.example.org", EventUUID: "e1"}.ToMap())
	require.NoError(t, err)
	_, err = q.EnqueueJob(JobTypeHarvest, HarvestJobPayload{ClientURL: "https://b.example.org", EventUUID: "e2"}.ToMap())
	require.NoError(t, err)

	waitIdle(t, q)

	v, ok := seen.Load("https://a.example.org")
	assert.True(t, ok)
	assert.Equal(t, "e1", v)
	_, ok = seen.Load("https://b.example.org")
	assert.True(t, ok)
	assert.Equal(t, int64(2), q.GetJobStats()[JobStatusCompleted])
}

func TestQueue_RetriesUntilMaxAttempts(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)

	var attempts atomic.Int32
	var finalSeen atomic.Bool
	q.Register(JobTypeWebhookDelivery, func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		if job.IsFinalAttempt() {
			finalSeen.Store(true)
		}
		return errors.New("receiver down")
	})
	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(JobTypeWebhookDelivery, WebhookDeliveryJobPayload{EventUUID: "e"}.ToMap())
	require.NoError(t, err)
	waitIdle(t, q)

	assert.Equal(t, int32(DefaultMaxRetries), attempts.Load())
	assert.True(t, finalSeen.Load())
	stats := q.GetJobStats()
	assert.Equal(t, int64(1), stats[JobStatusFailed])
	assert.Equal(t, int64(DefaultMaxRetries-1), stats[JobStatusRetrying])
}

func TestQueue_SucceedsOnRetry(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)

	var attempts atomic.Int32
	q.Register(JobTypeWebhookDelivery, func(ctx context.Context, job *Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})
	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(JobTypeWebhookDelivery, nil)
	require.NoError(t, err)
	waitIdle(t, q)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int64(1), q.GetJobStats()[JobStatusCompleted])
}

func TestQueue_UnknownJobTypeFailsOnce(t *testing.T) {
	q := NewQueue(1)
	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob("bogus", nil)
	require.NoError(t, err)
	waitIdle(t, q)

	assert.Equal(t, int64(1), q.GetJobStats()[JobStatusFailed])
	assert.Zero(t, q.GetJobStats()[JobStatusRetrying])
}

func TestQueue_PanicIsAFailure(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)
	q.Register(JobTypeHarvest, func(ctx context.Context, job *Job) error {
		panic("boom")
	})
	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(JobTypeHarvest, nil)
	require.NoError(t, err)
	waitIdle(t, q)
	assert.Equal(t, int64(1), q.GetJobStats()[JobStatusFailed])
}

func TestQueue_StopDrainsAndRejects(t *testing.T) {
	q := NewQueue(1)
	var done atomic.Int32
	q.Register(JobTypeHarvest, func(ctx context.Context, job *Job) error {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return nil
	})
	for i := 0; i < 5; i++ {
		_, err := q.EnqueueJob(JobTypeHarvest, nil)
		require.NoError(t, err)
	}
	q.Start()
	q.Stop()

	assert.Equal(t, int32(5), done.Load())
	_, err := q.EnqueueJob(JobTypeHarvest, nil)
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestJob_IsRetryable(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, job.IsRetryable())

	job.RetryCount = 3
	assert.False(t, job.IsRetryable())

	job = &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3}
	assert.False(t, job.IsRetryable())
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("nope")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "nope", job.ErrorMsg)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestPayloadsFromMap(t *testing.T) {
	harvest, err := HarvestJobPayloadFromMap(HarvestJobPayload{ClientURL: "https://fdp.example.org", EventUUID: "e"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "https://fdp.example.org", harvest.ClientURL)
	assert.Equal(t, "e", harvest.EventUUID)

	delivery, err := WebhookDeliveryJobPayloadFromMap(WebhookDeliveryJobPayload{EventUUID: "w"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "w", delivery.EventUUID)
}
