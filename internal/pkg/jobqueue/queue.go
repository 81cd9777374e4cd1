package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	// Job settings
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Minute
	DefaultBufferSize = 1024

	// Sweeper settings for jobs left running by a crashed worker
	DefaultStuckAfter    = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrQueueStopped = errors.New("job queue is stopped")
	ErrNoHandler    = errors.New("no handler registered for job type")
)

// Handler processes one job. A returned error marks the attempt failed.
type Handler func(ctx context.Context, job *Job) error

// Queue runs jobs on a fixed set of in-process workers. Without a store a
// restart loses whatever is still queued; with one, Start resumes the jobs a
// previous process left unfinished.
type Queue struct {
	workers       int
	jobs          chan *Job
	handlers      map[JobType]Handler
	retryDelay    time.Duration
	store         *RedisStore
	stuckAfter    time.Duration
	sweepInterval time.Duration
	owned         sync.Map
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	running       bool
	stopped       bool
	pending       atomic.Int64
	statsMu       sync.Mutex
	stats         map[JobStatus]int64
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		workers:       workers,
		jobs:          make(chan *Job, DefaultBufferSize),
		handlers:      make(map[JobType]Handler),
		retryDelay:    DefaultRetryDelay,
		stuckAfter:    DefaultStuckAfter,
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
		stats:         make(map[JobStatus]int64),
	}
}

// SetStore persists jobs in Redis. Call it before Start.
func (q *Queue) SetStore(store *RedisStore) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.store = store
}

// SetSweep tunes when a running job in the store counts as stuck and how
// often the store is checked
func (q *Queue) SetSweep(stuckAfter, interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stuckAfter = stuckAfter
	q.sweepInterval = interval
}

// SetRetryDelay sets the base delay; attempt n waits n*delay
func (q *Queue) SetRetryDelay(delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryDelay = delay
}

// Register installs the handler for a job type
func (q *Queue) Register(jobType JobType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Start starts the job queue workers. With a store it first resumes the
// unfinished jobs found there and then sweeps for stuck ones.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running || q.stopped {
		q.mu.Unlock()
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	store := q.store
	if store != nil && q.sweepInterval > 0 {
		q.wg.Add(1)
		go q.stuckSweeper(q.stuckAfter, q.sweepInterval)
	}
	q.mu.Unlock()

	if store != nil {
		q.recoverJobs(context.Background(), store)
	}
}

// Stop lets the workers finish the queued jobs and waits for them
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.stopped = true
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.stopped = true
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			// drain what is already queued, then exit
			for {
				select {
				case job := <-q.jobs:
					q.processJob(ctx, job)
				default:
					log.Debugf("[JobQueue] Worker %d stopping", id)
					return
				}
			}
		case job := <-q.jobs:
			log.Debugf("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
			q.processJob(ctx, job)
		}
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}

	ctx := context.Background()
	if store := q.getStore(); store != nil {
		if err := store.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue job: %w", err)
		}
	}

	q.pending.Add(1)
	q.owned.Store(job.ID, struct{}{})
	if err := q.push(job); err != nil {
		q.pending.Add(-1)
		q.forget(ctx, job.ID)
		return nil, err
	}
	q.updateJobStats(JobStatusPending, 1)

	log.Debugf("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

func (q *Queue) getStore() *RedisStore {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store
}

// forget drops a finished job from the local set and the store
func (q *Queue) forget(ctx context.Context, jobID string) {
	q.owned.Delete(jobID)
	if store := q.getStore(); store != nil {
		if err := store.Remove(ctx, jobID); err != nil {
			log.Errorf("[JobQueue] %v", err)
		}
	}
}

func (q *Queue) push(job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// processJob processes a single job
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	store := q.getStore()
	if store != nil {
		if err := store.Claim(ctx, job); err != nil {
			log.Errorf("[JobQueue] %v", err)
		}
	}

	err := q.runHandler(ctx, job)
	if err == nil {
		log.Debugf("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(JobStatusCompleted, 1)
		q.forget(ctx, job.ID)
		q.pending.Add(-1)
		return
	}

	log.Warnf("[JobQueue] Job %s (%s) failed: %v", job.ID, job.Type, err)
	job.MarkAsFailed(err.Error())

	if !job.IsRetryable() || errors.Is(err, ErrNoHandler) {
		log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
		q.updateJobStats(JobStatusFailed, 1)
		q.forget(ctx, job.ID)
		q.pending.Add(-1)
		return
	}

	log.Infof("[JobQueue] Retrying job %s (Attempt %d/%d)", job.ID, job.RetryCount+1, job.MaxRetries)
	job.MarkAsRetrying()
	q.updateJobStats(JobStatusRetrying, 1)
	if store != nil {
		if err := store.Save(ctx, job); err != nil {
			log.Errorf("[JobQueue] %v", err)
		}
	}

	q.mu.RLock()
	delay := q.retryDelay * time.Duration(job.RetryCount)
	q.mu.RUnlock()

	time.AfterFunc(delay, func() {
		if err := q.push(job); err != nil {
			q.owned.Delete(job.ID)
			q.pending.Add(-1)
			if store != nil {
				log.Warnf("[JobQueue] Retry of job %s stays in the store for the next start: %v", job.ID, err)
				return
			}
			log.Errorf("[JobQueue] Dropping retry of job %s: %v", job.ID, err)
			q.updateJobStats(JobStatusFailed, 1)
		}
	})
}

// recoverJobs resumes the store's unfinished jobs this queue does not hold
func (q *Queue) recoverJobs(ctx context.Context, store *RedisStore) {
	jobs, err := store.Unfinished(ctx)
	if err != nil {
		log.Errorf("[JobQueue] Failed to load unfinished jobs: %v", err)
		return
	}
	resumed := 0
	for _, job := range jobs {
		if q.resume(ctx, job, "resumed after restart") {
			resumed++
		}
	}
	if resumed > 0 {
		log.Infof("[JobQueue] Resumed %d unfinished jobs", resumed)
	}
}

// SweepStuck puts running jobs of the store that exceeded the stuck timeout
// and are not held by this queue back to work. It returns how many it
// resumed.
func (q *Queue) SweepStuck(ctx context.Context) int {
	store := q.getStore()
	if store == nil {
		return 0
	}
	q.mu.RLock()
	maxAge := q.stuckAfter
	q.mu.RUnlock()

	jobs, err := store.Stuck(ctx, maxAge, time.Now())
	if err != nil {
		log.Errorf("[JobQueue] Sweeper error: %v", err)
		return 0
	}
	resumed := 0
	for _, job := range jobs {
		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s)", job.ID, job.Type)
		if q.resume(ctx, job, "recovered by sweeper") {
			resumed++
		}
	}
	return resumed
}

func (q *Queue) resume(ctx context.Context, job *Job, reason string) bool {
	if _, held := q.owned.LoadOrStore(job.ID, struct{}{}); held {
		return false
	}
	job.Status = JobStatusPending
	job.ErrorMsg = reason
	job.UpdatedAt = time.Now()
	if err := q.getStore().Save(ctx, job); err != nil {
		log.Errorf("[JobQueue] %v", err)
	}

	q.pending.Add(1)
	if err := q.push(job); err != nil {
		q.owned.Delete(job.ID)
		q.pending.Add(-1)
		log.Errorf("[JobQueue] Could not resume job %s: %v", job.ID, err)
		return false
	}
	q.updateJobStats(JobStatusPending, 1)
	return true
}

// stuckSweeper periodically resumes jobs stuck in the processing list
func (q *Queue) stuckSweeper(maxAge, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			q.SweepStuck(context.Background())
		}
	}
}

func (q *Queue) runHandler(ctx context.Context, job *Job) (err error) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(status JobStatus, delta int64) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	q.stats[status] += delta
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats() map[JobStatus]int64 {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()

	result := make(map[JobStatus]int64, len(q.stats))
	for status, count := range q.stats {
		result[status] = count
	}
	return result
}

// GetQueueSize returns the number of jobs waiting for a worker
func (q *Queue) GetQueueSize() int {
	return len(q.jobs)
}

// Pending returns the number of jobs not yet completed or permanently failed,
// including those waiting for a retry
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// WaitIdle blocks until no job is pending or ctx is done
func (q *Queue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
