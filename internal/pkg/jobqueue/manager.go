package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// RefreshFunc re-schedules harvests of entries whose data went stale
type RefreshFunc func(ctx context.Context) (int, error)

// Manager manages the job queue and background tasks
type Manager struct {
	queue           *Queue
	refresh         RefreshFunc
	refreshInterval time.Duration
	refreshTicker   *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

// NewManager creates a manager. A zero interval or nil refresh disables the
// periodic refresh.
func NewManager(queue *Queue, refreshInterval time.Duration, refresh RefreshFunc) *Manager {
	return &Manager{
		queue:           queue,
		refresh:         refresh,
		refreshInterval: refreshInterval,
		stopCh:          make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.refresh != nil && m.refreshInterval > 0 {
		m.refreshTicker = time.NewTicker(m.refreshInterval)
		m.wg.Add(1)
		go m.refreshWorker(m.refreshTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the background tasks, then drains and stops the queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.refreshTicker != nil {
		m.refreshTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// refreshWorker periodically re-harvests accepted entries with stale data
func (m *Manager) refreshWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started refresh worker (interval: %s)", m.refreshInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Refresh worker stopping")
			return
		case <-ticker.C:
			m.RunRefreshOnce()
		}
	}
}

// RunRefreshOnce runs a single stale-entry refresh
func (m *Manager) RunRefreshOnce() {
	if m.refresh == nil {
		return
	}
	scheduled, err := m.refresh(context.Background())
	if err != nil {
		log.Errorf("[JobQueue Manager] Refresh error: %v", err)
		return
	}
	if scheduled > 0 {
		log.Infof("[JobQueue Manager] Scheduled %d stale entries for harvesting", scheduled)
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
