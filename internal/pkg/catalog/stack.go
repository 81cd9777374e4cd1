package catalog

import (
	"time"

	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/fairdatapoint/fdp-index/internal/pkg/harvester"
	"github.com/fairdatapoint/fdp-index/internal/pkg/jobqueue"
	"github.com/fairdatapoint/fdp-index/internal/pkg/journal"
	"github.com/fairdatapoint/fdp-index/internal/pkg/webhook"
	"gorm.io/gorm"
)

// StackConfig collects the tunables of the index core
type StackConfig struct {
	Workers        int
	RetryDelay     time.Duration
	HarvestTimeout time.Duration
	WebhookTimeout time.Duration
	// JobStore keeps queued jobs in Redis across restarts; nil keeps them in
	// memory only
	JobStore *jobqueue.RedisStore
}

// Stack is the assembled index core
type Stack struct {
	Repos      *repository.Repositories
	Policy     *admission.Policy
	Gate       *admission.Gate
	Journal    *journal.Journal
	Queue      *jobqueue.Queue
	Dispatcher *webhook.Dispatcher
	Harvester  *harvester.Harvester
	Service    *Service
}

// NewStack builds the index core on db and registers the job handlers on a
// new, not yet started queue. The persisted ping policy is loaded.
func NewStack(db *gorm.DB, counter admission.HitCounter, cfg StackConfig) (*Stack, error) {
	repos := repository.NewRepositories(db)

	policy := admission.NewPolicy(repos.Setting)
	if err := policy.Load(); err != nil {
		return nil, err
	}
	gate := admission.NewGate(policy, counter)
	j := journal.New(repos.Event)

	queue := jobqueue.NewQueue(cfg.Workers)
	if cfg.RetryDelay > 0 {
		queue.SetRetryDelay(cfg.RetryDelay)
	}
	if cfg.JobStore != nil {
		queue.SetStore(cfg.JobStore)
	}

	harvestCfg := harvester.DefaultConfig()
	if cfg.HarvestTimeout > 0 {
		harvestCfg.Timeout = cfg.HarvestTimeout
	}
	h := harvester.New(repos.Entry, repos.Metadata, nil, harvestCfg).WithURLFilter(policy)
	dispatcher := webhook.NewDispatcher(repos.Webhook, j, queue, nil, webhook.Config{Timeout: cfg.WebhookTimeout})
	service := NewService(repos, gate, j, dispatcher, h, queue)

	queue.Register(jobqueue.JobTypeHarvest, service.ProcessHarvestJob)
	queue.Register(jobqueue.JobTypeWebhookDelivery, dispatcher.ProcessDeliveryJob)

	return &Stack{
		Repos:      repos,
		Policy:     policy,
		Gate:       gate,
		Journal:    j,
		Queue:      queue,
		Dispatcher: dispatcher,
		Harvester:  h,
		Service:    service,
	}, nil
}
