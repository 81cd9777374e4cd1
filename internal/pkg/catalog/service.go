package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/fairdatapoint/fdp-index/internal/pkg/harvester"
	"github.com/fairdatapoint/fdp-index/internal/pkg/jobqueue"
	"github.com/fairdatapoint/fdp-index/internal/pkg/journal"
	"github.com/fairdatapoint/fdp-index/internal/pkg/rdfio"
	"github.com/fairdatapoint/fdp-index/internal/pkg/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
)

// ErrInvalidInput marks requests rejected before anything is recorded
var ErrInvalidInput = errors.New("invalid input")

// Actor is the caller of a trigger
type Actor = webhook.Actor

// Service wires the trigger pipeline: gate, journal, dispatch, harvest
type Service struct {
	entries    repository.IndexEntryRepository
	webhooks   repository.WebhookRepository
	gate       *admission.Gate
	journal    *journal.Journal
	dispatcher *webhook.Dispatcher
	harvester  *harvester.Harvester
	queue      webhook.Enqueuer
	validate   *validator.Validate
	now        func() time.Time
}

// NewService creates the catalog service
func NewService(
	repos *repository.Repositories,
	gate *admission.Gate,
	j *journal.Journal,
	dispatcher *webhook.Dispatcher,
	h *harvester.Harvester,
	queue webhook.Enqueuer,
) *Service {
	return &Service{
		entries:    repos.Entry,
		webhooks:   repos.Webhook,
		gate:       gate,
		journal:    j,
		dispatcher: dispatcher,
		harvester:  h,
		queue:      queue,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// Journal exposes the event journal for read access
func (s *Service) Journal() *journal.Journal {
	return s.journal
}

func normalizeTarget(clientURL string) (string, error) {
	if !models.IsHTTPURL(clientURL) {
		return "", fmt.Errorf("%w: clientUrl must be an absolute http(s) URL", ErrInvalidInput)
	}
	return models.NormalizeClientURL(clientURL), nil
}

// AcceptPing handles a peer announcing itself. Unknown peers are registered
// as PENDING; accepted peers are re-harvested.
func (s *Service) AcceptPing(ctx context.Context, remoteAddr, clientURL string) (*models.IndexEvent, error) {
	target, err := normalizeTarget(clientURL)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Admit(ctx, admission.Request{RemoteAddr: remoteAddr, ClientURL: target}); err != nil {
		return nil, err
	}

	entry, created, err := s.entries.EnsureEntry(ctx, target, models.PermitPending)
	if err != nil {
		return nil, err
	}
	if created {
		log.Infof("[Catalog] Registered new entry %s from %s", target, remoteAddr)
	}

	event, err := s.recordCompleted(ctx, models.IncomingPing{
		RemoteAddr: remoteAddr,
		ClientURL:  target,
		NewEntry:   created,
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.TriggerWebhooks(ctx, event)

	if entry.Permit == models.PermitAccepted {
		s.scheduleHarvest(ctx, event, target)
	}
	return event, nil
}

// AdminTrigger requests a harvest of one URL. An unknown URL is registered
// as ACCEPTED.
func (s *Service) AdminTrigger(ctx context.Context, actor Actor, clientURL string) (*models.IndexEvent, error) {
	target, err := normalizeTarget(clientURL)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Admit(ctx, admission.Request{RemoteAddr: actor.RemoteAddr, ClientURL: target}); err != nil {
		return nil, err
	}

	entry, _, err := s.entries.EnsureEntry(ctx, target, models.PermitAccepted)
	if err != nil {
		return nil, err
	}
	return s.trigger(ctx, actor, entry)
}

// AdminTriggerAll requests a harvest of every accepted entry and returns
// the number of scheduled harvests
func (s *Service) AdminTriggerAll(ctx context.Context, actor Actor) (*models.IndexEvent, int, error) {
	if err := s.gate.Admit(ctx, admission.Request{RemoteAddr: actor.RemoteAddr}); err != nil {
		return nil, 0, err
	}

	event, err := s.recordCompleted(ctx, models.AdminTrigger{
		RemoteAddr: actor.RemoteAddr,
		TokenName:  actor.TokenName,
	})
	if err != nil {
		return nil, 0, err
	}
	s.dispatcher.TriggerWebhooks(ctx, event)

	accepted, err := s.entries.ListAll(ctx, repository.EntryFilter{Permits: []models.IndexEntryPermit{models.PermitAccepted}})
	if err != nil {
		return event, 0, err
	}
	scheduled := 0
	for _, entry := range accepted {
		if s.scheduleHarvest(ctx, event, entry.ClientURL) {
			scheduled++
		}
	}
	log.Infof("[Catalog] Trigger-all from %s scheduled %d harvests", actor.RemoteAddr, scheduled)
	return event, scheduled, nil
}

// PingWebhook sends a verification delivery to one webhook
func (s *Service) PingWebhook(ctx context.Context, actor Actor, webhookUUID string) (*models.IndexEvent, error) {
	if _, err := s.webhooks.GetByUUID(ctx, webhookUUID); err != nil {
		return nil, err
	}
	if err := s.gate.Admit(ctx, admission.Request{RemoteAddr: actor.RemoteAddr, WebhookUUID: webhookUUID}); err != nil {
		return nil, err
	}
	return s.dispatcher.HandlePing(ctx, webhookUUID, actor)
}

// UpdatePermit changes the admission decision of an entry. ACCEPTED
// schedules a fresh harvest; any other permit removes the harvested data.
func (s *Service) UpdatePermit(ctx context.Context, uuid string, permit models.IndexEntryPermit, actor Actor) (*models.IndexEntry, error) {
	entry, err := s.entries.UpdatePermit(ctx, uuid, permit)
	if err != nil {
		return nil, err
	}
	log.Infof("[Catalog] Permit of %s set to %s by %s", entry.ClientURL, permit, actor.TokenName)

	if permit == models.PermitAccepted {
		if _, err := s.trigger(ctx, actor, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	if err := s.harvester.DeleteHarvestedData(ctx, entry.ClientURL); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry removes the harvested graph first, then the entry itself
func (s *Service) DeleteEntry(ctx context.Context, uuid string) error {
	entry, err := s.entries.GetByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if err := s.harvester.DeleteHarvestedData(ctx, entry.ClientURL); err != nil {
		return err
	}
	if err := s.entries.Delete(ctx, uuid); err != nil {
		return err
	}
	log.Infof("[Catalog] Deleted entry %s (%s)", entry.UUID, entry.ClientURL)
	return nil
}

// GetEntry returns one entry
func (s *Service) GetEntry(ctx context.Context, uuid string) (*models.IndexEntry, error) {
	return s.entries.GetByUUID(ctx, uuid)
}

// ListEntries returns one page of entries and the total count
func (s *Service) ListEntries(ctx context.Context, filter repository.EntryFilter, page, size int) ([]models.IndexEntry, int64, error) {
	total, err := s.entries.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.entries.List(ctx, filter, page*size, size)
	return entries, total, err
}

// ListAllEntries returns every entry matching filter
func (s *Service) ListAllEntries(ctx context.Context, filter repository.EntryFilter) ([]models.IndexEntry, error) {
	return s.entries.ListAll(ctx, filter)
}

// EntryData returns the harvested statements of an entry
func (s *Service) EntryData(ctx context.Context, uuid string) ([]rdfio.Triple, error) {
	entry, err := s.entries.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return s.harvester.Statements(ctx, entry.ClientURL)
}

// EntryEvents returns a page of the events recorded for an entry
func (s *Service) EntryEvents(ctx context.Context, uuid string, page, size int) ([]models.IndexEvent, int64, error) {
	entry, err := s.entries.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, 0, err
	}
	return s.journal.ListByClientURL(ctx, entry.ClientURL, page*size, size)
}

// Info counts entries per state plus active and inactive ones
type Info struct {
	EntriesCount map[string]int64 `json:"entriesCount"`
}

// Info aggregates the entries with the given permits
func (s *Service) Info(ctx context.Context, permits []models.IndexEntryPermit) (*Info, error) {
	byState, err := s.entries.CountByState(ctx, permits)
	if err != nil {
		return nil, err
	}
	valid, err := s.entries.ListAll(ctx, repository.EntryFilter{
		States:  []models.IndexEntryState{models.StateValid},
		Permits: permits,
	})
	if err != nil {
		return nil, err
	}

	validDuration := s.gate.Policy().Current().ValidDuration.Std()
	now := s.now()
	var all, active int64
	for _, count := range byState {
		all += count
	}
	for i := range valid {
		if valid[i].IsActive(validDuration, now) {
			active++
		}
	}

	counts := map[string]int64{
		"ALL":      all,
		"ACTIVE":   active,
		"INACTIVE": all - active,
	}
	for _, state := range models.AllStates {
		counts[string(state)] = byState[state]
	}
	return &Info{EntriesCount: counts}, nil
}

// RefreshStale schedules harvests of accepted entries whose data is older
// than the valid duration
func (s *Service) RefreshStale(ctx context.Context) (int, error) {
	accepted, err := s.entries.ListAll(ctx, repository.EntryFilter{Permits: []models.IndexEntryPermit{models.PermitAccepted}})
	if err != nil {
		return 0, err
	}
	validDuration := s.gate.Policy().Current().ValidDuration.Std()
	now := s.now()
	scheduled := 0
	for i := range accepted {
		if !accepted[i].NeedsRefresh(validDuration, now) {
			continue
		}
		if s.scheduleHarvest(ctx, nil, accepted[i].ClientURL) {
			scheduled++
		}
	}
	return scheduled, nil
}

// trigger journals an AdminTrigger for entry, dispatches it and schedules
// the harvest
func (s *Service) trigger(ctx context.Context, actor Actor, entry *models.IndexEntry) (*models.IndexEvent, error) {
	event, err := s.recordCompleted(ctx, models.AdminTrigger{
		RemoteAddr: actor.RemoteAddr,
		TokenName:  actor.TokenName,
		ClientURL:  entry.ClientURL,
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.TriggerWebhooks(ctx, event)

	if entry.Permit == models.PermitAccepted {
		s.scheduleHarvest(ctx, event, entry.ClientURL)
	} else {
		log.Infof("[Catalog] Not harvesting %s, permit is %s", entry.ClientURL, entry.Permit)
	}
	return event, nil
}

func (s *Service) recordCompleted(ctx context.Context, payload models.EventPayload) (*models.IndexEvent, error) {
	event, err := s.journal.Record(ctx, payload, nil)
	if err != nil {
		return nil, err
	}
	return s.journal.Complete(ctx, event)
}

// scheduleHarvest journals an open MetadataRetrieval chained to cause and
// queues the harvest job that completes it
func (s *Service) scheduleHarvest(ctx context.Context, cause *models.IndexEvent, clientURL string) bool {
	var related *string
	if cause != nil {
		related = &cause.UUID
	}
	retrieval, err := s.journal.Record(ctx, models.MetadataRetrieval{ClientURL: clientURL}, related)
	if err != nil {
		log.Errorf("[Catalog] Failed to record retrieval of %s: %v", clientURL, err)
		return false
	}

	_, err = s.queue.EnqueueJob(jobqueue.JobTypeHarvest, jobqueue.HarvestJobPayload{
		ClientURL: clientURL,
		EventUUID: retrieval.UUID,
	}.ToMap())
	if err != nil {
		log.Errorf("[Catalog] Failed to queue harvest of %s: %v", clientURL, err)
		retrieval.Payload = models.MetadataRetrieval{
			ClientURL: clientURL,
			Outcome:   models.RetrievalSkipped,
			Error:     err.Error(),
		}
		if _, cerr := s.journal.Complete(context.WithoutCancel(ctx), retrieval); cerr != nil {
			log.Errorf("[Catalog] Failed to complete retrieval %s: %v", retrieval.UUID, cerr)
		}
		return false
	}
	return true
}

// ProcessHarvestJob runs one harvest, completes its MetadataRetrieval event
// and announces the outcome. Harvest failures are not retried; the entry
// state records them.
func (s *Service) ProcessHarvestJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.HarvestJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid harvest payload: %w", err)
	}

	retrieval, err := s.journal.Get(ctx, payload.EventUUID)
	if err != nil {
		return fmt.Errorf("retrieval event %s: %w", payload.EventUUID, err)
	}
	if retrieval.IsFinished() {
		return nil
	}

	res := s.harvester.Harvest(ctx, payload.ClientURL)
	result := models.MetadataRetrieval{ClientURL: payload.ClientURL, Outcome: res.Outcome}
	if res.Err != nil {
		result.Error = res.Err.Error()
	}
	retrieval.Payload = result

	completed, err := s.journal.Complete(ctx, retrieval)
	if err != nil {
		log.Errorf("[Catalog] Failed to complete retrieval %s: %v", retrieval.UUID, err)
		return nil
	}
	s.dispatcher.TriggerWebhooks(ctx, completed)
	return nil
}
