package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/jobqueue"
	"github.com/fairdatapoint/fdp-index/internal/pkg/journal"
	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "fdp-index-webhook/1.0"
)

// Enqueuer schedules delivery jobs
type Enqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Config tunes outgoing deliveries
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Actor identifies the authenticated caller of an admin operation
type Actor struct {
	RemoteAddr string
	TokenName  string
}

// Payload is the JSON body posted to a webhook
type Payload struct {
	Event     models.WebhookEventKind `json:"event"`
	ClientURL string                  `json:"clientUrl"`
	Secret    string                  `json:"secret"`
	UUID      string                  `json:"uuid"`
	Timestamp string                  `json:"timestamp"`
}

// Dispatcher fans journal events out to matching webhooks
type Dispatcher struct {
	webhooks repository.WebhookRepository
	journal  *journal.Journal
	queue    Enqueuer
	client   *http.Client
	cfg      Config
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. A nil client gets one with cfg.Timeout.
func NewDispatcher(webhooks repository.WebhookRepository, j *journal.Journal, queue Enqueuer, client *http.Client, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{
		webhooks: webhooks,
		journal:  j,
		queue:    queue,
		client:   client,
		cfg:      cfg,
		now:      time.Now,
	}
}

// KindForEvent maps a journal event to the webhook event kind it announces.
// WebhookTrigger events and unfinished retrievals announce nothing.
func KindForEvent(event *models.IndexEvent) (models.WebhookEventKind, bool) {
	switch p := event.Payload.(type) {
	case models.AdminTrigger:
		return models.WebhookEventAdminTrigger, true
	case models.IncomingPing:
		if p.NewEntry {
			return models.WebhookEventNewEntry, true
		}
		return models.WebhookEventIncomingPing, true
	case models.WebhookPing:
		return models.WebhookEventWebhookPing, true
	case models.MetadataRetrieval:
		switch p.Outcome {
		case models.RetrievalInstalled:
			return models.WebhookEventEntryValid, true
		case models.RetrievalInvalid:
			return models.WebhookEventEntryInvalid, true
		case models.RetrievalUnreachable:
			return models.WebhookEventEntryUnreachable, true
		default:
			return "", false
		}
	case models.WebhookTrigger:
		return "", false
	default:
		panic(fmt.Sprintf("unhandled event payload %T", event.Payload))
	}
}

// TriggerWebhooks schedules a delivery of event to every enabled webhook
// subscribed to its kind. Failures are logged, never returned. The recorded
// WebhookTrigger events are returned.
func (d *Dispatcher) TriggerWebhooks(ctx context.Context, event *models.IndexEvent) []*models.IndexEvent {
	kind, ok := KindForEvent(event)
	if !ok {
		return nil
	}

	targets, err := d.targets(ctx, event, kind)
	if err != nil {
		log.Errorf("[Webhook] Failed to select webhooks for event %s: %v", event.UUID, err)
		return nil
	}

	var triggers []*models.IndexEvent
	for i := range targets {
		trigger, err := d.schedule(ctx, &targets[i], event, kind)
		if err != nil {
			log.Errorf("[Webhook] Failed to schedule %s delivery to %s: %v", kind, targets[i].UUID, err)
			continue
		}
		if trigger != nil {
			triggers = append(triggers, trigger)
		}
	}
	return triggers
}

// targets selects the webhooks that receive kind. A ping goes to the pinged
// webhook only, whatever it subscribes to.
func (d *Dispatcher) targets(ctx context.Context, event *models.IndexEvent, kind models.WebhookEventKind) ([]models.IndexWebhook, error) {
	if ping, ok := event.Payload.(models.WebhookPing); ok {
		webhook, err := d.webhooks.GetByUUID(ctx, ping.WebhookUUID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !webhook.Enabled {
			log.Infof("[Webhook] Not pinging disabled webhook %s", webhook.UUID)
			return nil, nil
		}
		return []models.IndexWebhook{*webhook}, nil
	}

	enabled, err := d.webhooks.GetEnabled(ctx)
	if err != nil {
		return nil, err
	}
	matching := enabled[:0]
	for _, webhook := range enabled {
		if webhook.Matches(kind) {
			matching = append(matching, webhook)
		}
	}
	return matching, nil
}

func (d *Dispatcher) schedule(ctx context.Context, webhook *models.IndexWebhook, event *models.IndexEvent, kind models.WebhookEventKind) (*models.IndexEvent, error) {
	recorded, err := d.webhooks.RecordMatch(ctx, &models.IndexWebhookEvent{
		WebhookUUID: webhook.UUID,
		EventUUID:   event.UUID,
		Kind:        kind,
	})
	if err != nil {
		return nil, err
	}
	if !recorded {
		log.Debugf("[Webhook] Event %s already delivered to %s", event.UUID, webhook.UUID)
		return nil, nil
	}

	related := event.UUID
	trigger, err := d.journal.Record(ctx, models.WebhookTrigger{
		WebhookUUID:  webhook.UUID,
		MatchedEvent: kind,
	}, &related)
	if err != nil {
		return nil, err
	}

	job, err := d.queue.EnqueueJob(jobqueue.JobTypeWebhookDelivery, jobqueue.WebhookDeliveryJobPayload{
		EventUUID: trigger.UUID,
	}.ToMap())
	if err != nil {
		// nothing will deliver it, so close the trigger now
		if _, cerr := d.journal.Complete(context.WithoutCancel(ctx), trigger); cerr != nil {
			log.Errorf("[Webhook] Failed to complete undeliverable trigger %s: %v", trigger.UUID, cerr)
		}
		return nil, err
	}
	log.Debugf("[Webhook] Queued %s delivery %s to %s (job %s)", kind, trigger.UUID, webhook.UUID, job.ID)
	return trigger, nil
}

// HandlePing journals a WebhookPing for an existing webhook and delivers it
func (d *Dispatcher) HandlePing(ctx context.Context, webhookUUID string, actor Actor) (*models.IndexEvent, error) {
	webhook, err := d.webhooks.GetByUUID(ctx, webhookUUID)
	if err != nil {
		return nil, err
	}

	event, err := d.journal.Record(ctx, models.WebhookPing{
		WebhookUUID: webhook.UUID,
		RemoteAddr:  actor.RemoteAddr,
		TokenName:   actor.TokenName,
	}, nil)
	if err != nil {
		return nil, err
	}
	if event, err = d.journal.Complete(ctx, event); err != nil {
		return nil, err
	}

	d.TriggerWebhooks(ctx, event)
	return event, nil
}

// ProcessDeliveryJob posts one WebhookTrigger event. The trigger is
// completed on success and after the last failed attempt.
func (d *Dispatcher) ProcessDeliveryJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.WebhookDeliveryJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid delivery payload: %w", err)
	}

	trigger, err := d.journal.Get(ctx, payload.EventUUID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[Webhook] Trigger event %s no longer exists", payload.EventUUID)
		return nil
	}
	if err != nil {
		return err
	}
	if trigger.IsFinished() {
		return nil
	}
	tp, ok := trigger.Payload.(models.WebhookTrigger)
	if !ok {
		return fmt.Errorf("event %s is %s, not a webhook trigger", trigger.UUID, trigger.Type)
	}

	webhook, err := d.webhooks.GetByUUID(ctx, tp.WebhookUUID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Infof("[Webhook] Webhook %s was deleted, dropping delivery %s", tp.WebhookUUID, trigger.UUID)
		d.complete(ctx, trigger)
		return nil
	}
	if err != nil {
		return err
	}

	if err := d.deliver(ctx, webhook, trigger, tp.MatchedEvent); err != nil {
		if job.IsFinalAttempt() {
			log.Errorf("[Webhook] Giving up delivery %s to %s: %v", trigger.UUID, webhook.TargetURL, err)
			d.complete(ctx, trigger)
		}
		return err
	}

	log.Infof("[Webhook] Delivered %s to %s", tp.MatchedEvent, webhook.TargetURL)
	d.complete(ctx, trigger)
	return nil
}

func (d *Dispatcher) complete(ctx context.Context, trigger *models.IndexEvent) {
	if _, err := d.journal.Complete(ctx, trigger); err != nil && !errors.Is(err, journal.ErrEventImmutable) {
		log.Errorf("[Webhook] Failed to complete trigger %s: %v", trigger.UUID, err)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, webhook *models.IndexWebhook, trigger *models.IndexEvent, kind models.WebhookEventKind) error {
	body, err := json.Marshal(Payload{
		Event:     kind,
		ClientURL: trigger.ClientURL,
		Secret:    webhook.Secret,
		UUID:      trigger.UUID,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.TargetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid target %s: %w", webhook.TargetURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set(SignatureHeader, Sign(body, webhook.Secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", webhook.TargetURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: unexpected status %d", webhook.TargetURL, resp.StatusCode)
	}
	return nil
}
