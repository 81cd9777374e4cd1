package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// maxChainDepth bounds the walk along relatedTo links
const maxChainDepth = 64

var (
	// ErrEventImmutable is returned when a completed event would be changed
	ErrEventImmutable = errors.New("event already completed")
	// ErrInvalidEventChain is returned for a relatedTo that is unknown or cyclic
	ErrInvalidEventChain = errors.New("invalid event chain")
)

// Journal records trigger and delivery events
type Journal struct {
	events repository.IndexEventRepository
	now    func() time.Time
}

// New creates a journal on top of the event repository
func New(events repository.IndexEventRepository) *Journal {
	return &Journal{events: events, now: time.Now}
}

// Record persists a new open event. relatedTo, when set, must name an
// existing event.
func (j *Journal) Record(ctx context.Context, payload models.EventPayload, relatedTo *string) (*models.IndexEvent, error) {
	var related *models.IndexEvent
	if relatedTo != nil {
		var err error
		related, err = j.events.GetByUUID(ctx, *relatedTo)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: related event %s does not exist", ErrInvalidEventChain, *relatedTo)
		}
		if err != nil {
			return nil, err
		}
		if err := j.checkChain(ctx, related); err != nil {
			return nil, err
		}
	}

	event := models.NewIndexEvent(payload, related)
	event.CreatedAt = j.now()
	if err := j.events.Create(ctx, event); err != nil {
		return nil, err
	}
	log.Debugf("[Journal] Recorded %s event %s", event.Type, event.UUID)
	return event, nil
}

// checkChain walks relatedTo links from start and fails on cycles or chains
// deeper than maxChainDepth
func (j *Journal) checkChain(ctx context.Context, start *models.IndexEvent) error {
	seen := map[string]bool{start.UUID: true}
	current := start
	for depth := 0; current.RelatedTo != nil; depth++ {
		if depth >= maxChainDepth {
			return fmt.Errorf("%w: chain from %s exceeds %d links", ErrInvalidEventChain, start.UUID, maxChainDepth)
		}
		next := *current.RelatedTo
		if seen[next] {
			return fmt.Errorf("%w: cycle through %s", ErrInvalidEventChain, next)
		}
		seen[next] = true

		parent, err := j.events.GetByUUID(ctx, next)
		if errors.Is(err, repository.ErrNotFound) {
			// dangling references are allowed; relatedTo never cascades
			return nil
		}
		if err != nil {
			return err
		}
		current = parent
	}
	return nil
}

// Complete marks an event finished, storing its current payload. Completing
// an event twice fails with ErrEventImmutable.
func (j *Journal) Complete(ctx context.Context, event *models.IndexEvent) (*models.IndexEvent, error) {
	if event.IsFinished() {
		return nil, fmt.Errorf("%w: %s", ErrEventImmutable, event.UUID)
	}

	finishedAt := j.now()
	if finishedAt.Before(event.CreatedAt) {
		finishedAt = event.CreatedAt
	}

	updated, err := j.events.MarkFinished(ctx, event, finishedAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: %s", ErrEventImmutable, event.UUID)
	}
	event.FinishedAt = &finishedAt
	return event, nil
}

// Get returns the event with uuid
func (j *Journal) Get(ctx context.Context, uuid string) (*models.IndexEvent, error) {
	return j.events.GetByUUID(ctx, uuid)
}

// Related returns the event referenced by event.RelatedTo, or nil
func (j *Journal) Related(ctx context.Context, event *models.IndexEvent) (*models.IndexEvent, error) {
	if event.RelatedTo == nil {
		return nil, nil
	}
	related, err := j.events.GetByUUID(ctx, *event.RelatedTo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return related, err
}

// List returns a page of events, newest first, and the total count
func (j *Journal) List(ctx context.Context, eventType models.IndexEventType, offset, limit int) ([]models.IndexEvent, int64, error) {
	total, err := j.events.Count(ctx, eventType)
	if err != nil {
		return nil, 0, err
	}
	events, err := j.events.List(ctx, eventType, offset, limit)
	return events, total, err
}

// ListByClientURL returns a page of the events of one entry and the total
func (j *Journal) ListByClientURL(ctx context.Context, clientURL string, offset, limit int) ([]models.IndexEvent, int64, error) {
	total, err := j.events.CountByClientURL(ctx, clientURL)
	if err != nil {
		return nil, 0, err
	}
	events, err := j.events.ListByClientURL(ctx, clientURL, offset, limit)
	return events, total, err
}
