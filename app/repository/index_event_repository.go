package repository

import (
	"context"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"gorm.io/gorm"
)

// indexEventRepository implements the IndexEventRepository interface
type indexEventRepository struct {
	db *gorm.DB
}

// NewIndexEventRepository creates a new event repository instance
func NewIndexEventRepository(db *gorm.DB) IndexEventRepository {
	return &indexEventRepository{db: db}
}

// Create inserts a new event; the payload is encoded by the model hook
func (r *indexEventRepository) Create(ctx context.Context, event *models.IndexEvent) error {
	return translate(r.db.WithContext(ctx).Create(event).Error)
}

// GetByUUID retrieves an event by its uuid
func (r *indexEventRepository) GetByUUID(ctx context.Context, uuid string) (*models.IndexEvent, error) {
	var event models.IndexEvent
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&event).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

// MarkFinished stores the final payload and finish time of an event that is
// still open. It returns false when the event was already finished, so a
// completed row is never rewritten.
func (r *indexEventRepository) MarkFinished(ctx context.Context, event *models.IndexEvent, finishedAt time.Time) (bool, error) {
	if err := event.EncodePayload(); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Model(&models.IndexEvent{}).
		Where("uuid = ? AND finished_at IS NULL", event.UUID).
		Updates(map[string]interface{}{
			"finished_at": finishedAt,
			"payload":     event.PayloadJSON,
		})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListByClientURL returns the events of one entry, newest first
func (r *indexEventRepository) ListByClientURL(ctx context.Context, clientURL string, offset, limit int) ([]models.IndexEvent, error) {
	var events []models.IndexEvent
	err := r.db.WithContext(ctx).
		Where("client_url = ?", models.NormalizeClientURL(clientURL)).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, translate(err)
}

// CountByClientURL returns the number of events of one entry
func (r *indexEventRepository) CountByClientURL(ctx context.Context, clientURL string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IndexEvent{}).
		Where("client_url = ?", models.NormalizeClientURL(clientURL)).
		Count(&count).Error
	return count, translate(err)
}

// List returns a page of events, optionally restricted to one type
func (r *indexEventRepository) List(ctx context.Context, eventType models.IndexEventType, offset, limit int) ([]models.IndexEvent, error) {
	var events []models.IndexEvent
	err := r.byType(ctx, eventType).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, translate(err)
}

// Count returns the number of events, optionally restricted to one type
func (r *indexEventRepository) Count(ctx context.Context, eventType models.IndexEventType) (int64, error) {
	var count int64
	err := r.byType(ctx, eventType).Count(&count).Error
	return count, translate(err)
}

func (r *indexEventRepository) byType(ctx context.Context, eventType models.IndexEventType) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.IndexEvent{})
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	return query
}
