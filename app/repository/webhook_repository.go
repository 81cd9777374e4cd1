package repository

import (
	"context"
	"errors"

	"github.com/fairdatapoint/fdp-index/app/models"
	"gorm.io/gorm"
)

// webhookRepository implements the WebhookRepository interface
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// Create stores a new webhook
func (r *webhookRepository) Create(ctx context.Context, webhook *models.IndexWebhook) error {
	return translate(r.db.WithContext(ctx).Create(webhook).Error)
}

// GetByUUID retrieves a webhook by its uuid
func (r *webhookRepository) GetByUUID(ctx context.Context, uuid string) (*models.IndexWebhook, error) {
	var webhook models.IndexWebhook
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&webhook).Error
	if err != nil {
		return nil, translate(err)
	}
	return &webhook, nil
}

// GetAll retrieves all webhooks
func (r *webhookRepository) GetAll(ctx context.Context) ([]models.IndexWebhook, error) {
	var webhooks []models.IndexWebhook
	err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&webhooks).Error
	return webhooks, translate(err)
}

// GetEnabled retrieves the webhooks that receive deliveries
func (r *webhookRepository) GetEnabled(ctx context.Context) ([]models.IndexWebhook, error) {
	var webhooks []models.IndexWebhook
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&webhooks).Error
	return webhooks, translate(err)
}

// Update saves an existing webhook
func (r *webhookRepository) Update(ctx context.Context, webhook *models.IndexWebhook) error {
	return translate(r.db.WithContext(ctx).Save(webhook).Error)
}

// Delete removes a webhook and its match records
func (r *webhookRepository) Delete(ctx context.Context, uuid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("uuid = ?", uuid).Delete(&models.IndexWebhook{})
		if result.Error != nil {
			return translate(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return translate(tx.Where("webhook_uuid = ?", uuid).Delete(&models.IndexWebhookEvent{}).Error)
	})
}

// RecordMatch stores that a webhook matched an event. It returns false when
// the pair was recorded before.
func (r *webhookRepository) RecordMatch(ctx context.Context, match *models.IndexWebhookEvent) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IndexWebhookEvent{}).
		Where("webhook_uuid = ? AND event_uuid = ?", match.WebhookUUID, match.EventUUID).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	if count > 0 {
		return false, nil
	}

	if err := r.db.WithContext(ctx).Create(match).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, translate(err)
	}
	return true, nil
}
