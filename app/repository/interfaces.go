package repository

import (
	"context"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"gorm.io/gorm"
)

// EntryFilter narrows entry listings; empty slices match everything
type EntryFilter struct {
	States  []models.IndexEntryState
	Permits []models.IndexEntryPermit
}

// IndexEntryRepository defines the interface for index entry operations
type IndexEntryRepository interface {
	Create(ctx context.Context, entry *models.IndexEntry) error
	GetByUUID(ctx context.Context, uuid string) (*models.IndexEntry, error)
	GetByClientURL(ctx context.Context, clientURL string) (*models.IndexEntry, error)
	EnsureEntry(ctx context.Context, clientURL string, permit models.IndexEntryPermit) (*models.IndexEntry, bool, error)
	UpdatePermit(ctx context.Context, uuid string, permit models.IndexEntryPermit) (*models.IndexEntry, error)
	UpdateState(ctx context.Context, clientURL string, state models.IndexEntryState, lastError string, retrievedAt *time.Time) error
	Delete(ctx context.Context, uuid string) error
	List(ctx context.Context, filter EntryFilter, offset, limit int) ([]models.IndexEntry, error)
	Count(ctx context.Context, filter EntryFilter) (int64, error)
	ListAll(ctx context.Context, filter EntryFilter) ([]models.IndexEntry, error)
	CountByState(ctx context.Context, permits []models.IndexEntryPermit) (map[models.IndexEntryState]int64, error)
}

// IndexEventRepository defines the interface for the event journal table
type IndexEventRepository interface {
	Create(ctx context.Context, event *models.IndexEvent) error
	GetByUUID(ctx context.Context, uuid string) (*models.IndexEvent, error)
	MarkFinished(ctx context.Context, event *models.IndexEvent, finishedAt time.Time) (bool, error)
	ListByClientURL(ctx context.Context, clientURL string, offset, limit int) ([]models.IndexEvent, error)
	CountByClientURL(ctx context.Context, clientURL string) (int64, error)
	List(ctx context.Context, eventType models.IndexEventType, offset, limit int) ([]models.IndexEvent, error)
	Count(ctx context.Context, eventType models.IndexEventType) (int64, error)
}

// WebhookRepository defines the interface for webhook subscriptions
type WebhookRepository interface {
	Create(ctx context.Context, webhook *models.IndexWebhook) error
	GetByUUID(ctx context.Context, uuid string) (*models.IndexWebhook, error)
	GetAll(ctx context.Context) ([]models.IndexWebhook, error)
	GetEnabled(ctx context.Context) ([]models.IndexWebhook, error)
	Update(ctx context.Context, webhook *models.IndexWebhook) error
	Delete(ctx context.Context, uuid string) error
	RecordMatch(ctx context.Context, match *models.IndexWebhookEvent) (bool, error)
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
	DeleteValue(key string) error
}

// MetadataRepository stores harvested graphs, one context per entry
type MetadataRepository interface {
	Replace(ctx context.Context, graph string, statements []models.Statement) error
	Get(ctx context.Context, graph string) ([]models.Statement, error)
	Count(ctx context.Context, graph string) (int64, error)
	DeleteContext(ctx context.Context, graph string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Entry    IndexEntryRepository
	Event    IndexEventRepository
	Webhook  WebhookRepository
	Setting  SettingRepository
	Metadata MetadataRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Entry:    NewIndexEntryRepository(db),
		Event:    NewIndexEventRepository(db),
		Webhook:  NewWebhookRepository(db),
		Setting:  NewSettingRepository(db),
		Metadata: NewMetadataRepository(db),
	}
}
