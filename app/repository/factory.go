package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetIndexEntryRepository returns the index entry repository instance
func (f *Factory) GetIndexEntryRepository() IndexEntryRepository {
	return f.GetRepositories().Entry
}

// GetIndexEventRepository returns the event repository instance
func (f *Factory) GetIndexEventRepository() IndexEventRepository {
	return f.GetRepositories().Event
}

// GetWebhookRepository returns the webhook repository instance
func (f *Factory) GetWebhookRepository() WebhookRepository {
	return f.GetRepositories().Webhook
}

// GetSettingRepository returns the setting repository instance
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

// GetMetadataRepository returns the metadata repository instance
func (f *Factory) GetMetadataRepository() MetadataRepository {
	return f.GetRepositories().Metadata
}
