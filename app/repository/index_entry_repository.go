package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"gorm.io/gorm"
)

// indexEntryRepository implements the IndexEntryRepository interface
type indexEntryRepository struct {
	db *gorm.DB
}

// NewIndexEntryRepository creates a new index entry repository instance
func NewIndexEntryRepository(db *gorm.DB) IndexEntryRepository {
	return &indexEntryRepository{db: db}
}

// Create inserts a new entry
func (r *indexEntryRepository) Create(ctx context.Context, entry *models.IndexEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error)
}

// GetByUUID retrieves an entry by its uuid
func (r *indexEntryRepository) GetByUUID(ctx context.Context, uuid string) (*models.IndexEntry, error) {
	var entry models.IndexEntry
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// GetByClientURL retrieves an entry by its URL, normalizing it first
func (r *indexEntryRepository) GetByClientURL(ctx context.Context, clientURL string) (*models.IndexEntry, error) {
	var entry models.IndexEntry
	err := r.db.WithContext(ctx).Where("client_url = ?", models.NormalizeClientURL(clientURL)).First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// EnsureEntry returns the entry for clientURL, creating it with permit when
// missing. The boolean reports whether the entry was created by this call.
func (r *indexEntryRepository) EnsureEntry(ctx context.Context, clientURL string, permit models.IndexEntryPermit) (*models.IndexEntry, bool, error) {
	entry, err := r.GetByClientURL(ctx, clientURL)
	if err == nil {
		return entry, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	entry = &models.IndexEntry{
		ClientURL: models.NormalizeClientURL(clientURL),
		Permit:    permit,
		State:     models.StateUnknown,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost the race against a concurrent insert
			existing, getErr := r.GetByClientURL(ctx, clientURL)
			return existing, false, getErr
		}
		return nil, false, translate(err)
	}
	return entry, true, nil
}

// UpdatePermit changes only the permit column so that a harvest finishing
// concurrently keeps its state and retrieval time. Returns the fresh row.
func (r *indexEntryRepository) UpdatePermit(ctx context.Context, uuid string, permit models.IndexEntryPermit) (*models.IndexEntry, error) {
	result := r.db.WithContext(ctx).Model(&models.IndexEntry{}).
		Where("uuid = ?", uuid).
		Updates(map[string]interface{}{"permit": permit, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByUUID(ctx, uuid)
}

// UpdateState records a harvest outcome on the entry addressed by clientURL
func (r *indexEntryRepository) UpdateState(ctx context.Context, clientURL string, state models.IndexEntryState, lastError string, retrievedAt *time.Time) error {
	updates := map[string]interface{}{
		"state":      state,
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if retrievedAt != nil {
		updates["last_retrieval_at"] = *retrievedAt
	}
	result := r.db.WithContext(ctx).Model(&models.IndexEntry{}).
		Where("client_url = ?", models.NormalizeClientURL(clientURL)).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the entry row
func (r *indexEntryRepository) Delete(ctx context.Context, uuid string) error {
	result := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.IndexEntry{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of entries, most recently modified first
func (r *indexEntryRepository) List(ctx context.Context, filter EntryFilter, offset, limit int) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	err := r.filtered(ctx, filter).
		Order("updated_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, translate(err)
}

// Count returns the number of entries matching filter
func (r *indexEntryRepository) Count(ctx context.Context, filter EntryFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, translate(err)
}

// ListAll returns every entry matching filter
func (r *indexEntryRepository) ListAll(ctx context.Context, filter EntryFilter) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	err := r.filtered(ctx, filter).Order("updated_at DESC").Order("id DESC").Find(&entries).Error
	return entries, translate(err)
}

// CountByState groups entries with one of permits by state
func (r *indexEntryRepository) CountByState(ctx context.Context, permits []models.IndexEntryPermit) (map[models.IndexEntryState]int64, error) {
	var rows []struct {
		State models.IndexEntryState
		Total int64
	}
	err := r.filtered(ctx, EntryFilter{Permits: permits}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	counts := make(map[models.IndexEntryState]int64, len(models.AllStates))
	for _, state := range models.AllStates {
		counts[state] = 0
	}
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}

func (r *indexEntryRepository) filtered(ctx context.Context, filter EntryFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.IndexEntry{})
	if len(filter.States) > 0 {
		query = query.Where("state IN ?", filter.States)
	}
	if len(filter.Permits) > 0 {
		query = query.Where("permit IN ?", filter.Permits)
	}
	return query
}
