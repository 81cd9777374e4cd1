package repository

import (
	"context"
	"fmt"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const statementBatchSize = 500

// metadataRepository implements MetadataRepository on the statements table
type metadataRepository struct {
	db *gorm.DB
}

// NewMetadataRepository creates a new metadata repository instance
func NewMetadataRepository(db *gorm.DB) MetadataRepository {
	return &metadataRepository{db: db}
}

// stagingContext names the private context a new graph is written to before
// it replaces the live one
func stagingContext(graph string) string {
	return fmt.Sprintf("%s#staging-%s", graph, uuid.New().String())
}

// Replace installs statements as the new content of graph. The statements
// are first written to a staging context; a single transaction then drops
// the live context and renames the staging one, so readers observe either
// the old or the new graph.
func (r *metadataRepository) Replace(ctx context.Context, graph string, statements []models.Statement) error {
	staging := stagingContext(graph)

	rows := make([]models.Statement, len(statements))
	for i, st := range statements {
		rows[i] = models.Statement{
			Context:   staging,
			Subject:   st.Subject,
			Predicate: st.Predicate,
			Object:    st.Object,
		}
	}

	if len(rows) > 0 {
		if err := r.db.WithContext(ctx).CreateInBatches(rows, statementBatchSize).Error; err != nil {
			r.dropStaging(staging)
			return translate(err)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("context = ?", graph).Delete(&models.Statement{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Statement{}).
			Where("context = ?", staging).
			Update("context", graph).Error
	})
	if err != nil {
		r.dropStaging(staging)
		return translate(err)
	}
	return nil
}

// dropStaging runs detached from the request context so a cancelled
// harvest still cleans up after itself
func (r *metadataRepository) dropStaging(staging string) {
	if err := r.db.Where("context = ?", staging).Delete(&models.Statement{}).Error; err != nil {
		log.Errorf("[Metadata] Failed to drop staging context %s: %v", staging, err)
	}
}

// Get returns the statements of the live graph
func (r *metadataRepository) Get(ctx context.Context, graph string) ([]models.Statement, error) {
	var statements []models.Statement
	err := r.db.WithContext(ctx).Where("context = ?", graph).Order("id ASC").Find(&statements).Error
	return statements, translate(err)
}

// Count returns the number of statements in graph
func (r *metadataRepository) Count(ctx context.Context, graph string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Statement{}).Where("context = ?", graph).Count(&count).Error
	return count, translate(err)
}

// DeleteContext removes every statement of graph
func (r *metadataRepository) DeleteContext(ctx context.Context, graph string) error {
	return translate(r.db.WithContext(ctx).Where("context = ?", graph).Delete(&models.Statement{}).Error)
}
