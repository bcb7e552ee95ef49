package persistence

import (
	"context"
	"errors"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditTrailRepository implements integrity.AuditTrailRepository. The
// table is append-only: there is no update or delete.
type GormAuditTrailRepository struct {
	db *gorm.DB
}

// NewGormAuditTrailRepository creates a new GormAuditTrailRepository
func NewGormAuditTrailRepository(db *gorm.DB) *GormAuditTrailRepository {
	return &GormAuditTrailRepository{db: db}
}

// Append implements integrity.AuditTrailRepository
func (r *GormAuditTrailRepository) Append(ctx context.Context, entry *integrity.AuditTrailEntry) error {
	model, err := models.AuditTrailModelFromDomain(entry)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID implements integrity.AuditTrailRepository
func (r *GormAuditTrailRepository) FindByID(ctx context.Context, id uuid.UUID) (*integrity.AuditTrailEntry, error) {
	var model models.AuditTrailModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// ListByModel implements integrity.AuditTrailRepository. Entries whose subject
// is another record but which rewrote this one are included.
func (r *GormAuditTrailRepository) ListByModel(ctx context.Context, modelType integrity.EntityType, modelID uuid.UUID) ([]integrity.AuditTrailEntry, error) {
	db := r.db.WithContext(ctx)
	touched := db.Model(&models.AuditTrailRecordModel{}).
		Select("entry_id").
		Where("model_type = ? AND model_id = ?", string(modelType), modelID)

	var ms []models.AuditTrailModel
	err := db.
		Where("(model_type = ? AND model_id = ?) OR id IN (?)", string(modelType), modelID, touched).
		Order("created_at DESC, id DESC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	entries := make([]integrity.AuditTrailEntry, 0, len(ms))
	for i := range ms {
		e, err := ms[i].ToDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// Ensure GormAuditTrailRepository implements integrity.AuditTrailRepository
var _ integrity.AuditTrailRepository = (*GormAuditTrailRepository)(nil)
