package persistence

import (
	"context"
	"errors"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecordReader implements integrity.RecordReader over a transaction.
// Subject rows (ledger entries, purchase lines, mutations, summaries) are read
// with SELECT ... FOR UPDATE when the dialect supports row locks.
type GormRecordReader struct {
	db   *gorm.DB
	lock bool
}

// NewGormRecordReader creates a reader. Row locking is enabled for postgres.
func NewGormRecordReader(db *gorm.DB) *GormRecordReader {
	return &GormRecordReader{db: db, lock: supportsRowLocks(db)}
}

func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}

func (r *GormRecordReader) locked(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// first runs query into dest and maps "no row" to found=false.
func first(query *gorm.DB, dest any, id uuid.UUID) (bool, error) {
	err := query.Where("id = ?", id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Item implements integrity.RecordReader
func (r *GormRecordReader) Item(ctx context.Context, id uuid.UUID) (*catalog.Item, error) {
	var model models.ItemModel
	found, err := first(r.db.WithContext(ctx).Preload("Units"), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// PurchaseLine implements integrity.RecordReader
func (r *GormRecordReader) PurchaseLine(ctx context.Context, id uuid.UUID) (*purchase.PurchaseLine, error) {
	var model models.PurchaseLineModel
	found, err := first(r.locked(ctx), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// PurchaseBatch implements integrity.RecordReader
func (r *GormRecordReader) PurchaseBatch(ctx context.Context, id uuid.UUID) (*purchase.PurchaseBatch, error) {
	var model models.PurchaseBatchModel
	found, err := first(r.db.WithContext(ctx), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Mutation implements integrity.RecordReader
func (r *GormRecordReader) Mutation(ctx context.Context, id uuid.UUID) (*inventory.MutationRecord, error) {
	var model models.MutationRecordModel
	found, err := first(r.locked(ctx).Preload("Items"), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// MutationsDrawingFrom implements integrity.RecordReader
func (r *GormRecordReader) MutationsDrawingFrom(ctx context.Context, ledgerID uuid.UUID) ([]inventory.MutationRecord, error) {
	var ms []models.MutationRecordModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("source_ledger_id = ? AND deleted_at IS NULL", ledgerID).
		Order("date ASC, id ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]inventory.MutationRecord, len(ms))
	for i := range ms {
		out[i] = *ms[i].ToDomain()
	}
	return out, nil
}

// Ledger implements integrity.RecordReader
func (r *GormRecordReader) Ledger(ctx context.Context, id uuid.UUID) (*inventory.StockLedgerEntry, error) {
	var model models.StockLedgerEntryModel
	found, err := first(r.locked(ctx), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// LedgersBySource implements integrity.RecordReader
func (r *GormRecordReader) LedgersBySource(ctx context.Context, sourceType inventory.SourceType, sourceID uuid.UUID) ([]inventory.StockLedgerEntry, error) {
	return r.findLedgers(r.db.WithContext(ctx).Where("source_type = ? AND source_id = ?", string(sourceType), sourceID))
}

// LedgersInGroup implements integrity.RecordReader
func (r *GormRecordReader) LedgersInGroup(ctx context.Context, key inventory.StockGroupKey) ([]inventory.StockLedgerEntry, error) {
	return r.findLedgers(r.db.WithContext(ctx).
		Where("farm_id = ? AND context_id = ? AND item_id = ?", key.FarmID, key.ContextID, key.ItemID))
}

// SourcesCrediting implements integrity.RecordReader. Lines are ordered by id
// and mutations by date, the same order the graph uses.
func (r *GormRecordReader) SourcesCrediting(ctx context.Context, key inventory.StockGroupKey) ([]integrity.EntityRef, error) {
	db := r.db.WithContext(ctx)
	batchQ := db.Model(&models.PurchaseBatchModel{}).Select("id").Where("farm_id = ?", key.FarmID)
	if key.ContextID == key.FarmID {
		batchQ = batchQ.Where("livestock_id IS NULL")
	} else {
		batchQ = batchQ.Where("livestock_id = ?", key.ContextID)
	}
	var lineIDs []uuid.UUID
	if err := db.Model(&models.PurchaseLineModel{}).
		Where("item_id = ? AND batch_id IN (?)", key.ItemID, batchQ).
		Order("id ASC").
		Pluck("id", &lineIDs).Error; err != nil {
		return nil, err
	}
	var mutationIDs []uuid.UUID
	if err := db.Model(&models.MutationRecordModel{}).
		Where("farm_id = ? AND to_context_id = ? AND item_id = ?", key.FarmID, key.ContextID, key.ItemID).
		Order("date ASC, id ASC").
		Pluck("id", &mutationIDs).Error; err != nil {
		return nil, err
	}

	out := make([]integrity.EntityRef, 0, len(lineIDs)+len(mutationIDs))
	for _, id := range lineIDs {
		out = append(out, integrity.EntityRef{Type: integrity.EntityPurchaseLine, ID: id})
	}
	for _, id := range mutationIDs {
		out = append(out, integrity.EntityRef{Type: integrity.EntityMutation, ID: id})
	}
	return out, nil
}

func (r *GormRecordReader) findLedgers(query *gorm.DB) ([]inventory.StockLedgerEntry, error) {
	var ms []models.StockLedgerEntryModel
	if err := query.Order("created_at ASC, id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]inventory.StockLedgerEntry, len(ms))
	for i := range ms {
		out[i] = *ms[i].ToDomain()
	}
	return out, nil
}

// Summary implements integrity.RecordReader
func (r *GormRecordReader) Summary(ctx context.Context, id uuid.UUID) (*inventory.StockSummary, error) {
	var model models.StockSummaryModel
	found, err := first(r.locked(ctx), &model, id)
	if !found {
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormRecordWriter implements integrity.RecordWriter. Every update and delete
// is guarded by the version the record was read with; a mismatch returns
// shared.ErrConcurrencyConflict.
type GormRecordWriter struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormRecordWriter creates a writer
func NewGormRecordWriter(db *gorm.DB, clock shared.Clock) *GormRecordWriter {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &GormRecordWriter{db: db, clock: clock}
}

// guarded runs a version-guarded update and bumps *version on success.
func (w *GormRecordWriter) guarded(ctx context.Context, model any, id uuid.UUID, version *int, updates map[string]any) error {
	updates["version"] = *version + 1
	result := w.db.WithContext(ctx).Model(model).
		Where("id = ? AND version = ?", id, *version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	*version++
	return nil
}

func (w *GormRecordWriter) guardedDelete(ctx context.Context, model any, id uuid.UUID, version int) error {
	result := w.db.WithContext(ctx).Where("id = ? AND version = ?", id, version).Delete(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// create inserts model. A duplicate key means another fix created the same
// deterministic row first, which is reported as a concurrency conflict.
func (w *GormRecordWriter) create(ctx context.Context, model any) error {
	err := w.db.WithContext(ctx).Create(model).Error
	if isDuplicateKey(w.db, err) {
		return shared.ErrConcurrencyConflict
	}
	return err
}

func isDuplicateKey(db *gorm.DB, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if t, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(t.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}

// CreateLedger implements integrity.RecordWriter
func (w *GormRecordWriter) CreateLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error {
	now := w.clock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.Version == 0 {
		entry.Version = 1
	}
	return w.create(ctx, models.StockLedgerEntryModelFromDomain(entry))
}

// UpdateLedger implements integrity.RecordWriter
func (w *GormRecordWriter) UpdateLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error {
	now := w.clock()
	err := w.guarded(ctx, &models.StockLedgerEntryModel{}, entry.ID, &entry.Version, map[string]any{
		"farm_id":        entry.FarmID,
		"context_id":     entry.ContextID,
		"item_id":        entry.ItemID,
		"source_type":    string(entry.SourceType),
		"source_id":      entry.SourceID,
		"amount_in":      entry.AmountIn,
		"amount_used":    entry.AmountUsed,
		"amount_mutated": entry.AmountMutated,
		"available":      entry.Available,
		"updated_at":     now,
	})
	if err == nil {
		entry.UpdatedAt = now
	}
	return err
}

// DeleteLedger implements integrity.RecordWriter
func (w *GormRecordWriter) DeleteLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error {
	return w.guardedDelete(ctx, &models.StockLedgerEntryModel{}, entry.ID, entry.Version)
}

// UpdatePurchaseLine implements integrity.RecordWriter. Only the conversion
// ratio is ever corrected.
func (w *GormRecordWriter) UpdatePurchaseLine(ctx context.Context, line *purchase.PurchaseLine) error {
	return w.guarded(ctx, &models.PurchaseLineModel{}, line.ID, &line.Version, map[string]any{
		"conversion_ratio": line.ConversionRatio,
		"updated_at":       w.clock(),
	})
}

// UpdateMutation implements integrity.RecordWriter. Only the header quantity
// is ever corrected; item rows are left alone.
func (w *GormRecordWriter) UpdateMutation(ctx context.Context, mutation *inventory.MutationRecord) error {
	return w.guarded(ctx, &models.MutationRecordModel{}, mutation.ID, &mutation.Version, map[string]any{
		"quantity":   mutation.Quantity,
		"updated_at": w.clock(),
	})
}

// CreateSummary implements integrity.RecordWriter
func (w *GormRecordWriter) CreateSummary(ctx context.Context, summary *inventory.StockSummary) error {
	summary.UpdatedAt = w.clock()
	if summary.Version == 0 {
		summary.Version = 1
	}
	return w.create(ctx, models.StockSummaryModelFromDomain(summary))
}

// UpdateSummary implements integrity.RecordWriter
func (w *GormRecordWriter) UpdateSummary(ctx context.Context, summary *inventory.StockSummary) error {
	now := w.clock()
	err := w.guarded(ctx, &models.StockSummaryModel{}, summary.ID, &summary.Version, map[string]any{
		"farm_id":    summary.FarmID,
		"context_id": summary.ContextID,
		"item_id":    summary.ItemID,
		"quantity":   summary.Quantity,
		"updated_at": now,
	})
	if err == nil {
		summary.UpdatedAt = now
	}
	return err
}

// DeleteSummary implements integrity.RecordWriter
func (w *GormRecordWriter) DeleteSummary(ctx context.Context, summary *inventory.StockSummary) error {
	return w.guardedDelete(ctx, &models.StockSummaryModel{}, summary.ID, summary.Version)
}

// Ensure the store types implement the domain interfaces
var (
	_ integrity.RecordReader = (*GormRecordReader)(nil)
	_ integrity.RecordWriter = (*GormRecordWriter)(nil)
)
