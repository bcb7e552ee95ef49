// Package integritytest provides an in-memory store and a seeder for tests of
// the reconciliation engine and its repositories.
package integritytest

import (
	"context"
	"testing"
	"time"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/farmerp/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with every integrity table.
// The pool is limited to one connection: each sqlite :memory: connection is a
// separate database.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.IntegrityModels()...))
	return db
}

// Dec parses a decimal literal
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Seeder writes records for one farm and one livestock batch. Every call
// advances a fake clock by a minute so creation order is deterministic.
type Seeder struct {
	t           *testing.T
	db          *gorm.DB
	FarmID      uuid.UUID
	LivestockID uuid.UUID
	Item        catalog.Item
	now         time.Time
}

// NewSeeder creates the farm, the livestock batch and an item "Starter feed"
// measured in kg with a 50 kg sack unit.
func NewSeeder(t *testing.T, db *gorm.DB) *Seeder {
	t.Helper()
	item, err := catalog.NewItem("Starter feed", "kg", 4)
	require.NoError(t, err)
	require.NoError(t, item.AddUnit("sack", Dec("50")))

	s := &Seeder{
		t:           t,
		db:          db,
		FarmID:      uuid.New(),
		LivestockID: uuid.New(),
		Item:        *item,
		now:         time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(models.ItemModelFromDomain(item)).Error)
	return s
}

// Now returns the seeder's current fake time
func (s *Seeder) Now() time.Time {
	return s.now
}

// Clock returns the seeder's fake clock, advancing it on every call
func (s *Seeder) Clock() time.Time {
	return s.tick()
}

func (s *Seeder) tick() time.Time {
	s.now = s.now.Add(time.Minute)
	return s.now
}

// PurchaseLine creates a batch for the livestock context with one line of the
// seeded item.
func (s *Seeder) PurchaseLine(qty, unit, ratio string) purchase.PurchaseLine {
	s.t.Helper()
	livestockID := s.LivestockID
	batch := &purchase.PurchaseBatch{
		ID:             uuid.New(),
		InvoiceNumber:  "INV-" + uuid.NewString()[:8],
		Date:           s.tick(),
		CounterpartyID: uuid.New(),
		FarmID:         s.FarmID,
		LivestockID:    &livestockID,
	}
	line, err := purchase.NewPurchaseLine(batch.ID, s.Item.ID, Dec(qty), unit, Dec(ratio), Dec("1000"))
	require.NoError(s.t, err)

	require.NoError(s.t, s.db.Create(models.PurchaseBatchModelFromDomain(batch)).Error)
	model := models.PurchaseLineModelFromDomain(line)
	model.UpdatedAt = s.now
	require.NoError(s.t, s.db.Create(model).Error)
	return *line
}

// Ledger creates a ledger entry in the livestock context with a consistent
// available amount.
func (s *Seeder) Ledger(sourceType inventory.SourceType, sourceID *uuid.UUID, in, used, mutated string) inventory.StockLedgerEntry {
	s.t.Helper()
	return s.LedgerIn(s.LivestockID, sourceType, sourceID, in, used, mutated)
}

// LedgerIn creates a ledger entry in contextID
func (s *Seeder) LedgerIn(contextID uuid.UUID, sourceType inventory.SourceType, sourceID *uuid.UUID, in, used, mutated string) inventory.StockLedgerEntry {
	s.t.Helper()
	now := s.tick()
	e := inventory.StockLedgerEntry{
		ID:            uuid.New(),
		FarmID:        s.FarmID,
		ContextID:     contextID,
		ItemID:        s.Item.ID,
		SourceType:    sourceType,
		SourceID:      sourceID,
		AmountIn:      Dec(in),
		AmountUsed:    Dec(used),
		AmountMutated: Dec(mutated),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.Available = e.ExpectedAvailable()
	require.NoError(s.t, s.db.Create(models.StockLedgerEntryModelFromDomain(&e)).Error)
	return e
}

// PurchaseLedger creates the ledger entry derived from line
func (s *Seeder) PurchaseLedger(line purchase.PurchaseLine, in string) inventory.StockLedgerEntry {
	id := line.ID
	return s.Ledger(inventory.SourceTypePurchase, &id, in, "0", "0")
}

// Mutation creates a transfer out of the livestock context drawing from
// sourceLedgerID, with optional item rows.
func (s *Seeder) Mutation(sourceLedgerID uuid.UUID, qty string, items ...string) inventory.MutationRecord {
	s.t.Helper()
	src := sourceLedgerID
	m := inventory.MutationRecord{
		ID:             uuid.New(),
		FarmID:         s.FarmID,
		FromContextID:  s.LivestockID,
		ToContextID:    uuid.New(),
		SourceLedgerID: &src,
		ItemID:         s.Item.ID,
		Quantity:       Dec(qty),
		Date:           s.tick(),
		Version:        1,
	}
	for _, q := range items {
		m.Items = append(m.Items, inventory.MutationItem{ID: uuid.New(), MutationID: m.ID, Quantity: Dec(q)})
	}
	model := models.MutationRecordModelFromDomain(&m)
	model.UpdatedAt = s.now
	require.NoError(s.t, s.db.Create(model).Error)
	return m
}

// MutationLedger creates the ledger entry credited to m's destination context
func (s *Seeder) MutationLedger(m inventory.MutationRecord, in string) inventory.StockLedgerEntry {
	id := m.ID
	return s.LedgerIn(m.ToContextID, inventory.SourceTypeMutation, &id, in, "0", "0")
}

// Summary stores a stock summary for key with the given quantity
func (s *Seeder) Summary(key inventory.StockGroupKey, qty string) inventory.StockSummary {
	s.t.Helper()
	sum := inventory.StockSummary{
		ID:        key.SummaryID(),
		FarmID:    key.FarmID,
		ContextID: key.ContextID,
		ItemID:    key.ItemID,
		Quantity:  Dec(qty),
		Version:   1,
		UpdatedAt: s.tick(),
	}
	require.NoError(s.t, s.db.Create(models.StockSummaryModelFromDomain(&sum)).Error)
	return sum
}

// SyncSummaries writes a correct summary for every ledger group of the farm,
// replacing any existing one.
func (s *Seeder) SyncSummaries() {
	s.t.Helper()
	var ledgers []models.StockLedgerEntryModel
	require.NoError(s.t, s.db.Where("farm_id = ?", s.FarmID).Order("created_at ASC").Find(&ledgers).Error)

	totals := map[inventory.StockGroupKey]decimal.Decimal{}
	var order []inventory.StockGroupKey
	for _, m := range ledgers {
		k := m.ToDomain().GroupKey()
		if _, ok := totals[k]; !ok {
			order = append(order, k)
			totals[k] = decimal.Zero
		}
		totals[k] = totals[k].Add(m.Available)
	}
	require.NoError(s.t, s.db.Where("farm_id = ?", s.FarmID).Delete(&models.StockSummaryModel{}).Error)
	for _, k := range order {
		s.Summary(k, totals[k].String())
	}
}

// SoftDeleteLine marks a purchase line deleted
func (s *Seeder) SoftDeleteLine(id uuid.UUID) {
	s.t.Helper()
	now := s.tick()
	require.NoError(s.t, s.db.Model(&models.PurchaseLineModel{}).Where("id = ?", id).Update("deleted_at", now).Error)
}

// SoftDeleteMutation marks a mutation deleted
func (s *Seeder) SoftDeleteMutation(id uuid.UUID) {
	s.t.Helper()
	now := s.tick()
	require.NoError(s.t, s.db.Model(&models.MutationRecordModel{}).Where("id = ?", id).Update("deleted_at", now).Error)
}

// SetLedgerAmountIn overwrites amount_in and available without bumping the
// version, simulating a defect written by another module.
func (s *Seeder) SetLedgerAmountIn(id uuid.UUID, in string) {
	s.t.Helper()
	var m models.StockLedgerEntryModel
	require.NoError(s.t, s.db.Where("id = ?", id).First(&m).Error)
	available := Dec(in).Sub(m.AmountUsed).Sub(m.AmountMutated)
	require.NoError(s.t, s.db.Model(&models.StockLedgerEntryModel{}).Where("id = ?", id).
		Updates(map[string]any{"amount_in": Dec(in), "available": available}).Error)
}

// BumpLedgerVersion increments a ledger's version, simulating a concurrent writer.
func (s *Seeder) BumpLedgerVersion(id uuid.UUID) {
	s.t.Helper()
	require.NoError(s.t, s.db.Model(&models.StockLedgerEntryModel{}).Where("id = ?", id).
		Update("version", gorm.Expr("version + 1")).Error)
}

// LoadLedger reads a ledger entry straight from the table; nil when absent.
func (s *Seeder) LoadLedger(id uuid.UUID) *inventory.StockLedgerEntry {
	s.t.Helper()
	var m models.StockLedgerEntryModel
	err := s.db.WithContext(context.Background()).Where("id = ?", id).Limit(1).Find(&m).Error
	require.NoError(s.t, err)
	if m.ID == uuid.Nil {
		return nil
	}
	return m.ToDomain()
}

// LedgersBySource reads the ledger entries referencing a source
func (s *Seeder) LedgersBySource(st inventory.SourceType, id uuid.UUID) []inventory.StockLedgerEntry {
	s.t.Helper()
	var ms []models.StockLedgerEntryModel
	require.NoError(s.t, s.db.Where("source_type = ? AND source_id = ?", string(st), id).Find(&ms).Error)
	out := make([]inventory.StockLedgerEntry, len(ms))
	for i := range ms {
		out[i] = *ms[i].ToDomain()
	}
	return out
}

// LoadLine reads a purchase line
func (s *Seeder) LoadLine(id uuid.UUID) purchase.PurchaseLine {
	s.t.Helper()
	var m models.PurchaseLineModel
	require.NoError(s.t, s.db.Where("id = ?", id).First(&m).Error)
	return *m.ToDomain()
}

// LoadMutation reads a mutation with its items
func (s *Seeder) LoadMutation(id uuid.UUID) inventory.MutationRecord {
	s.t.Helper()
	var m models.MutationRecordModel
	require.NoError(s.t, s.db.Preload("Items").Where("id = ?", id).First(&m).Error)
	return *m.ToDomain()
}

// LoadSummary reads the summary of key; nil when absent.
func (s *Seeder) LoadSummary(key inventory.StockGroupKey) *inventory.StockSummary {
	s.t.Helper()
	var m models.StockSummaryModel
	require.NoError(s.t, s.db.Where("id = ?", key.SummaryID()).Limit(1).Find(&m).Error)
	if m.ID == uuid.Nil {
		return nil
	}
	return m.ToDomain()
}

// GroupKey returns the stock group of the seeded item in contextID
func (s *Seeder) GroupKey(contextID uuid.UUID) inventory.StockGroupKey {
	return inventory.StockGroupKey{FarmID: s.FarmID, ContextID: contextID, ItemID: s.Item.ID}
}
