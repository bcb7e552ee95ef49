package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/persistence/integritytest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
}

func TestGormRecordReader_MissingRecordsReturnNil(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	r := NewGormRecordReader(db)
	ctx := context.Background()
	id := uuid.New()

	ledger, err := r.Ledger(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, ledger)

	line, err := r.PurchaseLine(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, line)

	m, err := r.Mutation(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, m)

	sum, err := r.Summary(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sum)

	item, err := r.Item(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestGormRecordReader_ReadsSeededRecords(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	r := NewGormRecordReader(db)
	ctx := context.Background()

	line := seed.PurchaseLine("10", "sack", "50")
	entry := seed.PurchaseLedger(line, "500")
	seed.SoftDeleteLine(line.ID)

	item, err := r.Item(ctx, seed.Item.ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	ratio, ok := item.RatioFor("sack")
	require.True(t, ok)
	assert.True(t, ratio.Equal(integritytest.Dec("50")))

	gotLine, err := r.PurchaseLine(ctx, line.ID)
	require.NoError(t, err)
	require.NotNil(t, gotLine)
	assert.True(t, gotLine.IsDeleted(), "soft-deleted lines are still returned")

	batch, err := r.PurchaseBatch(ctx, line.BatchID)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, seed.LivestockID, batch.ContextID())

	bySource, err := r.LedgersBySource(ctx, inventory.SourceTypePurchase, line.ID)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, entry.ID, bySource[0].ID)
	assert.True(t, bySource[0].AmountIn.Equal(integritytest.Dec("500")))

	group, err := r.LedgersInGroup(ctx, entry.GroupKey())
	require.NoError(t, err)
	assert.Len(t, group, 1)
}

func TestGormRecordReader_MutationsDrawingFrom(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	r := NewGormRecordReader(db)

	line := seed.PurchaseLine("10", "sack", "50")
	src := seed.PurchaseLedger(line, "500")
	first := seed.Mutation(src.ID, "100", "60", "40")
	deleted := seed.Mutation(src.ID, "50")
	second := seed.Mutation(src.ID, "25")
	seed.SoftDeleteMutation(deleted.ID)

	ms, err := r.MutationsDrawingFrom(context.Background(), src.ID)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, first.ID, ms[0].ID)
	assert.Equal(t, second.ID, ms[1].ID)
	assert.Len(t, ms[0].Items, 2)
	assert.True(t, ms[0].TransferredQuantity().Equal(integritytest.Dec("100")))
}

func TestGormRecordWriter_UpdateLedgerBumpsVersion(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	w := NewGormRecordWriter(db, fixedClock)

	entry := seed.Ledger(inventory.SourceTypePurchase, nil, "100", "10", "0")
	entry.AmountIn = integritytest.Dec("120")
	require.NoError(t, entry.Recalculate())

	require.NoError(t, w.UpdateLedger(context.Background(), &entry))
	assert.Equal(t, 2, entry.Version)
	assert.Equal(t, fixedClock(), entry.UpdatedAt)

	stored := seed.LoadLedger(entry.ID)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Version)
	assert.True(t, stored.Available.Equal(integritytest.Dec("110")))
}

func TestGormRecordWriter_StaleVersionConflicts(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	w := NewGormRecordWriter(db, fixedClock)
	ctx := context.Background()

	entry := seed.Ledger(inventory.SourceTypePurchase, nil, "100", "0", "0")
	seed.BumpLedgerVersion(entry.ID)

	entry.AmountIn = integritytest.Dec("1")
	err := w.UpdateLedger(ctx, &entry)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, 1, entry.Version, "version is untouched on conflict")

	err = w.DeleteLedger(ctx, &entry)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.NotNil(t, seed.LoadLedger(entry.ID))
}

func TestGormRecordWriter_CreateAndDelete(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	w := NewGormRecordWriter(db, fixedClock)
	ctx := context.Background()

	sourceID := uuid.New()
	entry := inventory.StockLedgerEntry{
		ID:         uuid.New(),
		FarmID:     seed.FarmID,
		ContextID:  seed.LivestockID,
		ItemID:     seed.Item.ID,
		SourceType: inventory.SourceTypeMutation,
		SourceID:   &sourceID,
		AmountIn:   integritytest.Dec("7.5"),
	}
	require.NoError(t, entry.Recalculate())
	require.NoError(t, w.CreateLedger(ctx, &entry))
	assert.Equal(t, 1, entry.Version)
	assert.Equal(t, fixedClock(), entry.CreatedAt)

	stored := seed.LoadLedger(entry.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.Available.Equal(integritytest.Dec("7.5")))

	require.NoError(t, w.DeleteLedger(ctx, &entry))
	assert.Nil(t, seed.LoadLedger(entry.ID))

	key := seed.GroupKey(seed.LivestockID)
	sum := inventory.StockSummary{ID: key.SummaryID(), FarmID: key.FarmID, ContextID: key.ContextID, ItemID: key.ItemID, Quantity: integritytest.Dec("3")}
	require.NoError(t, w.CreateSummary(ctx, &sum))
	sum.Quantity = integritytest.Dec("4")
	require.NoError(t, w.UpdateSummary(ctx, &sum))
	assert.Equal(t, 2, sum.Version)
	assert.True(t, seed.LoadSummary(key).Quantity.Equal(integritytest.Dec("4")))

	require.NoError(t, w.DeleteSummary(ctx, &sum))
	assert.Nil(t, seed.LoadSummary(key))
}

func TestGormRecordWriter_DuplicateCreateConflicts(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	w := NewGormRecordWriter(db, fixedClock)
	ctx := context.Background()

	key := seed.GroupKey(seed.LivestockID)
	first := inventory.StockSummary{ID: key.SummaryID(), FarmID: key.FarmID, ContextID: key.ContextID, ItemID: key.ItemID, Quantity: integritytest.Dec("3")}
	require.NoError(t, w.CreateSummary(ctx, &first))

	second := first
	second.Version = 0
	second.Quantity = integritytest.Dec("5")
	err := w.CreateSummary(ctx, &second)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.True(t, seed.LoadSummary(key).Quantity.Equal(integritytest.Dec("3")))

	entry := seed.Ledger(inventory.SourceTypePurchase, nil, "100", "0", "0")
	dup := entry
	err = w.CreateLedger(ctx, &dup)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestGormRecordWriter_PartialUpdates(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	w := NewGormRecordWriter(db, fixedClock)
	ctx := context.Background()

	line := seed.PurchaseLine("10", "sack", "1")
	line.ConversionRatio = integritytest.Dec("50")
	require.NoError(t, w.UpdatePurchaseLine(ctx, &line))
	stored := seed.LoadLine(line.ID)
	assert.True(t, stored.ConversionRatio.Equal(integritytest.Dec("50")))
	assert.True(t, stored.QuantityOriginal.Equal(integritytest.Dec("10")))
	assert.Equal(t, 2, stored.Version)

	src := seed.PurchaseLedger(line, "500")
	m := seed.Mutation(src.ID, "10", "6", "5")
	m.Quantity = integritytest.Dec("11")
	require.NoError(t, w.UpdateMutation(ctx, &m))
	storedM := seed.LoadMutation(m.ID)
	assert.True(t, storedM.Quantity.Equal(integritytest.Dec("11")))
	assert.Len(t, storedM.Items, 2, "item rows are never rewritten")
}

func TestGormRecordReader_LocksRowsOnPostgres(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	r := NewGormRecordReader(db.DB)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "stock_ledger_entries" WHERE id = \$1 ORDER BY .* LIMIT .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version"}))

	entry, err := r.Ledger(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRecordWriter_VersionGuardedUpdateSQL(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	w := NewGormRecordWriter(db.DB, fixedClock)
	line := &purchase.PurchaseLine{ID: uuid.New(), ConversionRatio: integritytest.Dec("50"), Version: 3}

	mock.ExpectExec(`UPDATE "purchase_lines" SET .*"version"=\$\d+ WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := w.UpdatePurchaseLine(context.Background(), line)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, 3, line.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
