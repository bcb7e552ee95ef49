package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/persistence/integritytest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerFix(subjectID uuid.UUID, before, after string, at time.Time) *integrity.AuditTrailEntry {
	state := func(in string) integrity.Snapshot {
		e := inventory.StockLedgerEntry{
			ID:        subjectID,
			FarmID:    uuid.New(),
			ContextID: uuid.New(),
			ItemID:    uuid.New(),
			AmountIn:  integritytest.Dec(in),
		}
		e.Available = e.ExpectedAvailable()
		return integrity.Snapshot{Records: []integrity.RecordState{integrity.LedgerState(&e)}}
	}
	actor := uuid.New()
	return &integrity.AuditTrailEntry{
		ID:          uuid.New(),
		ModelType:   integrity.EntityStockLedger,
		ModelID:     subjectID,
		Action:      integrity.AuditActionFix,
		FindingKind: integrity.KindQuantityMismatch,
		Before:      state(before),
		After:       state(after),
		ActorID:     &actor,
		CreatedAt:   at,
	}
}

func TestGormAuditTrailRepository_AppendAndFind(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	repo := NewGormAuditTrailRepository(db)
	ctx := context.Background()

	entry := ledgerFix(uuid.New(), "100", "500", fixedClock())
	require.NoError(t, repo.Append(ctx, entry))

	got, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ModelType, got.ModelType)
	assert.Equal(t, entry.ModelID, got.ModelID)
	assert.Equal(t, entry.FindingKind, got.FindingKind)
	assert.Equal(t, *entry.ActorID, *got.ActorID)
	assert.Nil(t, got.RollbackOfID)
	assert.True(t, entry.Before.Matches(got.Before))
	assert.True(t, entry.After.Matches(got.After))
	assert.Equal(t, "500", got.After.Field(integrity.EntityRef{Type: integrity.EntityStockLedger, ID: entry.ModelID}, integrity.FieldAmountIn))
}

func TestGormAuditTrailRepository_FindMissing(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	repo := NewGormAuditTrailRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormAuditTrailRepository_ListByModelNewestFirst(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	repo := NewGormAuditTrailRepository(db)
	ctx := context.Background()

	subject := uuid.New()
	first := ledgerFix(subject, "1", "2", fixedClock())
	second := ledgerFix(subject, "2", "3", fixedClock().Add(time.Hour))
	unrelated := ledgerFix(uuid.New(), "1", "2", fixedClock())
	for _, e := range []*integrity.AuditTrailEntry{first, second, unrelated} {
		require.NoError(t, repo.Append(ctx, e))
	}

	entries, err := repo.ListByModel(ctx, integrity.EntityStockLedger, subject)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)

	none, err := repo.ListByModel(ctx, integrity.EntityPurchaseLine, subject)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormAuditTrailRepository_ListByModelIncludesRelatedRecords(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	repo := NewGormAuditTrailRepository(db)
	ctx := context.Background()

	mutationID := uuid.New()
	dest := ledgerFix(uuid.New(), "100", "110", fixedClock())
	entry := &integrity.AuditTrailEntry{
		ID:          uuid.New(),
		ModelType:   integrity.EntityMutation,
		ModelID:     mutationID,
		Action:      integrity.AuditActionFix,
		FindingKind: integrity.KindMutationQuantityMismatch,
		Before:      dest.Before,
		After:       dest.After,
		CreatedAt:   fixedClock(),
	}
	require.NoError(t, repo.Append(ctx, entry))

	byLedger, err := repo.ListByModel(ctx, integrity.EntityStockLedger, dest.ModelID)
	require.NoError(t, err)
	require.Len(t, byLedger, 1)
	assert.Equal(t, entry.ID, byLedger[0].ID)

	byMutation, err := repo.ListByModel(ctx, integrity.EntityMutation, mutationID)
	require.NoError(t, err)
	require.Len(t, byMutation, 1)
	assert.Equal(t, entry.ID, byMutation[0].ID)
}

func TestGormIntegrityTransactionScope_RollsBackOnError(t *testing.T) {
	db := integritytest.NewSQLiteDB(t)
	scope := NewGormIntegrityTransactionScope(db, nil, fixedClock)
	ctx := context.Background()
	boom := errors.New("boom")

	entry := ledgerFix(uuid.New(), "1", "2", fixedClock())
	err := scope.Execute(ctx, func(repos appintegrity.TransactionalRepositories) error {
		require.NoError(t, repos.AuditTrail().Append(ctx, entry))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewGormAuditTrailRepository(db).FindByID(ctx, entry.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "append inside a failed transaction is discarded")

	err = scope.Execute(ctx, func(repos appintegrity.TransactionalRepositories) error {
		return repos.AuditTrail().Append(ctx, entry)
	})
	require.NoError(t, err)
	_, err = NewGormAuditTrailRepository(db).FindByID(ctx, entry.ID)
	assert.NoError(t, err)
}
