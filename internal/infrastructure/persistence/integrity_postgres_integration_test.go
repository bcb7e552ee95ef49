//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/infrastructure/migration"
	"github.com/farmerp/backend/internal/infrastructure/persistence/integritytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newPostgresDB starts a postgres container and applies the embedded migrations
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("farmerp_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	return db
}

func TestPostgres_FixAndRollback(t *testing.T) {
	db := newPostgresDB(t)
	seed := integritytest.NewSeeder(t, db)
	ctx := context.Background()

	line := seed.PurchaseLine("10", "sack", "50")
	entry := seed.PurchaseLedger(line, "10")
	seed.SyncSummaries()

	scope := NewGormIntegrityTransactionScope(db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, seed.Clock)
	audit := NewGormAuditTrailRepository(db)
	svc := appintegrity.NewIntegrityService(NewGormGraphLoader(db, true), scope, audit, zap.NewNop())

	outcomes, err := svc.ApplyAllOfKind(ctx, integrity.KindQuantityMismatch, integrity.FarmScope(seed.FarmID))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, integrity.OutcomeApplied, outcomes[0].Status, outcomes[0].Message)

	stored := seed.LoadLedger(entry.ID)
	assert.True(t, stored.AmountIn.Equal(integritytest.Dec("500")))

	back := svc.Rollback(ctx, *outcomes[0].AuditEntryID)
	require.Equal(t, integrity.OutcomeApplied, back.Status, back.Message)
	stored = seed.LoadLedger(entry.ID)
	assert.True(t, stored.AmountIn.Equal(integritytest.Dec("10")))

	history, err := svc.ListAuditTrail(ctx, integrity.EntityStockLedger, entry.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, integrity.AuditActionRollback, history[0].Action)
}

func TestPostgres_NegativeAvailableRejectedByCheck(t *testing.T) {
	db := newPostgresDB(t)
	seed := integritytest.NewSeeder(t, db)

	entry := seed.Ledger("", nil, "10", "0", "0")
	err := db.Exec("UPDATE stock_ledger_entries SET available = -1 WHERE id = ?", entry.ID).Error
	assert.Error(t, err)
}

func TestPostgres_ConcurrentFixesApplyOnce(t *testing.T) {
	db := newPostgresDB(t)
	seed := integritytest.NewSeeder(t, db)
	ctx := context.Background()

	line := seed.PurchaseLine("10", "sack", "50")
	seed.PurchaseLedger(line, "10")
	seed.SyncSummaries()

	clock := func() time.Time { return time.Now().UTC() }
	svc := appintegrity.NewIntegrityService(
		NewGormGraphLoader(db, true),
		NewGormIntegrityTransactionScope(db, nil, clock),
		NewGormAuditTrailRepository(db),
		zap.NewNop(),
	)

	found, err := svc.Detect(ctx, integrity.FarmScope(seed.FarmID))
	require.NoError(t, err)
	fixes := integrity.FilterByKind(found, integrity.KindQuantityMismatch)
	require.Len(t, fixes, 1)

	const workers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []integrity.OutcomeStatus
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := svc.ApplyFix(ctx, fixes[0])
			mu.Lock()
			statuses = append(statuses, out.Status)
			mu.Unlock()
		}()
	}
	wg.Wait()

	applied := 0
	for _, s := range statuses {
		if s == integrity.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "statuses: %v", statuses)

	var n int64
	require.NoError(t, db.Table("integrity_audit_trail").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPostgres_MigrateDownDropsSchema(t *testing.T) {
	db := newPostgresDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Down())
	assert.False(t, db.Migrator().HasTable("stock_ledger_entries"))

	require.NoError(t, m.Up())
	assert.True(t, db.Migrator().HasTable("integrity_audit_trail"))
}
