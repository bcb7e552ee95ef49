package persistence

import (
	"context"
	"database/sql"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormIntegrityTransactionScope implements appintegrity.TransactionScope using
// GORM transactions. Each Execute is one fix or rollback.
type GormIntegrityTransactionScope struct {
	db    *gorm.DB
	opts  *sql.TxOptions
	clock shared.Clock
}

// NewGormIntegrityTransactionScope creates a transaction scope. opts may be nil
// to use the database default isolation level.
func NewGormIntegrityTransactionScope(db *gorm.DB, opts *sql.TxOptions, clock shared.Clock) *GormIntegrityTransactionScope {
	return &GormIntegrityTransactionScope{db: db, opts: opts, clock: clock}
}

// Execute runs fn within a database transaction. If fn returns an error the
// transaction is rolled back, otherwise it is committed.
func (s *GormIntegrityTransactionScope) Execute(ctx context.Context, fn func(repos appintegrity.TransactionalRepositories) error) error {
	txFn := func(tx *gorm.DB) error {
		return fn(&gormIntegrityRepositories{tx: tx, clock: s.clock})
	}
	if s.opts != nil {
		return s.db.WithContext(ctx).Transaction(txFn, s.opts)
	}
	return s.db.WithContext(ctx).Transaction(txFn)
}

// gormIntegrityRepositories provides the stores bound to one transaction.
type gormIntegrityRepositories struct {
	tx    *gorm.DB
	clock shared.Clock
}

// Reader returns the locking record reader scoped to the current transaction.
func (r *gormIntegrityRepositories) Reader() integrity.RecordReader {
	return NewGormRecordReader(r.tx)
}

// Writer returns the version-guarded writer scoped to the current transaction.
func (r *gormIntegrityRepositories) Writer() integrity.RecordWriter {
	return NewGormRecordWriter(r.tx, r.clock)
}

// AuditTrail returns the audit trail repository scoped to the current transaction.
func (r *gormIntegrityRepositories) AuditTrail() integrity.AuditTrailRepository {
	return NewGormAuditTrailRepository(r.tx)
}

// Ensure GormIntegrityTransactionScope implements TransactionScope
var _ appintegrity.TransactionScope = (*GormIntegrityTransactionScope)(nil)

// Ensure gormIntegrityRepositories implements TransactionalRepositories
var _ appintegrity.TransactionalRepositories = (*gormIntegrityRepositories)(nil)
