package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/integrity"
)

// TransactionScope runs fixes and rollbacks atomically.
// If fn returns an error every write made through repos is rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the stores inside one transaction.
//
//   - Reader: re-reads subject rows, locking them for update where the
//     database supports it.
//   - Writer: version-guarded writes of corrected records.
//   - AuditTrail: append-only audit log, written in the same transaction as
//     the correction it records.
type TransactionalRepositories interface {
	Reader() integrity.RecordReader
	Writer() integrity.RecordWriter
	AuditTrail() integrity.AuditTrailRepository
}
