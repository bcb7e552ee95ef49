package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
)

// GraphLoader loads the entity graph of a scope. It never writes or locks.
type GraphLoader interface {
	// Load returns the records of the scope plus everything they reference
	Load(ctx context.Context, scope Scope) (*Graph, error)
}

// RecordReader looks up individual records. A missing record returns (nil, nil);
// errors are reserved for store failures. Soft-deleted records are returned
// so callers can tell "deleted" from "missing".
//
// The Graph implements it over a loaded snapshot. Inside a fix transaction the
// persistence layer implements it with row locks.
type RecordReader interface {
	Item(ctx context.Context, id uuid.UUID) (*catalog.Item, error)
	PurchaseLine(ctx context.Context, id uuid.UUID) (*purchase.PurchaseLine, error)
	PurchaseBatch(ctx context.Context, id uuid.UUID) (*purchase.PurchaseBatch, error)
	Mutation(ctx context.Context, id uuid.UUID) (*inventory.MutationRecord, error)
	// MutationsDrawingFrom returns the live mutations debiting ledgerID
	MutationsDrawingFrom(ctx context.Context, ledgerID uuid.UUID) ([]inventory.MutationRecord, error)
	Ledger(ctx context.Context, id uuid.UUID) (*inventory.StockLedgerEntry, error)
	// LedgersBySource returns the ledger entries referencing (sourceType, sourceID)
	LedgersBySource(ctx context.Context, sourceType inventory.SourceType, sourceID uuid.UUID) ([]inventory.StockLedgerEntry, error)
	// LedgersInGroup returns every ledger entry of a stock group
	LedgersInGroup(ctx context.Context, key inventory.StockGroupKey) ([]inventory.StockLedgerEntry, error)
	// SourcesCrediting returns the purchase lines and mutations that bring
	// stock into the group, deleted ones included
	SourcesCrediting(ctx context.Context, key inventory.StockGroupKey) ([]EntityRef, error)
	Summary(ctx context.Context, id uuid.UUID) (*inventory.StockSummary, error)
}

// RecordWriter persists corrected records. Updates are guarded by the
// record's Version and fail with shared.ErrConcurrencyConflict when another
// transaction got there first.
type RecordWriter interface {
	CreateLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error
	UpdateLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error
	DeleteLedger(ctx context.Context, entry *inventory.StockLedgerEntry) error
	UpdatePurchaseLine(ctx context.Context, line *purchase.PurchaseLine) error
	UpdateMutation(ctx context.Context, mutation *inventory.MutationRecord) error
	CreateSummary(ctx context.Context, summary *inventory.StockSummary) error
	UpdateSummary(ctx context.Context, summary *inventory.StockSummary) error
	DeleteSummary(ctx context.Context, summary *inventory.StockSummary) error
}

// AuditTrailRepository stores audit entries. There is no update or delete.
type AuditTrailRepository interface {
	// Append stores a new entry
	Append(ctx context.Context, entry *AuditTrailEntry) error
	// FindByID returns shared.ErrNotFound when the entry does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*AuditTrailEntry, error)
	// ListByModel returns the entries of one record, newest first
	ListByModel(ctx context.Context, modelType EntityType, modelID uuid.UUID) ([]AuditTrailEntry, error)
}
