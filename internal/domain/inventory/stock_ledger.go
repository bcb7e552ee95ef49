package inventory

import (
	"time"

	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType names the kind of record a ledger entry was derived from.
type SourceType string

const (
	SourceTypePurchase SourceType = "purchase"
	SourceTypeMutation SourceType = "mutation"
)

// IsValid reports whether t is a known source type.
func (t SourceType) IsValid() bool {
	return t == SourceTypePurchase || t == SourceTypeMutation
}

// ErrNegativeAvailable is returned when a ledger entry would hold less than zero.
var ErrNegativeAvailable = shared.NewDomainError("NEGATIVE_AVAILABLE", "Available quantity cannot be negative")

// StockLedgerEntry is a derived stock record in the item's smallest unit.
// SourceType/SourceID form a weak reference: they are resolved by lookup and
// never enforced by a schema foreign key.
type StockLedgerEntry struct {
	ID            uuid.UUID
	FarmID        uuid.UUID
	ContextID     uuid.UUID
	ItemID        uuid.UUID
	SourceType    SourceType
	SourceID      *uuid.UUID
	AmountIn      decimal.Decimal
	AmountUsed    decimal.Decimal
	AmountMutated decimal.Decimal
	Available     decimal.Decimal
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasSourceReference reports whether both halves of the source reference are set.
func (e *StockLedgerEntry) HasSourceReference() bool {
	return e.SourceType != "" && e.SourceID != nil && *e.SourceID != uuid.Nil
}

// ExpectedAvailable returns amount_in - amount_used - amount_mutated.
func (e *StockLedgerEntry) ExpectedAvailable() decimal.Decimal {
	return e.AmountIn.Sub(e.AmountUsed).Sub(e.AmountMutated)
}

// Recalculate sets Available from the three amounts and rejects a negative result.
// The entry is left recalculated either way so callers can report the value.
func (e *StockLedgerEntry) Recalculate() error {
	e.Available = e.ExpectedAvailable()
	if e.Available.IsNegative() {
		return ErrNegativeAvailable
	}
	return nil
}

// GroupKey returns the stock summary group the entry contributes to.
func (e *StockLedgerEntry) GroupKey() StockGroupKey {
	return StockGroupKey{FarmID: e.FarmID, ContextID: e.ContextID, ItemID: e.ItemID}
}
