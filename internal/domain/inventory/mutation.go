package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MutationRecord moves stock of one item from one owning context (a livestock
// batch or a farm) to another. SourceLedgerID is the ledger row debited; the
// credited row is the ledger entry whose source is this mutation.
type MutationRecord struct {
	ID             uuid.UUID
	FarmID         uuid.UUID
	FromContextID  uuid.UUID
	ToContextID    uuid.UUID
	SourceLedgerID *uuid.UUID
	ItemID         uuid.UUID
	Quantity       decimal.Decimal
	Weight         decimal.Decimal
	Date           time.Time
	DeletedAt      *time.Time
	Version        int
	Items          []MutationItem
}

// IsDeleted reports whether the mutation is soft-deleted
func (m *MutationRecord) IsDeleted() bool {
	return m.DeletedAt != nil
}

// TransferredQuantity is the quantity the mutation moves: the sum of its live
// items, or the header quantity when it has none.
func (m *MutationRecord) TransferredQuantity() decimal.Decimal {
	total := decimal.Zero
	live := 0
	for _, it := range m.Items {
		if it.DeletedAt != nil {
			continue
		}
		total = total.Add(it.Quantity)
		live++
	}
	if live == 0 {
		return m.Quantity
	}
	return total
}

// HasLiveItems reports whether any item is not soft-deleted.
func (m *MutationRecord) HasLiveItems() bool {
	for _, it := range m.Items {
		if it.DeletedAt == nil {
			return true
		}
	}
	return false
}

// MutationItem is one line of a mutation.
type MutationItem struct {
	ID         uuid.UUID
	MutationID uuid.UUID
	Quantity   decimal.Decimal
	Weight     decimal.Decimal
	DeletedAt  *time.Time
}

