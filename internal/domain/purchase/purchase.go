package purchase

import (
	"time"

	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseBatch groups purchase lines under one invoice, date and supplier.
// The stock it brings in belongs to LivestockID when set, else to FarmID.
type PurchaseBatch struct {
	ID             uuid.UUID
	InvoiceNumber  string
	Date           time.Time
	CounterpartyID uuid.UUID
	FarmID         uuid.UUID
	LivestockID    *uuid.UUID
	DeletedAt      *time.Time
	Lines          []PurchaseLine
}

// ContextID returns the owning context of the stock this batch brings in.
func (b *PurchaseBatch) ContextID() uuid.UUID {
	if b.LivestockID != nil && *b.LivestockID != uuid.Nil {
		return *b.LivestockID
	}
	return b.FarmID
}

// IsDeleted reports whether the batch is soft-deleted
func (b *PurchaseBatch) IsDeleted() bool {
	return b.DeletedAt != nil
}

// PurchaseLine is one bought item within a batch. ConversionRatio is the
// ratio of UnitOriginal that was in effect when the purchase was recorded.
type PurchaseLine struct {
	ID               uuid.UUID
	BatchID          uuid.UUID
	ItemID           uuid.UUID
	QuantityOriginal decimal.Decimal
	UnitOriginal     string
	ConversionRatio  decimal.Decimal
	PricePerUnit     decimal.Decimal
	DeletedAt        *time.Time
	Version          int
}

// NewPurchaseLine creates a line for batchID.
func NewPurchaseLine(batchID, itemID uuid.UUID, quantity decimal.Decimal, unit string, ratio, price decimal.Decimal) (*PurchaseLine, error) {
	if batchID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BATCH", "Batch ID cannot be empty")
	}
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item ID cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	return &PurchaseLine{
		ID:               uuid.New(),
		BatchID:          batchID,
		ItemID:           itemID,
		QuantityOriginal: quantity,
		UnitOriginal:     unit,
		ConversionRatio:  ratio,
		PricePerUnit:     price,
		Version:          1,
	}, nil
}

// IsDeleted reports whether the line is soft-deleted
func (l *PurchaseLine) IsDeleted() bool {
	return l.DeletedAt != nil
}
