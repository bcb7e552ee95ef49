package models

import (
	"time"

	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseBatchModel is the persistence model for a purchase invoice header.
type PurchaseBatchModel struct {
	BaseModel
	InvoiceNumber  string     `gorm:"type:varchar(100);not null"`
	Date           time.Time  `gorm:"not null"`
	CounterpartyID uuid.UUID  `gorm:"type:uuid;not null;index"`
	FarmID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	LivestockID    *uuid.UUID `gorm:"type:uuid;index"`
	DeletedAt      *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (PurchaseBatchModel) TableName() string {
	return "purchase_batches"
}

// ToDomain converts the persistence model to a domain PurchaseBatch.
func (m *PurchaseBatchModel) ToDomain() *purchase.PurchaseBatch {
	return &purchase.PurchaseBatch{
		ID:             m.ID,
		InvoiceNumber:  m.InvoiceNumber,
		Date:           m.Date,
		CounterpartyID: m.CounterpartyID,
		FarmID:         m.FarmID,
		LivestockID:    m.LivestockID,
		DeletedAt:      m.DeletedAt,
	}
}

// PurchaseBatchModelFromDomain creates a persistence model from a domain PurchaseBatch.
func PurchaseBatchModelFromDomain(b *purchase.PurchaseBatch) *PurchaseBatchModel {
	return &PurchaseBatchModel{
		BaseModel:      BaseModel{ID: b.ID},
		InvoiceNumber:  b.InvoiceNumber,
		Date:           b.Date,
		CounterpartyID: b.CounterpartyID,
		FarmID:         b.FarmID,
		LivestockID:    b.LivestockID,
		DeletedAt:      b.DeletedAt,
	}
}

// PurchaseLineModel is the persistence model for one purchased item line.
type PurchaseLineModel struct {
	VersionedModel
	BatchID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	QuantityOriginal decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitOriginal     string          `gorm:"type:varchar(20);not null"`
	ConversionRatio  decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	PricePerUnit     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DeletedAt        *time.Time      `gorm:"index"`
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (PurchaseLineModel) TableName() string {
	return "purchase_lines"
}

// ToDomain converts the persistence model to a domain PurchaseLine.
func (m *PurchaseLineModel) ToDomain() *purchase.PurchaseLine {
	return &purchase.PurchaseLine{
		ID:               m.ID,
		BatchID:          m.BatchID,
		ItemID:           m.ItemID,
		QuantityOriginal: m.QuantityOriginal,
		UnitOriginal:     m.UnitOriginal,
		ConversionRatio:  m.ConversionRatio,
		PricePerUnit:     m.PricePerUnit,
		DeletedAt:        m.DeletedAt,
		Version:          m.Version,
	}
}

// PurchaseLineModelFromDomain creates a persistence model from a domain PurchaseLine.
func PurchaseLineModelFromDomain(l *purchase.PurchaseLine) *PurchaseLineModel {
	return &PurchaseLineModel{
		VersionedModel:   VersionedModel{BaseModel: BaseModel{ID: l.ID}, Version: l.Version},
		BatchID:          l.BatchID,
		ItemID:           l.ItemID,
		QuantityOriginal: l.QuantityOriginal,
		UnitOriginal:     l.UnitOriginal,
		ConversionRatio:  l.ConversionRatio,
		PricePerUnit:     l.PricePerUnit,
		DeletedAt:        l.DeletedAt,
	}
}
