package models

import (
	"time"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLedgerEntryModel is the persistence model for a stock ledger entry.
// source_type/source_id carry no foreign key: the source may live in either
// purchase_lines or mutation_records.
type StockLedgerEntryModel struct {
	VersionedModel
	FarmID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_group,priority:1"`
	ContextID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_group,priority:2"`
	ItemID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_group,priority:3"`
	SourceType    string          `gorm:"type:varchar(20);not null;default:'';index:idx_ledger_source,priority:1"`
	SourceID      *uuid.UUID      `gorm:"type:uuid;index:idx_ledger_source,priority:2"`
	AmountIn      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AmountUsed    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AmountMutated decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Available     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLedgerEntryModel) TableName() string {
	return "stock_ledger_entries"
}

// ToDomain converts the persistence model to a domain StockLedgerEntry.
func (m *StockLedgerEntryModel) ToDomain() *inventory.StockLedgerEntry {
	return &inventory.StockLedgerEntry{
		ID:            m.ID,
		FarmID:        m.FarmID,
		ContextID:     m.ContextID,
		ItemID:        m.ItemID,
		SourceType:    inventory.SourceType(m.SourceType),
		SourceID:      m.SourceID,
		AmountIn:      m.AmountIn,
		AmountUsed:    m.AmountUsed,
		AmountMutated: m.AmountMutated,
		Available:     m.Available,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StockLedgerEntryModelFromDomain creates a persistence model from a domain StockLedgerEntry.
func StockLedgerEntryModelFromDomain(e *inventory.StockLedgerEntry) *StockLedgerEntryModel {
	return &StockLedgerEntryModel{
		VersionedModel: VersionedModel{BaseModel: BaseModel{ID: e.ID}, Version: e.Version},
		FarmID:         e.FarmID,
		ContextID:      e.ContextID,
		ItemID:         e.ItemID,
		SourceType:     string(e.SourceType),
		SourceID:       e.SourceID,
		AmountIn:       e.AmountIn,
		AmountUsed:     e.AmountUsed,
		AmountMutated:  e.AmountMutated,
		Available:      e.Available,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// MutationRecordModel is the persistence model for a stock transfer between contexts.
type MutationRecordModel struct {
	VersionedModel
	FarmID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	FromContextID  uuid.UUID           `gorm:"type:uuid;not null"`
	ToContextID    uuid.UUID           `gorm:"type:uuid;not null"`
	SourceLedgerID *uuid.UUID          `gorm:"type:uuid;index"`
	ItemID         uuid.UUID           `gorm:"type:uuid;not null"`
	Quantity       decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	Weight         decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	Date           time.Time           `gorm:"not null"`
	DeletedAt      *time.Time          `gorm:"index"`
	UpdatedAt      time.Time
	Items          []MutationItemModel `gorm:"foreignKey:MutationID;references:ID"`
}

// TableName returns the table name for GORM
func (MutationRecordModel) TableName() string {
	return "mutation_records"
}

// ToDomain converts the persistence model to a domain MutationRecord.
func (m *MutationRecordModel) ToDomain() *inventory.MutationRecord {
	rec := &inventory.MutationRecord{
		ID:             m.ID,
		FarmID:         m.FarmID,
		FromContextID:  m.FromContextID,
		ToContextID:    m.ToContextID,
		SourceLedgerID: m.SourceLedgerID,
		ItemID:         m.ItemID,
		Quantity:       m.Quantity,
		Weight:         m.Weight,
		Date:           m.Date,
		DeletedAt:      m.DeletedAt,
		Version:        m.Version,
		Items:          make([]inventory.MutationItem, len(m.Items)),
	}
	for i, item := range m.Items {
		rec.Items[i] = item.ToDomain()
	}
	return rec
}

// MutationRecordModelFromDomain creates a persistence model from a domain
// MutationRecord, including its item rows.
func MutationRecordModelFromDomain(r *inventory.MutationRecord) *MutationRecordModel {
	m := &MutationRecordModel{
		VersionedModel: VersionedModel{BaseModel: BaseModel{ID: r.ID}, Version: r.Version},
		FarmID:         r.FarmID,
		FromContextID:  r.FromContextID,
		ToContextID:    r.ToContextID,
		SourceLedgerID: r.SourceLedgerID,
		ItemID:         r.ItemID,
		Quantity:       r.Quantity,
		Weight:         r.Weight,
		Date:           r.Date,
		DeletedAt:      r.DeletedAt,
		Items:          make([]MutationItemModel, len(r.Items)),
	}
	for i, item := range r.Items {
		m.Items[i] = MutationItemModel{
			BaseModel:  BaseModel{ID: item.ID},
			MutationID: item.MutationID,
			Quantity:   item.Quantity,
			Weight:     item.Weight,
			DeletedAt:  item.DeletedAt,
		}
	}
	return m
}

// MutationItemModel is the persistence model for one line of a mutation.
type MutationItemModel struct {
	BaseModel
	MutationID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Weight     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DeletedAt  *time.Time      `gorm:"index"`
}

// TableName returns the table name for GORM
func (MutationItemModel) TableName() string {
	return "mutation_items"
}

// ToDomain converts the persistence model to a domain MutationItem.
func (m MutationItemModel) ToDomain() inventory.MutationItem {
	return inventory.MutationItem{
		ID:         m.ID,
		MutationID: m.MutationID,
		Quantity:   m.Quantity,
		Weight:     m.Weight,
		DeletedAt:  m.DeletedAt,
	}
}

// StockSummaryModel is the persistence model for the per-group stock total.
type StockSummaryModel struct {
	VersionedModel
	FarmID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_summary_group,priority:1"`
	ContextID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_summary_group,priority:2"`
	ItemID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_summary_group,priority:3"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockSummaryModel) TableName() string {
	return "stock_summaries"
}

// ToDomain converts the persistence model to a domain StockSummary.
func (m *StockSummaryModel) ToDomain() *inventory.StockSummary {
	return &inventory.StockSummary{
		ID:        m.ID,
		FarmID:    m.FarmID,
		ContextID: m.ContextID,
		ItemID:    m.ItemID,
		Quantity:  m.Quantity,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}

// StockSummaryModelFromDomain creates a persistence model from a domain StockSummary.
func StockSummaryModelFromDomain(s *inventory.StockSummary) *StockSummaryModel {
	return &StockSummaryModel{
		VersionedModel: VersionedModel{BaseModel: BaseModel{ID: s.ID}, Version: s.Version},
		FarmID:         s.FarmID,
		ContextID:      s.ContextID,
		ItemID:         s.ItemID,
		Quantity:       s.Quantity,
		UpdatedAt:      s.UpdatedAt,
	}
}
