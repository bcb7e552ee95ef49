package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditTrailModel is the persistence model for an append-only audit entry.
// Before and After hold the full snapshot of every record the fix touched.
type AuditTrailModel struct {
	BaseModel
	ModelType    string                  `gorm:"type:varchar(30);not null;index:idx_audit_model,priority:1"`
	ModelID      uuid.UUID               `gorm:"type:uuid;not null;index:idx_audit_model,priority:2"`
	Action       string                  `gorm:"type:varchar(20);not null"`
	FindingKind  string                  `gorm:"type:varchar(50);not null"`
	RollbackOfID *uuid.UUID              `gorm:"type:uuid;index"`
	Before       datatypes.JSON          `gorm:"not null"`
	After        datatypes.JSON          `gorm:"not null"`
	ActorID      *uuid.UUID              `gorm:"type:uuid"`
	CreatedAt    time.Time               `gorm:"not null;index"`
	Records      []AuditTrailRecordModel `gorm:"foreignKey:EntryID;references:ID"`
}

// TableName returns the table name for GORM
func (AuditTrailModel) TableName() string {
	return "integrity_audit_trail"
}

// AuditTrailRecordModel indexes one record an audit entry touched.
type AuditTrailRecordModel struct {
	EntryID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ModelType string    `gorm:"type:varchar(30);primaryKey;index:idx_audit_record_model,priority:1"`
	ModelID   uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_audit_record_model,priority:2"`
}

// TableName returns the table name for GORM
func (AuditTrailRecordModel) TableName() string {
	return "integrity_audit_trail_records"
}

// ToDomain converts the persistence model to a domain AuditTrailEntry.
func (m *AuditTrailModel) ToDomain() (*integrity.AuditTrailEntry, error) {
	var before, after integrity.Snapshot
	if err := json.Unmarshal(m.Before, &before); err != nil {
		return nil, fmt.Errorf("decode audit entry %s before state: %w", m.ID, err)
	}
	if err := json.Unmarshal(m.After, &after); err != nil {
		return nil, fmt.Errorf("decode audit entry %s after state: %w", m.ID, err)
	}
	return &integrity.AuditTrailEntry{
		ID:           m.ID,
		ModelType:    integrity.EntityType(m.ModelType),
		ModelID:      m.ModelID,
		Action:       integrity.AuditAction(m.Action),
		FindingKind:  integrity.Kind(m.FindingKind),
		RollbackOfID: m.RollbackOfID,
		Before:       before,
		After:        after,
		ActorID:      m.ActorID,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// AuditTrailModelFromDomain creates a persistence model from a domain AuditTrailEntry.
func AuditTrailModelFromDomain(e *integrity.AuditTrailEntry) (*AuditTrailModel, error) {
	before, err := json.Marshal(e.Before)
	if err != nil {
		return nil, fmt.Errorf("encode before state: %w", err)
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return nil, fmt.Errorf("encode after state: %w", err)
	}
	touched := e.TouchedRecords()
	records := make([]AuditTrailRecordModel, len(touched))
	for i, ref := range touched {
		records[i] = AuditTrailRecordModel{EntryID: e.ID, ModelType: string(ref.Type), ModelID: ref.ID}
	}
	return &AuditTrailModel{
		BaseModel:    BaseModel{ID: e.ID},
		ModelType:    string(e.ModelType),
		ModelID:      e.ModelID,
		Action:       string(e.Action),
		FindingKind:  string(e.FindingKind),
		RollbackOfID: e.RollbackOfID,
		Before:       datatypes.JSON(before),
		After:        datatypes.JSON(after),
		ActorID:      e.ActorID,
		CreatedAt:    e.CreatedAt,
		Records:      records,
	}, nil
}

// IntegrityModels lists every model the reconciliation engine reads or writes.
func IntegrityModels() []any {
	return []any{
		&ItemModel{},
		&ItemUnitModel{},
		&PurchaseBatchModel{},
		&PurchaseLineModel{},
		&StockLedgerEntryModel{},
		&MutationRecordModel{},
		&MutationItemModel{},
		&StockSummaryModel{},
		&AuditTrailModel{},
		&AuditTrailRecordModel{},
	}
}
