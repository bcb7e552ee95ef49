package integrity

import (
	"fmt"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
)

// EntityType names the record types the engine reads and corrects.
type EntityType string

const (
	EntityStockLedger  EntityType = "stock_ledger"
	EntityPurchaseLine EntityType = "purchase_line"
	EntityMutation     EntityType = "mutation"
	EntityStockSummary EntityType = "stock_summary"
)

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityStockLedger, EntityPurchaseLine, EntityMutation, EntityStockSummary:
		return true
	}
	return false
}

// EntityTypeForSource maps a ledger source type to the entity it points to.
func EntityTypeForSource(st inventory.SourceType) (EntityType, bool) {
	switch st {
	case inventory.SourceTypePurchase:
		return EntityPurchaseLine, true
	case inventory.SourceTypeMutation:
		return EntityMutation, true
	}
	return "", false
}

// SourceTypeForEntity is the inverse of EntityTypeForSource.
func SourceTypeForEntity(t EntityType) (inventory.SourceType, bool) {
	switch t {
	case EntityPurchaseLine:
		return inventory.SourceTypePurchase, true
	case EntityMutation:
		return inventory.SourceTypeMutation, true
	}
	return "", false
}

// EntityRef is a weak (type, id) reference.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

// String returns "type:id"
func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// Liveness is the result of resolving a weak reference.
type Liveness string

const (
	LivenessLive    Liveness = "live"
	LivenessDeleted Liveness = "deleted"
	LivenessMissing Liveness = "missing"
)
