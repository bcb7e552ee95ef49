package integrity

import (
	"strings"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
)

// Scope restricts detection to a farm, a livestock batch, a single record or,
// when empty, everything. Set filters are combined with AND.
type Scope struct {
	FarmID      *uuid.UUID `json:"farm_id,omitempty"`
	LivestockID *uuid.UUID `json:"livestock_id,omitempty"`
	RecordID    *uuid.UUID `json:"record_id,omitempty"`
}

// AllScope returns the unrestricted scope
func AllScope() Scope {
	return Scope{}
}

// FarmScope returns a scope for one farm
func FarmScope(farmID uuid.UUID) Scope {
	return Scope{FarmID: &farmID}
}

// LivestockScope returns a scope for one livestock batch
func LivestockScope(livestockID uuid.UUID) Scope {
	return Scope{LivestockID: &livestockID}
}

// RecordScope returns a scope for a single ledger, purchase line, mutation or summary
func RecordScope(recordID uuid.UUID) Scope {
	return Scope{RecordID: &recordID}
}

// IsAll reports whether no filter is set
func (s Scope) IsAll() bool {
	return s.FarmID == nil && s.LivestockID == nil && s.RecordID == nil
}

// IsSingleRecord reports whether the scope targets one record
func (s Scope) IsSingleRecord() bool {
	return s.RecordID != nil
}

// Key returns a stable string identifying the scope, used for locking.
func (s Scope) Key() string {
	if s.IsAll() {
		return "all"
	}
	parts := make([]string, 0, 3)
	if s.FarmID != nil {
		parts = append(parts, "farm:"+s.FarmID.String())
	}
	if s.LivestockID != nil {
		parts = append(parts, "livestock:"+s.LivestockID.String())
	}
	if s.RecordID != nil {
		parts = append(parts, "record:"+s.RecordID.String())
	}
	return strings.Join(parts, "/")
}

// CoversLedger reports whether a ledger entry belongs to the scope.
func (s Scope) CoversLedger(e *inventory.StockLedgerEntry) bool {
	if s.FarmID != nil && e.FarmID != *s.FarmID {
		return false
	}
	if s.LivestockID != nil && e.ContextID != *s.LivestockID {
		return false
	}
	if s.RecordID != nil && e.ID != *s.RecordID && (e.SourceID == nil || *e.SourceID != *s.RecordID) {
		return false
	}
	return true
}

// CoversPurchaseLine reports whether a purchase line belongs to the scope.
func (s Scope) CoversPurchaseLine(l *purchase.PurchaseLine, b *purchase.PurchaseBatch) bool {
	if b == nil {
		if s.FarmID != nil || s.LivestockID != nil {
			return false
		}
		return s.RecordID == nil || l.ID == *s.RecordID
	}
	if s.FarmID != nil && b.FarmID != *s.FarmID {
		return false
	}
	if s.LivestockID != nil && (b.LivestockID == nil || *b.LivestockID != *s.LivestockID) {
		return false
	}
	if s.RecordID != nil && l.ID != *s.RecordID {
		return false
	}
	return true
}

// CoversMutation reports whether a mutation belongs to the scope.
func (s Scope) CoversMutation(m *inventory.MutationRecord) bool {
	if s.FarmID != nil && m.FarmID != *s.FarmID {
		return false
	}
	if s.LivestockID != nil && m.FromContextID != *s.LivestockID && m.ToContextID != *s.LivestockID {
		return false
	}
	if s.RecordID != nil && m.ID != *s.RecordID {
		return false
	}
	return true
}

// CoversSummary reports whether a stock summary belongs to the scope.
func (s Scope) CoversSummary(sum *inventory.StockSummary) bool {
	if s.FarmID != nil && sum.FarmID != *s.FarmID {
		return false
	}
	if s.LivestockID != nil && sum.ContextID != *s.LivestockID {
		return false
	}
	if s.RecordID != nil && sum.ID != *s.RecordID {
		return false
	}
	return true
}
