package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// summaryNamespace seeds deterministic stock summary ids.
var summaryNamespace = uuid.MustParse("6f1c9a52-3d0e-4c55-9d6b-2f7e1f0a8c41")

// StockGroupKey identifies one (farm, context, item) stock position.
type StockGroupKey struct {
	FarmID    uuid.UUID
	ContextID uuid.UUID
	ItemID    uuid.UUID
}

// SummaryID returns the id a stock summary for this group is created with.
func (k StockGroupKey) SummaryID() uuid.UUID {
	name := make([]byte, 0, 48)
	name = append(name, k.FarmID[:]...)
	name = append(name, k.ContextID[:]...)
	name = append(name, k.ItemID[:]...)
	return uuid.NewSHA1(summaryNamespace, name)
}

// StockSummary is the denormalized current stock of one group. It must equal
// the sum of Available over the group's ledger entries.
type StockSummary struct {
	ID        uuid.UUID
	FarmID    uuid.UUID
	ContextID uuid.UUID
	ItemID    uuid.UUID
	Quantity  decimal.Decimal
	Version   int
	UpdatedAt time.Time
}

// GroupKey returns the group this summary caches.
func (s *StockSummary) GroupKey() StockGroupKey {
	return StockGroupKey{FarmID: s.FarmID, ContextID: s.ContextID, ItemID: s.ItemID}
}

// SumAvailable adds up Available over entries.
func SumAvailable(entries []StockLedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for i := range entries {
		total = total.Add(entries[i].Available)
	}
	return total
}
