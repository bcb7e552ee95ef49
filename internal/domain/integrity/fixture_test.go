package integrity

import (
	"testing"
	"time"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixture builds graph data for one farm and one livestock batch.
type fixture struct {
	t         *testing.T
	farmID    uuid.UUID
	contextID uuid.UUID
	item      catalog.Item
	data      GraphData
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	item, err := catalog.NewItem("Starter feed", "kg", 4)
	require.NoError(t, err)
	require.NoError(t, item.AddUnit("sack", dec("50")))

	f := &fixture{
		t:         t,
		farmID:    uuid.New(),
		contextID: uuid.New(),
		item:      *item,
		clock:     time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.data.Items = append(f.data.Items, *item)
	return f
}

func (f *fixture) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fixture) purchaseLine(qty, unit, ratio string) purchase.PurchaseLine {
	livestockID := f.contextID
	batch := purchase.PurchaseBatch{
		ID:             uuid.New(),
		InvoiceNumber:  "INV-" + uuid.NewString()[:8],
		Date:           f.tick(),
		CounterpartyID: uuid.New(),
		FarmID:         f.farmID,
		LivestockID:    &livestockID,
	}
	line, err := purchase.NewPurchaseLine(batch.ID, f.item.ID, dec(qty), unit, dec(ratio), dec("1000"))
	require.NoError(f.t, err)
	f.data.Batches = append(f.data.Batches, batch)
	f.data.Lines = append(f.data.Lines, *line)
	return *line
}

func (f *fixture) ledger(st inventory.SourceType, sourceID *uuid.UUID, in, used, mutated string) inventory.StockLedgerEntry {
	now := f.tick()
	e := inventory.StockLedgerEntry{
		ID:            uuid.New(),
		FarmID:        f.farmID,
		ContextID:     f.contextID,
		ItemID:        f.item.ID,
		SourceType:    st,
		SourceID:      sourceID,
		AmountIn:      dec(in),
		AmountUsed:    dec(used),
		AmountMutated: dec(mutated),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.Available = e.ExpectedAvailable()
	f.data.Ledgers = append(f.data.Ledgers, e)
	return e
}

func (f *fixture) purchaseLedger(line purchase.PurchaseLine, in string) inventory.StockLedgerEntry {
	id := line.ID
	return f.ledger(inventory.SourceTypePurchase, &id, in, "0", "0")
}

func (f *fixture) mutation(sourceLedgerID uuid.UUID, qty string, items ...string) inventory.MutationRecord {
	src := sourceLedgerID
	m := inventory.MutationRecord{
		ID:             uuid.New(),
		FarmID:         f.farmID,
		FromContextID:  f.contextID,
		ToContextID:    uuid.New(),
		SourceLedgerID: &src,
		ItemID:         f.item.ID,
		Quantity:       dec(qty),
		Date:           f.tick(),
		Version:        1,
	}
	for _, q := range items {
		m.Items = append(m.Items, inventory.MutationItem{ID: uuid.New(), MutationID: m.ID, Quantity: dec(q)})
	}
	f.data.Mutations = append(f.data.Mutations, m)
	return m
}

func (f *fixture) mutationLedger(m inventory.MutationRecord, in string) inventory.StockLedgerEntry {
	id := m.ID
	e := f.ledger(inventory.SourceTypeMutation, &id, in, "0", "0")
	// The credited row belongs to the destination context.
	last := &f.data.Ledgers[len(f.data.Ledgers)-1]
	last.ContextID = m.ToContextID
	e.ContextID = m.ToContextID
	return e
}

func (f *fixture) softDeleteLine(id uuid.UUID) {
	now := f.tick()
	for i := range f.data.Lines {
		if f.data.Lines[i].ID == id {
			f.data.Lines[i].DeletedAt = &now
		}
	}
}

func (f *fixture) graph() *Graph {
	return NewGraph(FarmScope(f.farmID), f.data)
}

func onlyKind(t *testing.T, findings []Finding, kind Kind) Finding {
	t.Helper()
	matched := FilterByKind(findings, kind)
	require.Len(t, matched, 1, "expected exactly one %s finding, got %+v", kind, findings)
	return matched[0]
}

// syncSummaries adds a correct stock summary for every ledger group.
func (f *fixture) syncSummaries() {
	totals := map[inventory.StockGroupKey]decimal.Decimal{}
	var order []inventory.StockGroupKey
	for _, e := range f.data.Ledgers {
		k := e.GroupKey()
		if _, ok := totals[k]; !ok {
			order = append(order, k)
			totals[k] = decimal.Zero
		}
		totals[k] = totals[k].Add(e.Available)
	}
	f.data.Summaries = nil
	for _, k := range order {
		f.data.Summaries = append(f.data.Summaries, inventory.StockSummary{
			ID:        k.SummaryID(),
			FarmID:    k.FarmID,
			ContextID: k.ContextID,
			ItemID:    k.ItemID,
			Quantity:  totals[k],
			Version:   1,
		})
	}
}
