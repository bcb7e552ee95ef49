package integrity

import (
	"context"
	"sort"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
)

// GraphData is the raw material of a Graph: the in-scope records and every
// record they reference, including soft-deleted ones.
type GraphData struct {
	Items     []catalog.Item
	Batches   []purchase.PurchaseBatch
	Lines     []purchase.PurchaseLine
	Ledgers   []inventory.StockLedgerEntry
	Mutations []inventory.MutationRecord
	Summaries []inventory.StockSummary
}

type sourceKey struct {
	Type inventory.SourceType
	ID   uuid.UUID
}

// Graph is an immutable, indexed snapshot of the records of a scope. Rules
// evaluate it and the preview computes corrections against it; it implements
// RecordReader without touching the store.
type Graph struct {
	scope Scope

	items     map[uuid.UUID]catalog.Item
	batches   map[uuid.UUID]purchase.PurchaseBatch
	lines     map[uuid.UUID]purchase.PurchaseLine
	ledgers   map[uuid.UUID]inventory.StockLedgerEntry
	mutations map[uuid.UUID]inventory.MutationRecord
	summaries map[uuid.UUID]inventory.StockSummary

	ledgerOrder   []uuid.UUID
	lineOrder     []uuid.UUID
	mutationOrder []uuid.UUID
	summaryOrder  []uuid.UUID

	ledgersBySource   map[sourceKey][]uuid.UUID
	ledgersByGroup    map[inventory.StockGroupKey][]uuid.UUID
	mutationsByLedger map[uuid.UUID][]uuid.UUID
}

// NewGraph indexes data for scope. Duplicate records keep the last copy.
func NewGraph(scope Scope, data GraphData) *Graph {
	g := &Graph{
		scope:             scope,
		items:             make(map[uuid.UUID]catalog.Item, len(data.Items)),
		batches:           make(map[uuid.UUID]purchase.PurchaseBatch, len(data.Batches)),
		lines:             make(map[uuid.UUID]purchase.PurchaseLine, len(data.Lines)),
		ledgers:           make(map[uuid.UUID]inventory.StockLedgerEntry, len(data.Ledgers)),
		mutations:         make(map[uuid.UUID]inventory.MutationRecord, len(data.Mutations)),
		summaries:         make(map[uuid.UUID]inventory.StockSummary, len(data.Summaries)),
		ledgersBySource:   make(map[sourceKey][]uuid.UUID),
		ledgersByGroup:    make(map[inventory.StockGroupKey][]uuid.UUID),
		mutationsByLedger: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, it := range data.Items {
		g.items[it.ID] = it
	}
	for _, b := range data.Batches {
		g.batches[b.ID] = b
	}
	for _, l := range data.Lines {
		g.lines[l.ID] = l
	}
	for _, e := range data.Ledgers {
		g.ledgers[e.ID] = e
	}
	for _, m := range data.Mutations {
		g.mutations[m.ID] = m
	}
	for _, s := range data.Summaries {
		g.summaries[s.ID] = s
	}

	g.ledgerOrder = sortedKeys(g.ledgers, func(a, b inventory.StockLedgerEntry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	g.lineOrder = sortedKeys(g.lines, func(a, b purchase.PurchaseLine) bool { return a.ID.String() < b.ID.String() })
	g.mutationOrder = sortedKeys(g.mutations, func(a, b inventory.MutationRecord) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID.String() < b.ID.String()
	})
	g.summaryOrder = sortedKeys(g.summaries, func(a, b inventory.StockSummary) bool { return a.ID.String() < b.ID.String() })

	for _, id := range g.ledgerOrder {
		e := g.ledgers[id]
		if e.SourceID != nil {
			key := sourceKey{Type: e.SourceType, ID: *e.SourceID}
			g.ledgersBySource[key] = append(g.ledgersBySource[key], id)
		}
		g.ledgersByGroup[e.GroupKey()] = append(g.ledgersByGroup[e.GroupKey()], id)
	}
	for _, id := range g.mutationOrder {
		m := g.mutations[id]
		if m.SourceLedgerID != nil && !m.IsDeleted() {
			g.mutationsByLedger[*m.SourceLedgerID] = append(g.mutationsByLedger[*m.SourceLedgerID], id)
		}
	}
	return g
}

func sortedKeys[T any](m map[uuid.UUID]T, less func(a, b T) bool) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(m[keys[i]], m[keys[j]]) })
	return keys
}

// Scope returns the scope the graph was loaded for
func (g *Graph) Scope() Scope {
	return g.scope
}

// ScopedLedgers returns the in-scope ledger entries in creation order.
func (g *Graph) ScopedLedgers() []inventory.StockLedgerEntry {
	out := make([]inventory.StockLedgerEntry, 0, len(g.ledgerOrder))
	for _, id := range g.ledgerOrder {
		e := g.ledgers[id]
		if g.scope.CoversLedger(&e) {
			out = append(out, copyLedger(e))
		}
	}
	return out
}

// ScopedPurchaseLines returns the in-scope purchase lines, deleted ones included.
func (g *Graph) ScopedPurchaseLines() []purchase.PurchaseLine {
	out := make([]purchase.PurchaseLine, 0, len(g.lineOrder))
	for _, id := range g.lineOrder {
		l := g.lines[id]
		var batch *purchase.PurchaseBatch
		if b, ok := g.batches[l.BatchID]; ok {
			batch = &b
		}
		if g.scope.CoversPurchaseLine(&l, batch) {
			out = append(out, l)
		}
	}
	return out
}

// ScopedMutations returns the in-scope mutations, deleted ones included.
func (g *Graph) ScopedMutations() []inventory.MutationRecord {
	out := make([]inventory.MutationRecord, 0, len(g.mutationOrder))
	for _, id := range g.mutationOrder {
		m := g.mutations[id]
		if g.scope.CoversMutation(&m) {
			out = append(out, copyMutation(m))
		}
	}
	return out
}

// ScopedSummaries returns the in-scope stock summaries.
func (g *Graph) ScopedSummaries() []inventory.StockSummary {
	out := make([]inventory.StockSummary, 0, len(g.summaryOrder))
	for _, id := range g.summaryOrder {
		s := g.summaries[id]
		if g.scope.CoversSummary(&s) {
			out = append(out, s)
		}
	}
	return out
}

// Item implements RecordReader
func (g *Graph) Item(_ context.Context, id uuid.UUID) (*catalog.Item, error) {
	it, ok := g.items[id]
	if !ok {
		return nil, nil
	}
	it.Units = append([]catalog.ItemUnit(nil), it.Units...)
	return &it, nil
}

// PurchaseLine implements RecordReader
func (g *Graph) PurchaseLine(_ context.Context, id uuid.UUID) (*purchase.PurchaseLine, error) {
	l, ok := g.lines[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// PurchaseBatch implements RecordReader
func (g *Graph) PurchaseBatch(_ context.Context, id uuid.UUID) (*purchase.PurchaseBatch, error) {
	b, ok := g.batches[id]
	if !ok {
		return nil, nil
	}
	b.Lines = nil
	return &b, nil
}

// Mutation implements RecordReader
func (g *Graph) Mutation(_ context.Context, id uuid.UUID) (*inventory.MutationRecord, error) {
	m, ok := g.mutations[id]
	if !ok {
		return nil, nil
	}
	c := copyMutation(m)
	return &c, nil
}

// MutationsDrawingFrom implements RecordReader
func (g *Graph) MutationsDrawingFrom(_ context.Context, ledgerID uuid.UUID) ([]inventory.MutationRecord, error) {
	ids := g.mutationsByLedger[ledgerID]
	out := make([]inventory.MutationRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMutation(g.mutations[id]))
	}
	return out, nil
}

// Ledger implements RecordReader
func (g *Graph) Ledger(_ context.Context, id uuid.UUID) (*inventory.StockLedgerEntry, error) {
	e, ok := g.ledgers[id]
	if !ok {
		return nil, nil
	}
	c := copyLedger(e)
	return &c, nil
}

// LedgersBySource implements RecordReader
func (g *Graph) LedgersBySource(_ context.Context, sourceType inventory.SourceType, sourceID uuid.UUID) ([]inventory.StockLedgerEntry, error) {
	ids := g.ledgersBySource[sourceKey{Type: sourceType, ID: sourceID}]
	out := make([]inventory.StockLedgerEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyLedger(g.ledgers[id]))
	}
	return out, nil
}

// LedgersInGroup implements RecordReader
func (g *Graph) LedgersInGroup(_ context.Context, key inventory.StockGroupKey) ([]inventory.StockLedgerEntry, error) {
	ids := g.ledgersByGroup[key]
	out := make([]inventory.StockLedgerEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyLedger(g.ledgers[id]))
	}
	return out, nil
}

// SourcesCrediting implements RecordReader
func (g *Graph) SourcesCrediting(_ context.Context, key inventory.StockGroupKey) ([]EntityRef, error) {
	var out []EntityRef
	for _, id := range g.lineOrder {
		l := g.lines[id]
		b, ok := g.batches[l.BatchID]
		if !ok || l.ItemID != key.ItemID || b.FarmID != key.FarmID || b.ContextID() != key.ContextID {
			continue
		}
		out = append(out, EntityRef{Type: EntityPurchaseLine, ID: id})
	}
	for _, id := range g.mutationOrder {
		m := g.mutations[id]
		if m.ItemID != key.ItemID || m.FarmID != key.FarmID || m.ToContextID != key.ContextID {
			continue
		}
		out = append(out, EntityRef{Type: EntityMutation, ID: id})
	}
	return out, nil
}

// Summary implements RecordReader
func (g *Graph) Summary(_ context.Context, id uuid.UUID) (*inventory.StockSummary, error) {
	s, ok := g.summaries[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func copyLedger(e inventory.StockLedgerEntry) inventory.StockLedgerEntry {
	if e.SourceID != nil {
		id := *e.SourceID
		e.SourceID = &id
	}
	return e
}

func copyMutation(m inventory.MutationRecord) inventory.MutationRecord {
	m.Items = append([]inventory.MutationItem(nil), m.Items...)
	if m.SourceLedgerID != nil {
		id := *m.SourceLedgerID
		m.SourceLedgerID = &id
	}
	return m
}

var _ RecordReader = (*Graph)(nil)
