package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
)

// MissingDownstreamRule flags live purchase lines and mutations that have no
// ledger entry.
type MissingDownstreamRule struct{}

// NewMissingDownstreamRule creates the rule
func NewMissingDownstreamRule() *MissingDownstreamRule {
	return &MissingDownstreamRule{}
}

// Name implements Rule
func (r *MissingDownstreamRule) Name() string {
	return string(KindMissingDownstreamRecord)
}

// Evaluate implements Rule
func (r *MissingDownstreamRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, l := range g.ScopedPurchaseLines() {
		f, ok, err := missingDownstream(ctx, g, inventory.SourceTypePurchase, l.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			findings = append(findings, f)
		}
	}
	for _, m := range g.ScopedMutations() {
		f, ok, err := missingDownstream(ctx, g, inventory.SourceTypeMutation, m.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func missingDownstream(ctx context.Context, r RecordReader, st inventory.SourceType, id uuid.UUID) (Finding, bool, error) {
	src, err := ResolveSource(ctx, r, st, id)
	if err != nil || !src.IsLive() {
		return Finding{}, false, err
	}
	existing, err := r.LedgersBySource(ctx, st, id)
	if err != nil || len(existing) > 0 {
		return Finding{}, false, err
	}

	reason := reasonf("%s has no stock ledger entry", src.Ref)
	expected, err := ExpectedSourceAmount(ctx, r, src)
	if err != nil {
		if KindOf(err) != ErrKindConversion {
			return Finding{}, false, err
		}
		f := NewFinding(KindMissingDownstreamRecord, src.Ref, false, reason, MessageOf(err)).
			With(DataSourceType, string(st))
		return f, true, nil
	}
	f := NewFinding(KindMissingDownstreamRecord, src.Ref, true, reason).
		With(DataSourceType, string(st)).
		With(DataExpectedAmountIn, expected.String()).
		With(DataFarmID, src.FarmID().String()).
		With(DataContextID, src.ContextID().String()).
		With(DataItemID, src.ItemID().String())
	return f, true, nil
}

// StockSummaryRule flags cached stock summaries that differ from the sum of
// available over their group's ledger entries, and groups with no summary.
// Single-record scopes skip it since they never load a whole group.
type StockSummaryRule struct{}

// NewStockSummaryRule creates the rule
func NewStockSummaryRule() *StockSummaryRule {
	return &StockSummaryRule{}
}

// Name implements Rule
func (r *StockSummaryRule) Name() string {
	return string(KindStockSummaryMismatch)
}

// Evaluate implements Rule
func (r *StockSummaryRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	if g.Scope().IsSingleRecord() {
		return nil, nil
	}

	var keys []inventory.StockGroupKey
	seen := map[inventory.StockGroupKey]bool{}
	for _, e := range g.ScopedLedgers() {
		k := e.GroupKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	summaries := map[inventory.StockGroupKey]inventory.StockSummary{}
	for _, s := range g.ScopedSummaries() {
		k := s.GroupKey()
		summaries[k] = s
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	var findings []Finding
	for _, k := range keys {
		ledgers, err := g.LedgersInGroup(ctx, k)
		if err != nil {
			return nil, err
		}
		expected := inventory.SumAvailable(ledgers)
		s, ok := summaries[k]
		if ok && s.Quantity.Equal(expected) {
			continue
		}

		id := k.SummaryID()
		current := "absent"
		reason := reasonf("stock summary for item %s in context %s is missing, ledger holds %s", k.ItemID, k.ContextID, expected)
		if ok {
			id = s.ID
			current = s.Quantity.String()
			reason = reasonf("stock summary %s holds %s, ledger holds %s", s.ID, s.Quantity, expected)
		}
		f := NewFinding(KindStockSummaryMismatch, EntityRef{Type: EntityStockSummary, ID: id}, true, reason).
			With(DataFarmID, k.FarmID.String()).
			With(DataContextID, k.ContextID.String()).
			With(DataItemID, k.ItemID.String()).
			With(DataCurrentQuantity, current).
			With(DataExpectedQuantity, expected.String())
		findings = append(findings, f)
	}
	return findings, nil
}
