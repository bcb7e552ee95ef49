package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// QuantityMismatchRule flags purchase-derived ledger entries whose amount_in
// differs from the line quantity converted with the line's recorded ratio.
type QuantityMismatchRule struct{}

// NewQuantityMismatchRule creates the rule
func NewQuantityMismatchRule() *QuantityMismatchRule {
	return &QuantityMismatchRule{}
}

// Name implements Rule
func (r *QuantityMismatchRule) Name() string {
	return string(KindQuantityMismatch)
}

// Evaluate implements Rule
func (r *QuantityMismatchRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, e := range g.ScopedLedgers() {
		if e.SourceType != inventory.SourceTypePurchase || !e.HasSourceReference() {
			continue
		}
		src, err := ResolveSource(ctx, g, e.SourceType, *e.SourceID)
		if err != nil {
			return nil, err
		}
		if !src.IsLive() {
			continue
		}
		expected, err := ExpectedSourceAmount(ctx, g, src)
		if err != nil {
			// An unconvertible line is reported by the conversion rule.
			if KindOf(err) == ErrKindConversion {
				continue
			}
			return nil, err
		}
		if e.AmountIn.Equal(expected) {
			continue
		}
		f := NewFinding(KindQuantityMismatch, EntityRef{Type: EntityStockLedger, ID: e.ID}, true,
			reasonf("ledger entry %s has amount_in %s, purchase line %s converts to %s",
				e.ID, e.AmountIn, src.Line.ID, expected)).
			With(DataSourceType, string(e.SourceType)).
			With(DataSourceID, src.Line.ID.String()).
			With(DataCurrentAmountIn, e.AmountIn.String()).
			With(DataExpectedAmountIn, expected.String())
		findings = append(findings, f)
	}
	return findings, nil
}

// ConversionMismatchRule flags live purchase lines whose recorded conversion
// ratio differs from the ratio configured on the item.
type ConversionMismatchRule struct{}

// NewConversionMismatchRule creates the rule
func NewConversionMismatchRule() *ConversionMismatchRule {
	return &ConversionMismatchRule{}
}

// Name implements Rule
func (r *ConversionMismatchRule) Name() string {
	return string(KindConversionMismatch)
}

// Evaluate implements Rule
func (r *ConversionMismatchRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, l := range g.ScopedPurchaseLines() {
		src, err := ResolveSource(ctx, g, inventory.SourceTypePurchase, l.ID)
		if err != nil {
			return nil, err
		}
		if !src.IsLive() {
			continue
		}
		item, err := g.Item(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		subject := EntityRef{Type: EntityPurchaseLine, ID: l.ID}

		configured, ok := ConfiguredRatio(&l, item)
		if !ok {
			f := NewFinding(KindConversionMismatch, subject, false,
				reasonf("item %s has no conversion ratio for unit %q of purchase line %s", l.ItemID, l.UnitOriginal, l.ID),
				"manual intervention required").
				With(DataUnit, l.UnitOriginal).
				With(DataItemID, l.ItemID.String()).
				With(DataRecordedRatio, l.ConversionRatio.String())
			findings = append(findings, f)
			continue
		}
		if l.ConversionRatio.Equal(configured) {
			continue
		}
		f := NewFinding(KindConversionMismatch, subject, true,
			reasonf("purchase line %s recorded ratio %s for %q, item now configures %s",
				l.ID, l.ConversionRatio, l.UnitOriginal, configured)).
			With(DataUnit, l.UnitOriginal).
			With(DataItemID, l.ItemID.String()).
			With(DataRecordedRatio, l.ConversionRatio.String()).
			With(DataConfiguredRatio, configured.String())
		findings = append(findings, f)
	}
	return findings, nil
}

// MutationQuantityMismatchRule flags mutations whose transferred quantity
// disagrees with the ledger rows they credit and debit, or with their own
// header quantity.
type MutationQuantityMismatchRule struct{}

// NewMutationQuantityMismatchRule creates the rule
func NewMutationQuantityMismatchRule() *MutationQuantityMismatchRule {
	return &MutationQuantityMismatchRule{}
}

// Name implements Rule
func (r *MutationQuantityMismatchRule) Name() string {
	return string(KindMutationQuantityMismatch)
}

// Evaluate implements Rule
func (r *MutationQuantityMismatchRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, m := range g.ScopedMutations() {
		if m.IsDeleted() {
			continue
		}
		check, err := checkMutation(ctx, g, &m)
		if err != nil {
			return nil, err
		}
		if len(check.reasons) == 0 {
			continue
		}
		f := NewFinding(KindMutationQuantityMismatch, EntityRef{Type: EntityMutation, ID: m.ID}, true, check.reasons...).
			With(DataExpectedQuantity, check.total.String()).
			With(DataCurrentQuantity, m.Quantity.String())
		if check.destination != nil {
			f = f.With(DataLedgerID, check.destination.ID.String()).
				With(DataCurrentAmountIn, check.destination.AmountIn.String()).
				With(DataExpectedAmountIn, check.total.String())
		}
		if check.source != nil {
			f = f.With(DataSourceLedgerID, check.source.ID.String()).
				With(DataCurrentMutated, check.source.AmountMutated.String()).
				With(DataExpectedMutated, check.expectedMutated.String())
		}
		findings = append(findings, f)
	}
	return findings, nil
}

type mutationCheck struct {
	total           decimal.Decimal
	destination     *inventory.StockLedgerEntry
	source          *inventory.StockLedgerEntry
	expectedMutated decimal.Decimal
	headerOff       bool
	destinationOff  bool
	sourceOff       bool
	reasons         []string
}

// checkMutation compares a live mutation against the rows it touches. A
// missing destination row is left to the missing-downstream rule.
func checkMutation(ctx context.Context, r RecordReader, m *inventory.MutationRecord) (mutationCheck, error) {
	item, err := r.Item(ctx, m.ItemID)
	if err != nil {
		return mutationCheck{}, err
	}
	c := mutationCheck{total: ExpectedMutationAmount(m, item)}

	if m.HasLiveItems() && !m.Quantity.Equal(c.total) {
		c.headerOff = true
		c.reasons = append(c.reasons, reasonf("mutation %s header quantity %s differs from item total %s", m.ID, m.Quantity, c.total))
	}

	credited, err := r.LedgersBySource(ctx, inventory.SourceTypeMutation, m.ID)
	if err != nil {
		return mutationCheck{}, err
	}
	if len(credited) > 0 {
		dest := credited[0]
		c.destination = &dest
		if !dest.AmountIn.Equal(c.total) {
			c.destinationOff = true
			c.reasons = append(c.reasons, reasonf("destination ledger %s credits %s, mutation %s moves %s", dest.ID, dest.AmountIn, m.ID, c.total))
		}
	}

	if m.SourceLedgerID != nil {
		src, err := r.Ledger(ctx, *m.SourceLedgerID)
		if err != nil {
			return mutationCheck{}, err
		}
		if src != nil {
			c.source = src
			c.expectedMutated, err = ExpectedMutatedAmount(ctx, r, src)
			if err != nil {
				return mutationCheck{}, err
			}
			if !src.AmountMutated.Equal(c.expectedMutated) {
				c.sourceOff = true
				c.reasons = append(c.reasons, reasonf("source ledger %s has amount_mutated %s, mutations drawing from it total %s",
					src.ID, src.AmountMutated, c.expectedMutated))
			}
		}
	}
	return c, nil
}
