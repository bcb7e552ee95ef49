package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
)

// EmptySourceReferenceRule flags ledger entries with a blank source type or id.
// It proposes a relink when exactly one live source could have produced the entry.
type EmptySourceReferenceRule struct{}

// NewEmptySourceReferenceRule creates the rule
func NewEmptySourceReferenceRule() *EmptySourceReferenceRule {
	return &EmptySourceReferenceRule{}
}

// Name implements Rule
func (r *EmptySourceReferenceRule) Name() string {
	return string(KindEmptySourceReference)
}

// Evaluate implements Rule
func (r *EmptySourceReferenceRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, e := range g.ScopedLedgers() {
		if e.HasSourceReference() {
			continue
		}
		subject := EntityRef{Type: EntityStockLedger, ID: e.ID}
		reason := reasonf("ledger entry %s has an empty source reference", e.ID)

		candidates, err := relinkCandidates(ctx, g, &e)
		if err != nil {
			return nil, err
		}
		if len(candidates) != 1 {
			f := NewFinding(KindEmptySourceReference, subject, false, reason,
				reasonf("%d candidate sources match, manual intervention required", len(candidates))).
				With(DataCurrentAmountIn, e.AmountIn.String())
			findings = append(findings, f)
			continue
		}
		c := candidates[0]
		f := NewFinding(KindEmptySourceReference, subject, true, reason,
			reasonf("can be relinked to %s", c.Ref)).
			With(DataCandidateType, string(c.Ref.Type)).
			With(DataCandidateID, c.Ref.ID.String()).
			With(DataCurrentAmountIn, e.AmountIn.String())
		findings = append(findings, f)
	}
	return findings, nil
}

// relinkCandidates returns live sources with the entry's item and context,
// no ledger entry of their own, and an expected amount equal to the entry's
// amount_in.
func relinkCandidates(ctx context.Context, r RecordReader, e *inventory.StockLedgerEntry) ([]ResolvedSource, error) {
	refs, err := r.SourcesCrediting(ctx, e.GroupKey())
	if err != nil {
		return nil, err
	}
	var out []ResolvedSource
	for _, ref := range refs {
		st, ok := SourceTypeForEntity(ref.Type)
		if !ok {
			continue
		}
		ok, src, err := isRelinkCandidate(ctx, r, e, st, ref.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, src)
		}
	}
	return out, nil
}

func isRelinkCandidate(ctx context.Context, r RecordReader, e *inventory.StockLedgerEntry, st inventory.SourceType, id uuid.UUID) (bool, ResolvedSource, error) {
	src, err := ResolveSource(ctx, r, st, id)
	if err != nil || !src.IsLive() {
		return false, src, err
	}
	if src.ItemID() != e.ItemID || src.ContextID() != e.ContextID || src.FarmID() != e.FarmID {
		return false, src, nil
	}
	existing, err := r.LedgersBySource(ctx, st, id)
	if err != nil {
		return false, src, err
	}
	for _, other := range existing {
		if other.ID != e.ID {
			return false, src, nil
		}
	}
	expected, err := ExpectedSourceAmount(ctx, r, src)
	if err != nil {
		return false, src, nil
	}
	return expected.Equal(e.AmountIn), src, nil
}

// OrphanedSourceRule flags ledger entries whose source is missing, soft-deleted
// or of an unknown type. These are never fixed automatically.
type OrphanedSourceRule struct{}

// NewOrphanedSourceRule creates the rule
func NewOrphanedSourceRule() *OrphanedSourceRule {
	return &OrphanedSourceRule{}
}

// Name implements Rule
func (r *OrphanedSourceRule) Name() string {
	return string(KindOrphanedSource)
}

// Evaluate implements Rule
func (r *OrphanedSourceRule) Evaluate(ctx context.Context, g *Graph) ([]Finding, error) {
	var findings []Finding
	for _, e := range g.ScopedLedgers() {
		if !e.HasSourceReference() {
			continue
		}
		reason, orphaned, err := orphanReason(ctx, g, &e)
		if err != nil {
			return nil, err
		}
		if !orphaned {
			continue
		}
		f := NewFinding(KindOrphanedSource, EntityRef{Type: EntityStockLedger, ID: e.ID}, false,
			reason, "manual intervention required").
			With(DataSourceType, string(e.SourceType)).
			With(DataSourceID, e.SourceID.String())
		findings = append(findings, f)
	}
	return findings, nil
}

// orphanReason reports whether a referenced ledger entry is orphaned and why.
func orphanReason(ctx context.Context, r RecordReader, e *inventory.StockLedgerEntry) (string, bool, error) {
	if !e.SourceType.IsValid() {
		return reasonf("ledger entry %s has unknown source type %q", e.ID, e.SourceType), true, nil
	}
	src, err := ResolveSource(ctx, r, e.SourceType, *e.SourceID)
	if err != nil {
		return "", false, err
	}
	switch src.Liveness {
	case LivenessMissing:
		return reasonf("source %s of ledger entry %s does not exist", src.Ref, e.ID), true, nil
	case LivenessDeleted:
		return reasonf("source %s of ledger entry %s is soft-deleted", src.Ref, e.ID), true, nil
	}
	return "", false, nil
}
