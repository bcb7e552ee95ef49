package integrity

import (
	"context"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// ApplySnapshot moves every record listed in target from the state recorded
// in expected to the state in target. Each record must currently match its
// expected state. Ledger availability is recomputed on write and must not go
// negative. It returns the states actually written.
//
// Fixes call it with (before, after) and rollbacks with (after, before), so
// both share one write path.
func ApplySnapshot(ctx context.Context, r RecordReader, w RecordWriter, expected, target Snapshot) (Snapshot, error) {
	if err := expected.Validate(); err != nil {
		return Snapshot{}, NewNotRestorable("incompatible snapshot: %v", err)
	}
	if err := target.Validate(); err != nil {
		return Snapshot{}, NewNotRestorable("incompatible snapshot: %v", err)
	}

	written := make([]RecordState, 0, len(target.Records))
	for _, want := range target.Records {
		have, ok := expected.Find(want.Ref())
		if !ok {
			return Snapshot{}, NewNotRestorable("snapshot pair does not cover %s", want.Ref())
		}
		current, err := CurrentState(ctx, r, want.Ref())
		if err != nil {
			return Snapshot{}, err
		}
		if have.Exists && !current.Exists {
			return Snapshot{}, NewNotRestorable("%s no longer exists", want.Ref())
		}
		if !current.Matches(have) {
			return Snapshot{}, NewConcurrentModification("%s changed since its state was read", want.Ref())
		}
		state, err := writeState(ctx, r, w, current, want)
		if err != nil {
			return Snapshot{}, err
		}
		written = append(written, state)
	}
	sortStates(written)
	return Snapshot{Records: written}, nil
}

// CurrentState reads the stored state of ref.
func CurrentState(ctx context.Context, r RecordReader, ref EntityRef) (RecordState, error) {
	switch ref.Type {
	case EntityStockLedger:
		e, err := r.Ledger(ctx, ref.ID)
		if err != nil || e == nil {
			return AbsentState(ref.Type, ref.ID), err
		}
		return LedgerState(e), nil
	case EntityPurchaseLine:
		l, err := r.PurchaseLine(ctx, ref.ID)
		if err != nil || l == nil {
			return AbsentState(ref.Type, ref.ID), err
		}
		return PurchaseLineState(l), nil
	case EntityMutation:
		m, err := r.Mutation(ctx, ref.ID)
		if err != nil || m == nil {
			return AbsentState(ref.Type, ref.ID), err
		}
		return MutationState(m), nil
	case EntityStockSummary:
		s, err := r.Summary(ctx, ref.ID)
		if err != nil || s == nil {
			return AbsentState(ref.Type, ref.ID), err
		}
		return SummaryState(s), nil
	}
	return RecordState{}, NewNotRestorable("unknown record type %q", ref.Type)
}

func writeState(ctx context.Context, r RecordReader, w RecordWriter, current, want RecordState) (RecordState, error) {
	switch want.Type {
	case EntityStockLedger:
		return writeLedger(ctx, r, w, current, want)
	case EntityStockSummary:
		return writeSummary(ctx, r, w, current, want)
	case EntityPurchaseLine:
		if !current.Exists || !want.Exists {
			return RecordState{}, NewNotRestorable("purchase lines are never created or removed by a fix")
		}
		l, err := r.PurchaseLine(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		l.ConversionRatio = decimal.RequireFromString(want.Fields[FieldConversionRatio])
		if err := w.UpdatePurchaseLine(ctx, l); err != nil {
			return RecordState{}, err
		}
		return PurchaseLineState(l), nil
	case EntityMutation:
		if !current.Exists || !want.Exists {
			return RecordState{}, NewNotRestorable("mutations are never created or removed by a fix")
		}
		m, err := r.Mutation(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		m.Quantity = decimal.RequireFromString(want.Fields[FieldQuantity])
		if err := w.UpdateMutation(ctx, m); err != nil {
			return RecordState{}, err
		}
		return MutationState(m), nil
	}
	return RecordState{}, NewNotRestorable("unknown record type %q", want.Type)
}

func writeLedger(ctx context.Context, r RecordReader, w RecordWriter, current, want RecordState) (RecordState, error) {
	switch {
	case current.Exists && want.Exists:
		e, err := r.Ledger(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		applyLedgerFields(e, want.Fields)
		if err := recalculateLedger(e); err != nil {
			return RecordState{}, err
		}
		if err := w.UpdateLedger(ctx, e); err != nil {
			return RecordState{}, err
		}
		return LedgerState(e), nil
	case !current.Exists && want.Exists:
		e := &inventory.StockLedgerEntry{ID: want.ID, Version: 1}
		applyLedgerFields(e, want.Fields)
		if err := recalculateLedger(e); err != nil {
			return RecordState{}, err
		}
		if err := w.CreateLedger(ctx, e); err != nil {
			return RecordState{}, err
		}
		return LedgerState(e), nil
	case current.Exists && !want.Exists:
		e, err := r.Ledger(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		if err := w.DeleteLedger(ctx, e); err != nil {
			return RecordState{}, err
		}
		return AbsentState(EntityStockLedger, want.ID), nil
	}
	return AbsentState(EntityStockLedger, want.ID), nil
}

func writeSummary(ctx context.Context, r RecordReader, w RecordWriter, current, want RecordState) (RecordState, error) {
	switch {
	case current.Exists && want.Exists:
		s, err := r.Summary(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		applySummaryFields(s, want.Fields)
		if err := w.UpdateSummary(ctx, s); err != nil {
			return RecordState{}, err
		}
		return SummaryState(s), nil
	case !current.Exists && want.Exists:
		s := &inventory.StockSummary{ID: want.ID, Version: 1}
		applySummaryFields(s, want.Fields)
		if err := w.CreateSummary(ctx, s); err != nil {
			return RecordState{}, err
		}
		return SummaryState(s), nil
	case current.Exists && !want.Exists:
		s, err := r.Summary(ctx, want.ID)
		if err != nil {
			return RecordState{}, err
		}
		if err := w.DeleteSummary(ctx, s); err != nil {
			return RecordState{}, err
		}
		return AbsentState(EntityStockSummary, want.ID), nil
	}
	return AbsentState(EntityStockSummary, want.ID), nil
}

func recalculateLedger(e *inventory.StockLedgerEntry) error {
	if err := e.Recalculate(); err != nil {
		return NewConstraintViolation("ledger entry %s would have negative available %s", e.ID, e.Available)
	}
	return nil
}
