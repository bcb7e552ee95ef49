package integrity

import (
	"context"
	"errors"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// restoredLedgerNamespace seeds the ids of ledger entries re-derived from a source.
var restoredLedgerNamespace = uuid.MustParse("0b7c2e4e-9a51-4d8f-8a0e-5d3c6a1f2b77")

// RestoredLedgerID is the id a ledger entry re-derived from a source gets.
// It is deterministic so a preview and the fix that follows agree on it.
func RestoredLedgerID(sourceType inventory.SourceType, sourceID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(restoredLedgerNamespace, []byte(string(sourceType)+":"+sourceID.String()))
}

// Correction is the change a fix makes: the state of every touched record
// before and after.
type Correction struct {
	Kind    Kind
	Subject EntityRef
	Before  Snapshot
	After   Snapshot
}

// ComputeCorrection re-validates a finding against r and computes its
// correction. Preview passes a Graph; the fix applier passes a reader that
// locks rows inside its transaction. Both get the same answer for the same data.
//
// It returns ErrStaleFinding when the finding no longer applies, and an
// *Error when it applies but cannot be corrected automatically.
func ComputeCorrection(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	var (
		c   Correction
		err error
	)
	switch f.Kind {
	case KindQuantityMismatch:
		c, err = correctQuantity(ctx, f, r)
	case KindConversionMismatch:
		c, err = correctConversion(ctx, f, r)
	case KindMutationQuantityMismatch:
		c, err = correctMutation(ctx, f, r)
	case KindMissingDownstreamRecord:
		c, err = correctMissingDownstream(ctx, f, r)
	case KindEmptySourceReference:
		c, err = correctEmptyReference(ctx, f, r)
	case KindOrphanedSource:
		c, err = correctOrphan(ctx, f, r)
	case KindStockSummaryMismatch:
		c, err = correctSummary(ctx, f, r)
	default:
		return Correction{}, NewConstraintViolation("unknown finding kind %q", f.Kind)
	}
	if err != nil {
		return Correction{}, err
	}
	c.Kind = f.Kind
	c.Subject = f.Subject
	sortStates(c.Before.Records)
	sortStates(c.After.Records)
	return c, nil
}

// change accumulates before/after states while a correction is computed.
type change struct {
	before []RecordState
	after  []RecordState
}

func (ch *change) add(before, after RecordState) {
	ch.before = append(ch.before, before)
	ch.after = append(ch.after, after)
}

func (ch *change) correction() (Correction, error) {
	if len(ch.after) == 0 {
		return Correction{}, ErrStaleFinding
	}
	return Correction{Before: Snapshot{Records: ch.before}, After: Snapshot{Records: ch.after}}, nil
}

// recalculated returns e with Available recomputed, rejecting negative results.
func recalculated(e inventory.StockLedgerEntry) (inventory.StockLedgerEntry, error) {
	err := recalculateLedger(&e)
	return e, err
}

func requireLedger(ctx context.Context, r RecordReader, id uuid.UUID) (*inventory.StockLedgerEntry, error) {
	e, err := r.Ledger(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrStaleFinding
	}
	return e, nil
}

func correctQuantity(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	e, err := requireLedger(ctx, r, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if e.SourceType != inventory.SourceTypePurchase || !e.HasSourceReference() {
		return Correction{}, ErrStaleFinding
	}
	src, err := ResolveSource(ctx, r, e.SourceType, *e.SourceID)
	if err != nil {
		return Correction{}, err
	}
	if !src.IsLive() {
		return Correction{}, ErrStaleFinding
	}
	expected, err := ExpectedSourceAmount(ctx, r, src)
	if err != nil {
		return Correction{}, err
	}
	if e.AmountIn.Equal(expected) {
		return Correction{}, ErrStaleFinding
	}

	updated := copyLedger(*e)
	updated.AmountIn = expected
	if updated, err = recalculated(updated); err != nil {
		return Correction{}, err
	}
	var ch change
	ch.add(LedgerState(e), LedgerState(&updated))
	return ch.correction()
}

func correctConversion(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	line, err := r.PurchaseLine(ctx, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if line == nil {
		return Correction{}, ErrStaleFinding
	}
	src, err := ResolveSource(ctx, r, inventory.SourceTypePurchase, line.ID)
	if err != nil {
		return Correction{}, err
	}
	if !src.IsLive() {
		return Correction{}, ErrStaleFinding
	}
	item, err := r.Item(ctx, line.ItemID)
	if err != nil {
		return Correction{}, err
	}
	configured, ok := ConfiguredRatio(line, item)
	if !ok {
		return Correction{}, NewConstraintViolation("item %s has no ratio for unit %q, manual intervention required", line.ItemID, line.UnitOriginal)
	}
	if line.ConversionRatio.Equal(configured) {
		return Correction{}, ErrStaleFinding
	}

	updatedLine := *line
	updatedLine.ConversionRatio = configured
	expected, err := ExpectedPurchaseAmount(&updatedLine, item)
	if err != nil {
		return Correction{}, err
	}

	var ch change
	ch.add(PurchaseLineState(line), PurchaseLineState(&updatedLine))

	ledgers, err := r.LedgersBySource(ctx, inventory.SourceTypePurchase, line.ID)
	if err != nil {
		return Correction{}, err
	}
	for i := range ledgers {
		if ledgers[i].AmountIn.Equal(expected) {
			continue
		}
		updated := copyLedger(ledgers[i])
		updated.AmountIn = expected
		if updated, err = recalculated(updated); err != nil {
			return Correction{}, err
		}
		ch.add(LedgerState(&ledgers[i]), LedgerState(&updated))
	}
	return ch.correction()
}

func correctMutation(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	m, err := r.Mutation(ctx, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if m == nil || m.IsDeleted() {
		return Correction{}, ErrStaleFinding
	}
	check, err := checkMutation(ctx, r, m)
	if err != nil {
		return Correction{}, err
	}

	var ch change
	if check.headerOff {
		updated := *m
		updated.Quantity = check.total
		ch.add(MutationState(m), MutationState(&updated))
	}
	if check.destinationOff {
		updated := copyLedger(*check.destination)
		updated.AmountIn = check.total
		if updated, err = recalculated(updated); err != nil {
			return Correction{}, err
		}
		ch.add(LedgerState(check.destination), LedgerState(&updated))
	}
	if check.sourceOff {
		updated := copyLedger(*check.source)
		updated.AmountMutated = check.expectedMutated
		if updated, err = recalculated(updated); err != nil {
			return Correction{}, err
		}
		ch.add(LedgerState(check.source), LedgerState(&updated))
	}
	return ch.correction()
}

func correctMissingDownstream(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	st, ok := SourceTypeForEntity(f.Subject.Type)
	if !ok {
		return Correction{}, NewNotRestorable("%s cannot have a downstream ledger entry", f.Subject.Type)
	}
	src, err := ResolveSource(ctx, r, st, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	switch src.Liveness {
	case LivenessMissing:
		return Correction{}, NewNotRestorable("source %s does not exist", src.Ref)
	case LivenessDeleted:
		return Correction{}, NewNotRestorable("source %s is soft-deleted", src.Ref)
	}
	existing, err := r.LedgersBySource(ctx, st, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if len(existing) > 0 {
		return Correction{}, ErrStaleFinding
	}
	expected, err := ExpectedSourceAmount(ctx, r, src)
	if err != nil {
		return Correction{}, err
	}

	sourceID := f.Subject.ID
	entry := inventory.StockLedgerEntry{
		ID:            RestoredLedgerID(st, sourceID),
		FarmID:        src.FarmID(),
		ContextID:     src.ContextID(),
		ItemID:        src.ItemID(),
		SourceType:    st,
		SourceID:      &sourceID,
		AmountIn:      expected,
		AmountUsed:    decimal.Zero,
		AmountMutated: decimal.Zero,
	}
	if entry, err = recalculated(entry); err != nil {
		return Correction{}, err
	}
	var ch change
	ch.add(AbsentState(EntityStockLedger, entry.ID), LedgerState(&entry))
	return ch.correction()
}

func correctEmptyReference(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	e, err := requireLedger(ctx, r, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if e.HasSourceReference() {
		return Correction{}, ErrStaleFinding
	}
	if !f.Restorable {
		return Correction{}, NewConstraintViolation("ledger entry %s has no unique candidate source, manual intervention required", e.ID)
	}

	candType, ok := SourceTypeForEntity(EntityType(f.Get(DataCandidateType)))
	if !ok {
		return Correction{}, NewConstraintViolation("finding carries no candidate source")
	}
	candID, err := uuid.Parse(f.Get(DataCandidateID))
	if err != nil {
		return Correction{}, NewConstraintViolation("finding carries an invalid candidate id: %v", err)
	}
	// The detector proposed a relink only for a unique candidate; another
	// source appearing since then makes the finding stale.
	candidates, err := relinkCandidates(ctx, r, e)
	if err != nil {
		return Correction{}, err
	}
	carried := EntityRef{Type: EntityType(f.Get(DataCandidateType)), ID: candID}
	if len(candidates) != 1 || candidates[0].Ref != carried {
		return Correction{}, ErrStaleFinding
	}

	updated := copyLedger(*e)
	updated.SourceType = candType
	updated.SourceID = &candID
	if updated, err = recalculated(updated); err != nil {
		return Correction{}, err
	}
	var ch change
	ch.add(LedgerState(e), LedgerState(&updated))
	return ch.correction()
}

func correctOrphan(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	e, err := requireLedger(ctx, r, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	if !e.HasSourceReference() {
		return Correction{}, ErrStaleFinding
	}
	reason, orphaned, err := orphanReason(ctx, r, e)
	if err != nil {
		return Correction{}, err
	}
	if !orphaned {
		return Correction{}, ErrStaleFinding
	}
	return Correction{}, NewConstraintViolation("%s, manual intervention required", reason)
}

func correctSummary(ctx context.Context, f Finding, r RecordReader) (Correction, error) {
	key, err := summaryKey(ctx, f, r)
	if err != nil {
		return Correction{}, err
	}
	ledgers, err := r.LedgersInGroup(ctx, key)
	if err != nil {
		return Correction{}, err
	}
	expected := inventory.SumAvailable(ledgers)

	current, err := r.Summary(ctx, f.Subject.ID)
	if err != nil {
		return Correction{}, err
	}
	var ch change
	switch {
	case current == nil && len(ledgers) == 0:
		return Correction{}, ErrStaleFinding
	case current == nil:
		created := inventory.StockSummary{
			ID:        f.Subject.ID,
			FarmID:    key.FarmID,
			ContextID: key.ContextID,
			ItemID:    key.ItemID,
			Quantity:  expected,
		}
		ch.add(AbsentState(EntityStockSummary, created.ID), SummaryState(&created))
	case current.Quantity.Equal(expected):
		return Correction{}, ErrStaleFinding
	default:
		updated := *current
		updated.Quantity = expected
		ch.add(SummaryState(current), SummaryState(&updated))
	}
	return ch.correction()
}

// summaryKey reads the group of a summary finding from the stored summary or,
// when it does not exist yet, from the finding data.
func summaryKey(ctx context.Context, f Finding, r RecordReader) (inventory.StockGroupKey, error) {
	current, err := r.Summary(ctx, f.Subject.ID)
	if err != nil {
		return inventory.StockGroupKey{}, err
	}
	if current != nil {
		return current.GroupKey(), nil
	}
	var key inventory.StockGroupKey
	for name, dst := range map[string]*uuid.UUID{
		DataFarmID:    &key.FarmID,
		DataContextID: &key.ContextID,
		DataItemID:    &key.ItemID,
	} {
		id, err := uuid.Parse(f.Get(name))
		if err != nil {
			return key, NewConstraintViolation("finding carries an invalid %s: %v", name, err)
		}
		*dst = id
	}
	if key.SummaryID() != f.Subject.ID {
		return key, NewConstraintViolation("stock summary %s does not belong to the group in the finding", f.Subject.ID)
	}
	return key, nil
}

// IsStale reports whether err means the finding no longer applies.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleFinding)
}
