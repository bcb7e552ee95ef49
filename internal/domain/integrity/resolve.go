package integrity

import (
	"context"
	"fmt"

	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/farmerp/backend/internal/domain/shared/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var converter = service.NewUnitConversionService()

// ResolvedSource is a ledger source reference after its liveness lookup.
type ResolvedSource struct {
	Ref      EntityRef
	Liveness Liveness
	Line     *purchase.PurchaseLine
	Batch    *purchase.PurchaseBatch
	Mutation *inventory.MutationRecord
}

// IsLive reports whether the source exists and is not soft-deleted
func (s ResolvedSource) IsLive() bool {
	return s.Liveness == LivenessLive
}

// ItemID returns the item the source moves
func (s ResolvedSource) ItemID() uuid.UUID {
	if s.Line != nil {
		return s.Line.ItemID
	}
	if s.Mutation != nil {
		return s.Mutation.ItemID
	}
	return uuid.Nil
}

// FarmID returns the farm a ledger entry derived from the source belongs to
func (s ResolvedSource) FarmID() uuid.UUID {
	if s.Batch != nil {
		return s.Batch.FarmID
	}
	if s.Mutation != nil {
		return s.Mutation.FarmID
	}
	return uuid.Nil
}

// ContextID returns the owning context a ledger entry derived from the source belongs to
func (s ResolvedSource) ContextID() uuid.UUID {
	if s.Batch != nil {
		return s.Batch.ContextID()
	}
	if s.Mutation != nil {
		return s.Mutation.ToContextID
	}
	return uuid.Nil
}

// ResolveSource looks up a weak (sourceType, sourceID) reference. A purchase
// line is live only when its batch is live too.
func ResolveSource(ctx context.Context, r RecordReader, sourceType inventory.SourceType, sourceID uuid.UUID) (ResolvedSource, error) {
	entityType, ok := EntityTypeForSource(sourceType)
	res := ResolvedSource{Ref: EntityRef{Type: entityType, ID: sourceID}, Liveness: LivenessMissing}
	if !ok || sourceID == uuid.Nil {
		return res, nil
	}

	switch sourceType {
	case inventory.SourceTypePurchase:
		line, err := r.PurchaseLine(ctx, sourceID)
		if err != nil {
			return res, err
		}
		if line == nil {
			return res, nil
		}
		res.Line = line
		batch, err := r.PurchaseBatch(ctx, line.BatchID)
		if err != nil {
			return res, err
		}
		res.Batch = batch
		switch {
		case batch == nil:
			res.Liveness = LivenessMissing
		case line.IsDeleted() || batch.IsDeleted():
			res.Liveness = LivenessDeleted
		default:
			res.Liveness = LivenessLive
		}
	case inventory.SourceTypeMutation:
		m, err := r.Mutation(ctx, sourceID)
		if err != nil {
			return res, err
		}
		if m == nil {
			return res, nil
		}
		res.Mutation = m
		if m.IsDeleted() {
			res.Liveness = LivenessDeleted
		} else {
			res.Liveness = LivenessLive
		}
	}
	return res, nil
}

// ExpectedPurchaseAmount converts a purchase line to the item's smallest unit
// with the ratio recorded on the line, rounded for persistence.
func ExpectedPurchaseAmount(line *purchase.PurchaseLine, item *catalog.Item) (decimal.Decimal, error) {
	if item == nil {
		return line.QuantityOriginal, NewConversionError(nil, "item %s of purchase line %s not found", line.ItemID, line.ID)
	}
	amount, err := converter.ConvertToSmallestUnit(
		line.QuantityOriginal, line.ConversionRatio, item.SmallestUnitRatio(), item.PersistencePrecision())
	if err != nil {
		return amount, NewConversionError(err, "purchase line %s (%s %s)", line.ID, line.QuantityOriginal, line.UnitOriginal)
	}
	return amount, nil
}

// ExpectedMutationAmount is the quantity a mutation moves, rounded to the
// item's precision. Mutation quantities are already in the smallest unit.
func ExpectedMutationAmount(m *inventory.MutationRecord, item *catalog.Item) decimal.Decimal {
	precision := catalog.DefaultPrecision
	if item != nil {
		precision = item.PersistencePrecision()
	}
	return service.RoundForPersistence(m.TransferredQuantity(), precision)
}

// ExpectedSourceAmount is the amount_in a ledger entry derived from src must hold.
func ExpectedSourceAmount(ctx context.Context, r RecordReader, src ResolvedSource) (decimal.Decimal, error) {
	item, err := r.Item(ctx, src.ItemID())
	if err != nil {
		return decimal.Zero, err
	}
	switch {
	case src.Line != nil:
		return ExpectedPurchaseAmount(src.Line, item)
	case src.Mutation != nil:
		return ExpectedMutationAmount(src.Mutation, item), nil
	}
	return decimal.Zero, fmt.Errorf("source %s is not loaded", src.Ref)
}

// ExpectedMutatedAmount is the amount_mutated a ledger entry must hold: the
// total moved by every live mutation debiting it.
func ExpectedMutatedAmount(ctx context.Context, r RecordReader, ledger *inventory.StockLedgerEntry) (decimal.Decimal, error) {
	drawing, err := r.MutationsDrawingFrom(ctx, ledger.ID)
	if err != nil {
		return decimal.Zero, err
	}
	item, err := r.Item(ctx, ledger.ItemID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range drawing {
		total = total.Add(ExpectedMutationAmount(&drawing[i], item))
	}
	return total, nil
}

// ConfiguredRatio returns the ratio currently configured on the item for the
// line's unit.
func ConfiguredRatio(line *purchase.PurchaseLine, item *catalog.Item) (decimal.Decimal, bool) {
	if item == nil {
		return decimal.Zero, false
	}
	r, ok := item.RatioFor(line.UnitOriginal)
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}
	return r, true
}
