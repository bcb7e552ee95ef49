package integrity

import (
	"context"
	"testing"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_CleanGraphHasNoFindings(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	src := f.purchaseLedger(line, "500")
	m := f.mutation(src.ID, "20", "12", "8")
	f.mutationLedger(m, "20")
	f.data.Ledgers[0].AmountMutated = dec("20")
	f.data.Ledgers[0].Available = dec("480")
	f.syncSummaries()

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetector_QuantityMismatch(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	e := f.purchaseLedger(line, "450")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindQuantityMismatch)
	assert.Equal(t, EntityRef{Type: EntityStockLedger, ID: e.ID}, got.Subject)
	assert.True(t, got.Restorable)
	assert.Equal(t, "450", got.Get(DataCurrentAmountIn))
	assert.Equal(t, "500", got.Get(DataExpectedAmountIn))
	assert.Empty(t, FilterByKind(findings, KindConversionMismatch))
}

func TestDetector_OrphanedSource(t *testing.T) {
	t.Run("soft-deleted purchase line", func(t *testing.T) {
		f := newFixture(t)
		line := f.purchaseLine("10", "sack", "50")
		e := f.purchaseLedger(line, "500")
		f.softDeleteLine(line.ID)

		findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
		require.NoError(t, err)

		got := onlyKind(t, findings, KindOrphanedSource)
		assert.Equal(t, e.ID, got.Subject.ID)
		assert.False(t, got.Restorable)
		assert.Contains(t, got.Message(), "soft-deleted")
		assert.Empty(t, FilterByKind(findings, KindQuantityMismatch))
		assert.Empty(t, FilterByKind(findings, KindMissingDownstreamRecord))
	})

	t.Run("missing source", func(t *testing.T) {
		f := newFixture(t)
		missing := uuid.New()
		f.ledger(inventory.SourceTypeMutation, &missing, "20", "0", "0")

		findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
		require.NoError(t, err)
		got := onlyKind(t, findings, KindOrphanedSource)
		assert.Contains(t, got.Message(), "does not exist")
	})

	t.Run("unknown source type", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.ledger(inventory.SourceType("usage"), &id, "20", "0", "0")

		findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
		require.NoError(t, err)
		got := onlyKind(t, findings, KindOrphanedSource)
		assert.Contains(t, got.Message(), "unknown source type")
	})
}

func TestDetector_EmptySourceReference(t *testing.T) {
	t.Run("single candidate is restorable", func(t *testing.T) {
		f := newFixture(t)
		line := f.purchaseLine("10", "sack", "50")
		e := f.ledger("", nil, "500", "0", "0")

		findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
		require.NoError(t, err)

		got := onlyKind(t, findings, KindEmptySourceReference)
		assert.Equal(t, e.ID, got.Subject.ID)
		assert.True(t, got.Restorable)
		assert.Equal(t, string(EntityPurchaseLine), got.Get(DataCandidateType))
		assert.Equal(t, line.ID.String(), got.Get(DataCandidateID))
	})

	t.Run("ambiguous candidates need manual work", func(t *testing.T) {
		f := newFixture(t)
		f.purchaseLine("10", "sack", "50")
		f.purchaseLine("10", "sack", "50")
		f.ledger("", nil, "500", "0", "0")

		findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
		require.NoError(t, err)

		got := onlyKind(t, findings, KindEmptySourceReference)
		assert.False(t, got.Restorable)
		assert.Contains(t, got.Message(), "2 candidate sources")
	})
}

func TestDetector_ConversionMismatch(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "40")
	f.purchaseLedger(line, "400")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindConversionMismatch)
	assert.Equal(t, EntityRef{Type: EntityPurchaseLine, ID: line.ID}, got.Subject)
	assert.True(t, got.Restorable)
	assert.Equal(t, "40", got.Get(DataRecordedRatio))
	assert.Equal(t, "50", got.Get(DataConfiguredRatio))
	// The ledger agrees with the recorded ratio.
	assert.Empty(t, FilterByKind(findings, KindQuantityMismatch))
}

func TestDetector_ConversionUnitNotConfigured(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("2", "drum", "200")
	f.purchaseLedger(line, "400")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindConversionMismatch)
	assert.False(t, got.Restorable)
	assert.Equal(t, "drum", got.Get(DataUnit))
}

func TestDetector_MutationQuantityMismatch(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	src := f.purchaseLedger(line, "500")
	m := f.mutation(src.ID, "20", "12", "8")
	dest := f.mutationLedger(m, "20")
	// Only the credited row was written; the debited row never saw the transfer.

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindMutationQuantityMismatch)
	assert.Equal(t, EntityRef{Type: EntityMutation, ID: m.ID}, got.Subject)
	assert.Equal(t, dest.ID.String(), got.Get(DataLedgerID))
	assert.Equal(t, src.ID.String(), got.Get(DataSourceLedgerID))
	assert.Equal(t, "0", got.Get(DataCurrentMutated))
	assert.Equal(t, "20", got.Get(DataExpectedMutated))
}

func TestDetector_MissingDownstreamRecord(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("3", "sack", "50")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindMissingDownstreamRecord)
	assert.Equal(t, EntityRef{Type: EntityPurchaseLine, ID: line.ID}, got.Subject)
	assert.True(t, got.Restorable)
	assert.Equal(t, "150", got.Get(DataExpectedAmountIn))
}

func TestDetector_MissingDownstreamUnconvertible(t *testing.T) {
	f := newFixture(t)
	f.purchaseLine("3", "sack", "0")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindMissingDownstreamRecord)
	assert.False(t, got.Restorable)
}

func TestDetector_StockSummaryMismatch(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	f.purchaseLedger(line, "500")
	f.syncSummaries()
	f.data.Summaries[0].Quantity = dec("480")

	findings, err := NewDefaultDetector().Detect(context.Background(), f.graph())
	require.NoError(t, err)

	got := onlyKind(t, findings, KindStockSummaryMismatch)
	assert.Equal(t, "480", got.Get(DataCurrentQuantity))
	assert.Equal(t, "500", got.Get(DataExpectedQuantity))

	// A single-record scope never evaluates summaries.
	g := NewGraph(RecordScope(line.ID), f.data)
	findings, err = NewDefaultDetector().Detect(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, FilterByKind(findings, KindStockSummaryMismatch))
}

func TestDetector_ScopeExcludesOtherFarms(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	f.purchaseLedger(line, "450")

	g := NewGraph(FarmScope(uuid.New()), f.data)
	findings, err := NewDefaultDetector().Detect(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }

func (failingRule) Evaluate(context.Context, *Graph) ([]Finding, error) {
	return nil, assert.AnError
}

func TestDetector_RuleFailureAbortsScope(t *testing.T) {
	d := NewDefaultDetector()
	d.Register(failingRule{})
	assert.Equal(t, "failing", d.Rules()[len(d.Rules())-1])

	findings, err := d.Detect(context.Background(), newFixture(t).graph())
	assert.Nil(t, findings)
	require.Error(t, err)
	assert.Equal(t, ErrKindDetection, KindOf(err))
}
