package integrity

import (
	"context"
	"testing"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detectOne(t *testing.T, g *Graph, kind Kind) Finding {
	t.Helper()
	findings, err := NewDefaultDetector().Detect(context.Background(), g)
	require.NoError(t, err)
	return onlyKind(t, findings, kind)
}

func TestComputeCorrection_QuantityMismatchScenario(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	e := f.purchaseLedger(line, "450")
	g := f.graph()

	finding := detectOne(t, g, KindQuantityMismatch)
	c, err := ComputeCorrection(context.Background(), finding, g)
	require.NoError(t, err)

	ref := EntityRef{Type: EntityStockLedger, ID: e.ID}
	assert.Equal(t, "450", c.Before.Field(ref, FieldAmountIn))
	assert.Equal(t, "500", c.After.Field(ref, FieldAmountIn))
	assert.Equal(t, "500", c.After.Field(ref, FieldAvailable))
	assert.Equal(t, KindQuantityMismatch, c.Kind)
	assert.Equal(t, ref, c.Subject)
}

func TestComputeCorrection_RejectsNegativeAvailable(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("8", "sack", "50")
	id := line.ID
	f.ledger(inventory.SourceTypePurchase, &id, "450", "420", "0")
	g := f.graph()

	finding := detectOne(t, g, KindQuantityMismatch)
	_, err := ComputeCorrection(context.Background(), finding, g)
	require.Error(t, err)
	assert.Equal(t, ErrKindConstraintViolation, KindOf(err))
}

func TestComputeCorrection_OrphanRequiresManualIntervention(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	f.purchaseLedger(line, "500")
	f.softDeleteLine(line.ID)
	g := f.graph()

	finding := detectOne(t, g, KindOrphanedSource)
	finding.Restorable = true // a tampered flag must not enable a fix
	_, err := ComputeCorrection(context.Background(), finding, g)
	require.Error(t, err)
	assert.Equal(t, ErrKindConstraintViolation, KindOf(err))
	assert.Contains(t, MessageOf(err), "manual intervention required")
}

func TestComputeCorrection_ConversionUpdatesLineAndLedger(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "40")
	e := f.purchaseLedger(line, "400")
	g := f.graph()

	c, err := ComputeCorrection(context.Background(), detectOne(t, g, KindConversionMismatch), g)
	require.NoError(t, err)

	lineRef := EntityRef{Type: EntityPurchaseLine, ID: line.ID}
	ledgerRef := EntityRef{Type: EntityStockLedger, ID: e.ID}
	require.Len(t, c.After.Records, 2)
	assert.Equal(t, "40", c.Before.Field(lineRef, FieldConversionRatio))
	assert.Equal(t, "50", c.After.Field(lineRef, FieldConversionRatio))
	assert.Equal(t, "400", c.Before.Field(ledgerRef, FieldAmountIn))
	assert.Equal(t, "500", c.After.Field(ledgerRef, FieldAmountIn))
}

func TestComputeCorrection_MutationResyncsBothRows(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	src := f.purchaseLedger(line, "500")
	m := f.mutation(src.ID, "20", "12", "8")
	dest := f.mutationLedger(m, "15")
	g := f.graph()

	c, err := ComputeCorrection(context.Background(), detectOne(t, g, KindMutationQuantityMismatch), g)
	require.NoError(t, err)

	srcRef := EntityRef{Type: EntityStockLedger, ID: src.ID}
	destRef := EntityRef{Type: EntityStockLedger, ID: dest.ID}
	require.Len(t, c.After.Records, 2)
	assert.Equal(t, "20", c.After.Field(srcRef, FieldAmountMutated))
	assert.Equal(t, "480", c.After.Field(srcRef, FieldAvailable))
	assert.Equal(t, "20", c.After.Field(destRef, FieldAmountIn))
	assert.Equal(t, "20", c.After.Field(destRef, FieldAvailable))
}

func TestComputeCorrection_MutationHeaderFollowsItems(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	src := f.purchaseLedger(line, "500")
	m := f.mutation(src.ID, "25", "12", "8")
	f.mutationLedger(m, "20")
	f.data.Ledgers[0].AmountMutated = dec("20")
	f.data.Ledgers[0].Available = dec("480")
	g := f.graph()

	c, err := ComputeCorrection(context.Background(), detectOne(t, g, KindMutationQuantityMismatch), g)
	require.NoError(t, err)

	ref := EntityRef{Type: EntityMutation, ID: m.ID}
	require.Len(t, c.After.Records, 1)
	assert.Equal(t, "25", c.Before.Field(ref, FieldQuantity))
	assert.Equal(t, "20", c.After.Field(ref, FieldQuantity))
}

func TestComputeCorrection_MissingDownstreamCreatesLedger(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("3", "sack", "50")
	g := f.graph()

	c, err := ComputeCorrection(context.Background(), detectOne(t, g, KindMissingDownstreamRecord), g)
	require.NoError(t, err)

	id := RestoredLedgerID(inventory.SourceTypePurchase, line.ID)
	require.Len(t, c.Before.Records, 1)
	assert.False(t, c.Before.Records[0].Exists)
	assert.Equal(t, id, c.After.Records[0].ID)
	assert.Equal(t, "150", c.After.Field(EntityRef{Type: EntityStockLedger, ID: id}, FieldAmountIn))
	assert.Equal(t, line.ID.String(), c.After.Field(EntityRef{Type: EntityStockLedger, ID: id}, FieldSourceID))
	assert.Equal(t, f.contextID.String(), c.After.Field(EntityRef{Type: EntityStockLedger, ID: id}, FieldContextID))
}

func TestComputeCorrection_MissingDownstreamSourceDeleted(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("3", "sack", "50")
	f.softDeleteLine(line.ID)

	finding := NewFinding(KindMissingDownstreamRecord, EntityRef{Type: EntityPurchaseLine, ID: line.ID}, true)
	_, err := ComputeCorrection(context.Background(), finding, f.graph())
	require.Error(t, err)
	assert.Equal(t, ErrKindNotRestorable, KindOf(err))
}

func TestComputeCorrection_EmptyReferenceRelinks(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	e := f.ledger("", nil, "500", "0", "0")
	g := f.graph()

	c, err := ComputeCorrection(context.Background(), detectOne(t, g, KindEmptySourceReference), g)
	require.NoError(t, err)

	ref := EntityRef{Type: EntityStockLedger, ID: e.ID}
	assert.Equal(t, "", c.Before.Field(ref, FieldSourceType))
	assert.Equal(t, string(inventory.SourceTypePurchase), c.After.Field(ref, FieldSourceType))
	assert.Equal(t, line.ID.String(), c.After.Field(ref, FieldSourceID))
}

func TestComputeCorrection_EmptyReferenceStaleWhenCandidateNoLongerUnique(t *testing.T) {
	f := newFixture(t)
	f.purchaseLine("10", "sack", "50")
	f.ledger("", nil, "500", "0", "0")
	finding := detectOne(t, f.graph(), KindEmptySourceReference)
	require.True(t, finding.Restorable)

	f.purchaseLine("10", "sack", "50")
	_, err := ComputeCorrection(context.Background(), finding, f.graph())
	assert.True(t, IsStale(err))
}

func TestComputeCorrection_SummaryCreatedWhenMissing(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	e := f.purchaseLedger(line, "500")
	g := f.graph()

	finding := detectOne(t, g, KindStockSummaryMismatch)
	assert.Equal(t, e.GroupKey().SummaryID(), finding.Subject.ID)

	c, err := ComputeCorrection(context.Background(), finding, g)
	require.NoError(t, err)
	assert.False(t, c.Before.Records[0].Exists)
	assert.Equal(t, "500", c.After.Field(finding.Subject, FieldQuantity))
}

func TestComputeCorrection_StaleFinding(t *testing.T) {
	f := newFixture(t)
	line := f.purchaseLine("10", "sack", "50")
	e := f.purchaseLedger(line, "500")

	finding := NewFinding(KindQuantityMismatch, EntityRef{Type: EntityStockLedger, ID: e.ID}, true)
	_, err := ComputeCorrection(context.Background(), finding, f.graph())
	assert.True(t, IsStale(err))
}

func TestBuildPreview(t *testing.T) {
	f := newFixture(t)
	good := f.purchaseLine("10", "sack", "50")
	f.purchaseLedger(good, "450")
	gone := f.purchaseLine("1", "sack", "50")
	f.purchaseLedger(gone, "50")
	f.softDeleteLine(gone.ID)
	f.syncSummaries()
	g := f.graph()

	findings, err := NewDefaultDetector().Detect(context.Background(), g)
	require.NoError(t, err)
	entries, err := BuildPreview(context.Background(), findings, g)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindOrphanedSource, entries[0].Finding.Kind)
	assert.False(t, entries[0].Correctable)
	assert.Equal(t, ErrKindConstraintViolation, entries[0].ErrorKind)
	assert.NotEmpty(t, entries[0].Reason)

	assert.Equal(t, KindQuantityMismatch, entries[1].Finding.Kind)
	assert.True(t, entries[1].Correctable)
	require.NotNil(t, entries[1].After)

	groups := GroupPreview(entries)
	require.Len(t, groups, 2)
	assert.Equal(t, KindOrphanedSource, groups[0].Kind)
	assert.Len(t, groups[1].Entries, 1)

	empty, err := BuildPreview(context.Background(), nil, g)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
