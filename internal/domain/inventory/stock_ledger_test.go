package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStockLedgerEntry_Recalculate(t *testing.T) {
	e := &StockLedgerEntry{
		AmountIn:      decimal.NewFromInt(500),
		AmountUsed:    decimal.NewFromInt(120),
		AmountMutated: decimal.NewFromInt(80),
	}
	assert.NoError(t, e.Recalculate())
	assert.True(t, e.Available.Equal(decimal.NewFromInt(300)))

	e.AmountUsed = decimal.NewFromInt(450)
	err := e.Recalculate()
	assert.True(t, errors.Is(err, ErrNegativeAvailable))
	assert.True(t, e.Available.Equal(decimal.NewFromInt(-30)))
}

func TestStockLedgerEntry_HasSourceReference(t *testing.T) {
	id := uuid.New()
	nilID := uuid.Nil

	assert.True(t, (&StockLedgerEntry{SourceType: SourceTypePurchase, SourceID: &id}).HasSourceReference())
	assert.False(t, (&StockLedgerEntry{SourceType: "", SourceID: &id}).HasSourceReference())
	assert.False(t, (&StockLedgerEntry{SourceType: SourceTypeMutation}).HasSourceReference())
	assert.False(t, (&StockLedgerEntry{SourceType: SourceTypeMutation, SourceID: &nilID}).HasSourceReference())
}

func TestSourceType_IsValid(t *testing.T) {
	assert.True(t, SourceTypePurchase.IsValid())
	assert.True(t, SourceTypeMutation.IsValid())
	assert.False(t, SourceType("usage").IsValid())
	assert.False(t, SourceType("").IsValid())
}

func TestMutationRecord_TransferredQuantity(t *testing.T) {
	m := &MutationRecord{Quantity: decimal.NewFromInt(20)}
	assert.True(t, m.TransferredQuantity().Equal(decimal.NewFromInt(20)))

	deleted := time.Now()
	m.Items = []MutationItem{
		{Quantity: decimal.NewFromInt(12)},
		{Quantity: decimal.NewFromInt(6)},
		{Quantity: decimal.NewFromInt(100), DeletedAt: &deleted},
	}
	assert.True(t, m.TransferredQuantity().Equal(decimal.NewFromInt(18)))

	m.Items = []MutationItem{{Quantity: decimal.NewFromInt(5), DeletedAt: &deleted}}
	assert.True(t, m.TransferredQuantity().Equal(decimal.NewFromInt(20)))
}

func TestStockGroupKey_SummaryIDIsDeterministic(t *testing.T) {
	k := StockGroupKey{FarmID: uuid.New(), ContextID: uuid.New(), ItemID: uuid.New()}
	assert.Equal(t, k.SummaryID(), k.SummaryID())

	other := k
	other.ItemID = uuid.New()
	assert.NotEqual(t, k.SummaryID(), other.SummaryID())
}

func TestSumAvailable(t *testing.T) {
	entries := []StockLedgerEntry{
		{Available: decimal.NewFromInt(10)},
		{Available: decimal.RequireFromString("2.5")},
	}
	assert.Equal(t, "12.5", SumAvailable(entries).String())
	assert.True(t, SumAvailable(nil).IsZero())
}
