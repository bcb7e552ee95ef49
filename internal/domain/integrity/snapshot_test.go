package integrity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLedgerState() RecordState {
	src := uuid.New()
	e := &inventory.StockLedgerEntry{
		ID:         uuid.New(),
		FarmID:     uuid.New(),
		ContextID:  uuid.New(),
		ItemID:     uuid.New(),
		SourceType: inventory.SourceTypePurchase,
		SourceID:   &src,
		AmountIn:   dec("500"),
		AmountUsed: dec("20.5"),
	}
	e.Available = e.ExpectedAvailable()
	return LedgerState(e)
}

func TestRecordState_Matches(t *testing.T) {
	a := sampleLedgerState()
	b := RecordState{Type: a.Type, ID: a.ID, Exists: true, Fields: map[string]string{}}
	for k, v := range a.Fields {
		b.Fields[k] = v
	}
	b.Fields[FieldAmountIn] = "500.0000"
	assert.True(t, a.Matches(b), "decimal fields compare numerically")

	b.Fields[FieldAmountIn] = "499"
	assert.False(t, a.Matches(b))

	assert.True(t, AbsentState(EntityStockLedger, a.ID).Matches(AbsentState(EntityStockLedger, a.ID)))
	assert.False(t, a.Matches(AbsentState(EntityStockLedger, a.ID)))
}

func TestRecordState_Validate(t *testing.T) {
	valid := sampleLedgerState()
	require.NoError(t, valid.Validate())

	missingField := sampleLedgerState()
	delete(missingField.Fields, FieldAvailable)
	assert.Error(t, missingField.Validate())

	badDecimal := sampleLedgerState()
	badDecimal.Fields[FieldAmountIn] = "lots"
	assert.Error(t, badDecimal.Validate())

	badType := sampleLedgerState()
	badType.Type = "invoice"
	assert.Error(t, badType.Validate())

	absentWithFields := AbsentState(EntityStockLedger, uuid.New())
	absentWithFields.Fields = map[string]string{FieldAmountIn: "1"}
	assert.Error(t, absentWithFields.Validate())

	assert.Error(t, Snapshot{}.Validate())
	dup := sampleLedgerState()
	assert.Error(t, Snapshot{Records: []RecordState{dup, dup}}.Validate())
}

func TestSnapshot_JSONShapeIsStable(t *testing.T) {
	s := Snapshot{Records: []RecordState{sampleLedgerState()}}
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, s.Matches(decoded))
	assert.NoError(t, decoded.Validate())
}

func TestFinding_JSON(t *testing.T) {
	f := NewFinding(KindQuantityMismatch, EntityRef{Type: EntityStockLedger, ID: uuid.New()}, true,
		"ledger holds 450", "line converts to 500").
		With(DataCurrentAmountIn, "450").
		With(DataExpectedAmountIn, "500")

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var shape map[string]any
	require.NoError(t, json.Unmarshal(raw, &shape))
	assert.Equal(t, "quantity_mismatch", shape["type"])
	assert.Equal(t, "ledger holds 450; line converts to 500", shape["message"])
	data := shape["data"].(map[string]any)
	assert.Equal(t, "450", data[DataCurrentAmountIn])
	assert.Equal(t, true, data["restorable"])
	assert.Equal(t, string(EntityStockLedger), data["subject_type"])

	var back Finding
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, f.Kind, back.Kind)
	assert.Equal(t, f.Subject, back.Subject)
	assert.Equal(t, f.Reasons, back.Reasons)
	assert.Equal(t, f.Data, back.Data)
	assert.True(t, back.Restorable)
}

func TestFinding_UnmarshalRejectsUnknownType(t *testing.T) {
	var f Finding
	err := json.Unmarshal([]byte(`{"type":"weather","message":"","data":{}}`), &f)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"type":"quantity_mismatch","data":{"subject_type":"invoice","subject_id":"`+uuid.NewString()+`"}}`), &f)
	assert.Error(t, err)
}

func TestOutcome_LogEntry(t *testing.T) {
	subject := EntityRef{Type: EntityStockLedger, ID: uuid.New()}
	auditID := uuid.New()

	applied := Applied(KindQuantityMismatch, subject, auditID, "amount_in corrected").LogEntry()
	assert.Equal(t, "fix_applied", applied.Type)
	assert.Equal(t, auditID.String(), applied.Data["audit_entry_id"])

	skipped := Skipped(KindQuantityMismatch, subject, SkipStaleFinding, "already consistent").LogEntry()
	assert.Equal(t, SkipStaleFinding, skipped.Type)

	failed := FailedFromError(KindOrphanedSource, subject, NewConstraintViolation("manual intervention required")).LogEntry()
	assert.Equal(t, "fix_failed", failed.Type)
	assert.Equal(t, string(ErrKindConstraintViolation), failed.Data["error_kind"])
	assert.Equal(t, "manual intervention required", failed.Message)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrKindConstraintViolation, KindOf(inventory.ErrNegativeAvailable))
	assert.Equal(t, ErrKindNotRestorable, KindOf(NewNotRestorable("gone")))
	assert.Equal(t, ErrKindInternal, KindOf(assert.AnError))
}

func TestAuditTrailEntry_TouchedRecords(t *testing.T) {
	ledger := sampleLedgerState()
	other := sampleLedgerState()
	mutationID := uuid.New()
	created := AbsentState(EntityStockSummary, uuid.New())
	created.Exists = true

	c := Correction{
		Kind:    KindMutationQuantityMismatch,
		Subject: EntityRef{Type: EntityMutation, ID: mutationID},
		Before:  Snapshot{Records: []RecordState{ledger, other, AbsentState(EntityStockSummary, created.ID)}},
		After:   Snapshot{Records: []RecordState{ledger, other, created}},
	}
	entry := NewFixEntry(c, nil, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	assert.Equal(t, []EntityRef{
		{Type: EntityMutation, ID: mutationID},
		ledger.Ref(),
		other.Ref(),
		{Type: EntityStockSummary, ID: created.ID},
	}, entry.TouchedRecords())
}
