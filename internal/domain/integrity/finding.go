package integrity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the category of a detected inconsistency.
type Kind string

const (
	KindEmptySourceReference     Kind = "empty_source_reference"
	KindOrphanedSource           Kind = "orphaned_source"
	KindQuantityMismatch         Kind = "quantity_mismatch"
	KindConversionMismatch       Kind = "conversion_mismatch"
	KindMutationQuantityMismatch Kind = "mutation_quantity_mismatch"
	KindMissingDownstreamRecord  Kind = "missing_downstream_record"
	KindStockSummaryMismatch     Kind = "stock_summary_mismatch"
)

// Kinds lists every finding kind in presentation order.
var Kinds = []Kind{
	KindEmptySourceReference,
	KindOrphanedSource,
	KindQuantityMismatch,
	KindConversionMismatch,
	KindMutationQuantityMismatch,
	KindMissingDownstreamRecord,
	KindStockSummaryMismatch,
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return kindOrder(k) >= 0
}

func kindOrder(k Kind) int {
	for i, known := range Kinds {
		if known == k {
			return i
		}
	}
	return -1
}

// Keys used in Finding.Data.
const (
	DataLedgerID         = "ledger_id"
	DataSourceType       = "source_type"
	DataSourceID         = "source_id"
	DataCandidateType    = "candidate_type"
	DataCandidateID      = "candidate_id"
	DataCurrentAmountIn  = "current_amount_in"
	DataExpectedAmountIn = "expected_amount_in"
	DataCurrentMutated   = "current_amount_mutated"
	DataExpectedMutated  = "expected_amount_mutated"
	DataRecordedRatio    = "recorded_ratio"
	DataConfiguredRatio  = "configured_ratio"
	DataUnit             = "unit"
	DataItemID           = "item_id"
	DataFarmID           = "farm_id"
	DataContextID        = "context_id"
	DataSourceLedgerID   = "source_ledger_id"
	DataCurrentQuantity  = "current_quantity"
	DataExpectedQuantity = "expected_quantity"
)

// Finding describes one detected inconsistency. It is never persisted.
type Finding struct {
	Kind       Kind
	Subject    EntityRef
	Reasons    []string
	Restorable bool
	Data       map[string]string
}

// NewFinding creates a finding with an empty data map.
func NewFinding(kind Kind, subject EntityRef, restorable bool, reasons ...string) Finding {
	return Finding{
		Kind:       kind,
		Subject:    subject,
		Reasons:    reasons,
		Restorable: restorable,
		Data:       map[string]string{},
	}
}

// With sets a data value and returns the finding for chaining.
func (f Finding) With(key, value string) Finding {
	if f.Data == nil {
		f.Data = map[string]string{}
	}
	f.Data[key] = value
	return f
}

// Get returns a data value or "".
func (f Finding) Get(key string) string {
	if f.Data == nil {
		return ""
	}
	return f.Data[key]
}

// Message joins the reasons into one operator-facing sentence.
func (f Finding) Message() string {
	if len(f.Reasons) == 0 {
		return fmt.Sprintf("%s on %s", f.Kind, f.Subject)
	}
	return strings.Join(f.Reasons, "; ")
}

// LogEntry is the {type, message, data} shape findings and outcomes are
// serialized to.
type LogEntry struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// LogEntry converts the finding to its serialized shape.
func (f Finding) LogEntry() LogEntry {
	data := make(map[string]any, len(f.Data)+4)
	for k, v := range f.Data {
		data[k] = v
	}
	data["subject_type"] = string(f.Subject.Type)
	data["subject_id"] = f.Subject.ID.String()
	data["restorable"] = f.Restorable
	reasons := f.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	data["reasons"] = reasons
	return LogEntry{Type: string(f.Kind), Message: f.Message(), Data: data}
}

// MarshalJSON renders the finding as a log entry.
func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.LogEntry())
}

// UnmarshalJSON parses the log-entry shape produced by MarshalJSON.
func (f *Finding) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	kind := Kind(raw.Type)
	if !kind.IsValid() {
		return fmt.Errorf("unknown finding type %q", raw.Type)
	}

	out := Finding{Kind: kind, Data: map[string]string{}}
	for key, value := range raw.Data {
		switch key {
		case "subject_type":
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("subject_type: %w", err)
			}
			out.Subject.Type = EntityType(s)
		case "subject_id":
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("subject_id: %w", err)
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return fmt.Errorf("subject_id: %w", err)
			}
			out.Subject.ID = id
		case "restorable":
			if err := json.Unmarshal(value, &out.Restorable); err != nil {
				return fmt.Errorf("restorable: %w", err)
			}
		case "reasons":
			if err := json.Unmarshal(value, &out.Reasons); err != nil {
				return fmt.Errorf("reasons: %w", err)
			}
		default:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			out.Data[key] = s
		}
	}
	if !out.Subject.Type.IsValid() {
		return fmt.Errorf("unknown subject type %q", out.Subject.Type)
	}
	*f = out
	return nil
}
