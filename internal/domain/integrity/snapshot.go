package integrity

import (
	"fmt"
	"sort"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/purchase"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot field names.
const (
	FieldFarmID          = "farm_id"
	FieldContextID       = "context_id"
	FieldItemID          = "item_id"
	FieldSourceType      = "source_type"
	FieldSourceID        = "source_id"
	FieldAmountIn        = "amount_in"
	FieldAmountUsed      = "amount_used"
	FieldAmountMutated   = "amount_mutated"
	FieldAvailable       = "available"
	FieldConversionRatio = "conversion_ratio"
	FieldQuantity        = "quantity"
)

// recordFields is the exact field set stored per record type. A snapshot
// whose fields differ is considered incompatible.
var recordFields = map[EntityType][]string{
	EntityStockLedger: {
		FieldFarmID, FieldContextID, FieldItemID, FieldSourceType, FieldSourceID,
		FieldAmountIn, FieldAmountUsed, FieldAmountMutated, FieldAvailable,
	},
	EntityPurchaseLine: {FieldConversionRatio},
	EntityMutation:     {FieldQuantity},
	EntityStockSummary: {FieldFarmID, FieldContextID, FieldItemID, FieldQuantity},
}

var decimalFields = map[string]bool{
	FieldAmountIn:        true,
	FieldAmountUsed:      true,
	FieldAmountMutated:   true,
	FieldAvailable:       true,
	FieldConversionRatio: true,
	FieldQuantity:        true,
}

var uuidFields = map[string]bool{
	FieldFarmID:    true,
	FieldContextID: true,
	FieldItemID:    true,
}

// RecordState is the stored state of one record. Exists=false stands for a
// record that does not exist at that point (created or removed by a fix).
type RecordState struct {
	Type   EntityType        `json:"type"`
	ID     uuid.UUID         `json:"id"`
	Exists bool              `json:"exists"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Ref returns the record's reference
func (s RecordState) Ref() EntityRef {
	return EntityRef{Type: s.Type, ID: s.ID}
}

// Matches reports whether two states describe the same record with equal
// values. Decimal fields compare numerically.
func (s RecordState) Matches(other RecordState) bool {
	if s.Type != other.Type || s.ID != other.ID || s.Exists != other.Exists {
		return false
	}
	if !s.Exists {
		return true
	}
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for key, v := range s.Fields {
		ov, ok := other.Fields[key]
		if !ok {
			return false
		}
		if decimalFields[key] {
			a, errA := decimal.NewFromString(v)
			b, errB := decimal.NewFromString(ov)
			if errA != nil || errB != nil || !a.Equal(b) {
				return false
			}
			continue
		}
		if v != ov {
			return false
		}
	}
	return true
}

// Validate checks the state has exactly the field set of its type and that
// every value parses.
func (s RecordState) Validate() error {
	fields, ok := recordFields[s.Type]
	if !ok {
		return fmt.Errorf("unknown record type %q", s.Type)
	}
	if s.ID == uuid.Nil {
		return fmt.Errorf("%s record has no id", s.Type)
	}
	if !s.Exists {
		if len(s.Fields) != 0 {
			return fmt.Errorf("%s %s is marked absent but carries fields", s.Type, s.ID)
		}
		return nil
	}
	if len(s.Fields) != len(fields) {
		return fmt.Errorf("%s %s has %d fields, expected %d", s.Type, s.ID, len(s.Fields), len(fields))
	}
	for _, name := range fields {
		v, ok := s.Fields[name]
		if !ok {
			return fmt.Errorf("%s %s is missing field %q", s.Type, s.ID, name)
		}
		switch {
		case decimalFields[name]:
			if _, err := decimal.NewFromString(v); err != nil {
				return fmt.Errorf("%s %s field %q: %w", s.Type, s.ID, name, err)
			}
		case uuidFields[name]:
			if _, err := uuid.Parse(v); err != nil {
				return fmt.Errorf("%s %s field %q: %w", s.Type, s.ID, name, err)
			}
		case name == FieldSourceID && v != "":
			if _, err := uuid.Parse(v); err != nil {
				return fmt.Errorf("%s %s field %q: %w", s.Type, s.ID, name, err)
			}
		}
	}
	return nil
}

// Snapshot is the state of every record a fix touches.
type Snapshot struct {
	Records []RecordState `json:"records"`
}

// Validate checks every record state
func (s Snapshot) Validate() error {
	if len(s.Records) == 0 {
		return fmt.Errorf("snapshot has no records")
	}
	seen := make(map[EntityRef]bool, len(s.Records))
	for _, r := range s.Records {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Ref()] {
			return fmt.Errorf("snapshot lists %s twice", r.Ref())
		}
		seen[r.Ref()] = true
	}
	return nil
}

// Find returns the state recorded for ref.
func (s Snapshot) Find(ref EntityRef) (RecordState, bool) {
	for _, r := range s.Records {
		if r.Ref() == ref {
			return r, true
		}
	}
	return RecordState{}, false
}

// Matches reports whether both snapshots hold matching states for the same
// records, in any order.
func (s Snapshot) Matches(other Snapshot) bool {
	if len(s.Records) != len(other.Records) {
		return false
	}
	for _, r := range s.Records {
		o, ok := other.Find(r.Ref())
		if !ok || !r.Matches(o) {
			return false
		}
	}
	return true
}

// Field returns a field of the record identified by ref.
func (s Snapshot) Field(ref EntityRef, name string) string {
	r, ok := s.Find(ref)
	if !ok {
		return ""
	}
	return r.Fields[name]
}

func sortStates(states []RecordState) {
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].Type != states[j].Type {
			return states[i].Type < states[j].Type
		}
		return states[i].ID.String() < states[j].ID.String()
	})
}

// AbsentState describes a record that does not exist.
func AbsentState(t EntityType, id uuid.UUID) RecordState {
	return RecordState{Type: t, ID: id, Exists: false}
}

// LedgerState captures the stored fields of a ledger entry.
func LedgerState(e *inventory.StockLedgerEntry) RecordState {
	sourceID := ""
	if e.SourceID != nil && *e.SourceID != uuid.Nil {
		sourceID = e.SourceID.String()
	}
	return RecordState{
		Type:   EntityStockLedger,
		ID:     e.ID,
		Exists: true,
		Fields: map[string]string{
			FieldFarmID:        e.FarmID.String(),
			FieldContextID:     e.ContextID.String(),
			FieldItemID:        e.ItemID.String(),
			FieldSourceType:    string(e.SourceType),
			FieldSourceID:      sourceID,
			FieldAmountIn:      e.AmountIn.String(),
			FieldAmountUsed:    e.AmountUsed.String(),
			FieldAmountMutated: e.AmountMutated.String(),
			FieldAvailable:     e.Available.String(),
		},
	}
}

// PurchaseLineState captures the correctable fields of a purchase line.
func PurchaseLineState(l *purchase.PurchaseLine) RecordState {
	return RecordState{
		Type:   EntityPurchaseLine,
		ID:     l.ID,
		Exists: true,
		Fields: map[string]string{FieldConversionRatio: l.ConversionRatio.String()},
	}
}

// MutationState captures the correctable fields of a mutation header.
func MutationState(m *inventory.MutationRecord) RecordState {
	return RecordState{
		Type:   EntityMutation,
		ID:     m.ID,
		Exists: true,
		Fields: map[string]string{FieldQuantity: m.Quantity.String()},
	}
}

// SummaryState captures the stored fields of a stock summary.
func SummaryState(s *inventory.StockSummary) RecordState {
	return RecordState{
		Type:   EntityStockSummary,
		ID:     s.ID,
		Exists: true,
		Fields: map[string]string{
			FieldFarmID:    s.FarmID.String(),
			FieldContextID: s.ContextID.String(),
			FieldItemID:    s.ItemID.String(),
			FieldQuantity:  s.Quantity.String(),
		},
	}
}

// applyLedgerFields copies validated snapshot fields onto e.
func applyLedgerFields(e *inventory.StockLedgerEntry, fields map[string]string) {
	e.FarmID = uuid.MustParse(fields[FieldFarmID])
	e.ContextID = uuid.MustParse(fields[FieldContextID])
	e.ItemID = uuid.MustParse(fields[FieldItemID])
	e.SourceType = inventory.SourceType(fields[FieldSourceType])
	e.SourceID = nil
	if v := fields[FieldSourceID]; v != "" {
		id := uuid.MustParse(v)
		e.SourceID = &id
	}
	e.AmountIn = decimal.RequireFromString(fields[FieldAmountIn])
	e.AmountUsed = decimal.RequireFromString(fields[FieldAmountUsed])
	e.AmountMutated = decimal.RequireFromString(fields[FieldAmountMutated])
	e.Available = decimal.RequireFromString(fields[FieldAvailable])
}

func applySummaryFields(s *inventory.StockSummary, fields map[string]string) {
	s.FarmID = uuid.MustParse(fields[FieldFarmID])
	s.ContextID = uuid.MustParse(fields[FieldContextID])
	s.ItemID = uuid.MustParse(fields[FieldItemID])
	s.Quantity = decimal.RequireFromString(fields[FieldQuantity])
}
