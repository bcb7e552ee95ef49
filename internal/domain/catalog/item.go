package catalog

import (
	"strings"

	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPrecision is the number of fractional digits persisted for an
	// item that does not declare its own.
	DefaultPrecision int32 = 4
	// MaxPrecision is the scale of the ledger, mutation and summary amount
	// columns. Rounding to more digits would not survive a write.
	MaxPrecision int32 = 4
)

// Item is a stockable product (feed, medicine, ovk) tracked in its smallest unit.
// Its Units table defines how purchase units relate to a common base.
type Item struct {
	ID           uuid.UUID
	Name         string
	SmallestUnit string
	Precision    int32
	Units        []ItemUnit
}

// ItemUnit states that one UnitCode equals Ratio base units of its item.
type ItemUnit struct {
	ID       uuid.UUID
	ItemID   uuid.UUID
	UnitCode string
	Ratio    decimal.Decimal
}

// NewItem creates an item whose smallest unit has ratio 1.
func NewItem(name, smallestUnit string, precision int32) (*Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Item name cannot be empty")
	}
	if strings.TrimSpace(smallestUnit) == "" {
		return nil, shared.NewDomainError("INVALID_UNIT", "Smallest unit cannot be empty")
	}
	if precision < 0 || precision > MaxPrecision {
		return nil, shared.NewDomainError("INVALID_PRECISION", "Precision must be between 0 and 4")
	}
	item := &Item{
		ID:           uuid.New(),
		Name:         name,
		SmallestUnit: smallestUnit,
		Precision:    precision,
	}
	item.Units = append(item.Units, ItemUnit{
		ID:       uuid.New(),
		ItemID:   item.ID,
		UnitCode: smallestUnit,
		Ratio:    decimal.NewFromInt(1),
	})
	return item, nil
}

// AddUnit registers or replaces the ratio for a unit code.
func (i *Item) AddUnit(unitCode string, ratio decimal.Decimal) error {
	if strings.TrimSpace(unitCode) == "" {
		return shared.NewDomainError("INVALID_UNIT", "Unit code cannot be empty")
	}
	if !ratio.IsPositive() {
		return shared.NewDomainError("INVALID_CONVERSION_RATE", "Conversion rate must be positive")
	}
	for idx := range i.Units {
		if strings.EqualFold(i.Units[idx].UnitCode, unitCode) {
			i.Units[idx].Ratio = ratio
			return nil
		}
	}
	i.Units = append(i.Units, ItemUnit{ID: uuid.New(), ItemID: i.ID, UnitCode: unitCode, Ratio: ratio})
	return nil
}

// RatioFor returns the configured ratio for unitCode (case-insensitive).
func (i *Item) RatioFor(unitCode string) (decimal.Decimal, bool) {
	for _, u := range i.Units {
		if strings.EqualFold(u.UnitCode, unitCode) {
			return u.Ratio, true
		}
	}
	return decimal.Zero, false
}

// SmallestUnitRatio returns the ratio of the smallest unit, 1 when the unit
// table has no row for it.
func (i *Item) SmallestUnitRatio() decimal.Decimal {
	if r, ok := i.RatioFor(i.SmallestUnit); ok && r.IsPositive() {
		return r
	}
	return decimal.NewFromInt(1)
}

// PersistencePrecision returns the number of fractional digits ledger amounts
// of this item are stored with. Zero means whole units; values outside the
// column scale are clamped to it.
func (i *Item) PersistencePrecision() int32 {
	switch {
	case i.Precision < 0:
		return 0
	case i.Precision > MaxPrecision:
		return MaxPrecision
	}
	return i.Precision
}
