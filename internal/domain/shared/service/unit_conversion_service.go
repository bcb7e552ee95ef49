package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConversionScale is the number of fractional digits kept while converting.
// Rounding to an item's precision happens only in RoundForPersistence.
const ConversionScale int32 = 16

// ConversionError reports a conversion that could not be performed because a
// ratio was zero, negative or missing.
type ConversionError struct {
	Quantity  decimal.Decimal
	FromRatio decimal.Decimal
	ToRatio   decimal.Decimal
	Reason    string
}

// Error implements the error interface
func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s (ratio %s -> %s): %s",
		e.Quantity.String(), e.FromRatio.String(), e.ToRatio.String(), e.Reason)
}

// ConversionResult is the outcome of Convert.
// When Converted is false, Quantity is the untouched input.
type ConversionResult struct {
	Quantity  decimal.Decimal
	Converted bool
}

// UnitConversionService provides unit conversion operations
// This is a domain service as it operates across multiple aggregates
type UnitConversionService struct{}

// NewUnitConversionService creates a new unit conversion service
func NewUnitConversionService() *UnitConversionService {
	return &UnitConversionService{}
}

// Convert converts quantity expressed in a unit with fromUnitRatio into the
// unit with toSmallestUnitRatio. Both ratios are relative to the same base.
//
//	converted = quantity * fromUnitRatio / toSmallestUnitRatio
//
// A zero or negative ratio returns a *ConversionError together with the
// original quantity tagged as unconverted.
func (s *UnitConversionService) Convert(
	quantity decimal.Decimal,
	fromUnitRatio decimal.Decimal,
	toSmallestUnitRatio decimal.Decimal,
) (ConversionResult, error) {
	unconverted := ConversionResult{Quantity: quantity, Converted: false}

	if err := validateRatio(quantity, fromUnitRatio, toSmallestUnitRatio, fromUnitRatio, "source"); err != nil {
		return unconverted, err
	}
	if err := validateRatio(quantity, fromUnitRatio, toSmallestUnitRatio, toSmallestUnitRatio, "target"); err != nil {
		return unconverted, err
	}

	converted := quantity.Mul(fromUnitRatio).DivRound(toSmallestUnitRatio, ConversionScale)
	return ConversionResult{Quantity: converted, Converted: true}, nil
}

// ConvertToSmallestUnit converts and rounds in one step, which is what every
// persisted ledger amount needs.
func (s *UnitConversionService) ConvertToSmallestUnit(
	quantity decimal.Decimal,
	fromUnitRatio decimal.Decimal,
	toSmallestUnitRatio decimal.Decimal,
	precision int32,
) (decimal.Decimal, error) {
	res, err := s.Convert(quantity, fromUnitRatio, toSmallestUnitRatio)
	if err != nil {
		return res.Quantity, err
	}
	return RoundForPersistence(res.Quantity, precision), nil
}

// RoundForPersistence rounds half-up to precision fractional digits.
// Negative values round half away from zero.
func RoundForPersistence(q decimal.Decimal, precision int32) decimal.Decimal {
	if precision < 0 {
		precision = 0
	}
	return q.Round(precision)
}

func validateRatio(quantity, from, to, ratio decimal.Decimal, side string) error {
	if ratio.IsZero() {
		return &ConversionError{Quantity: quantity, FromRatio: from, ToRatio: to, Reason: side + " ratio is zero or missing"}
	}
	if ratio.IsNegative() {
		return &ConversionError{Quantity: quantity, FromRatio: from, ToRatio: to, Reason: side + " ratio is negative"}
	}
	return nil
}
