package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestUnitConversionService_Convert(t *testing.T) {
	svc := NewUnitConversionService()

	tests := []struct {
		name     string
		quantity decimal.Decimal
		from     decimal.Decimal
		to       decimal.Decimal
		want     decimal.Decimal
		wantErr  bool
	}{
		{
			name:     "sacks to kg (1 sack = 50 kg)",
			quantity: d("10"),
			from:     d("50"),
			to:       d("1"),
			want:     d("500"),
		},
		{
			name:     "grams relative to kg base",
			quantity: d("2.5"),
			from:     d("1"),
			to:       d("0.001"),
			want:     d("2500"),
		},
		{
			name:     "fractional result keeps working precision",
			quantity: d("1"),
			from:     d("1"),
			to:       d("3"),
			want:     d("0.3333333333333333"),
		},
		{
			name:     "zero source ratio",
			quantity: d("10"),
			from:     decimal.Zero,
			to:       d("1"),
			wantErr:  true,
		},
		{
			name:     "zero target ratio",
			quantity: d("10"),
			from:     d("50"),
			to:       decimal.Zero,
			wantErr:  true,
		},
		{
			name:     "negative ratio",
			quantity: d("10"),
			from:     d("-2"),
			to:       d("1"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Convert(tt.quantity, tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				var convErr *ConversionError
				assert.True(t, errors.As(err, &convErr))
				assert.False(t, res.Converted)
				assert.True(t, res.Quantity.Equal(tt.quantity), "unconverted quantity must be returned as-is")
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Converted)
			assert.True(t, res.Quantity.Equal(tt.want), "got %s want %s", res.Quantity, tt.want)
		})
	}
}

func TestUnitConversionService_RoundTrip(t *testing.T) {
	svc := NewUnitConversionService()
	tolerance := d("0.0000000001")

	quantities := []string{"1", "10", "0.125", "12345.6789", "7"}
	ratios := []string{"1", "3", "7", "50", "0.001", "24", "2.2046"}

	for _, q := range quantities {
		for _, r1 := range ratios {
			for _, r2 := range ratios {
				there, err := svc.Convert(d(q), d(r1), d(r2))
				require.NoError(t, err)
				back, err := svc.Convert(there.Quantity, d(r2), d(r1))
				require.NoError(t, err)

				diff := back.Quantity.Sub(d(q)).Abs()
				assert.True(t, diff.LessThanOrEqual(tolerance),
					"q=%s r1=%s r2=%s round trip gave %s", q, r1, r2, back.Quantity)
			}
		}
	}
}

func TestUnitConversionService_ConvertToSmallestUnit(t *testing.T) {
	svc := NewUnitConversionService()

	got, err := svc.ConvertToSmallestUnit(d("1"), d("1"), d("3"), 4)
	require.NoError(t, err)
	assert.Equal(t, "0.3333", got.String())

	got, err = svc.ConvertToSmallestUnit(d("10"), decimal.Zero, d("1"), 4)
	require.Error(t, err)
	assert.Equal(t, "10", got.String())
}

func TestRoundForPersistence(t *testing.T) {
	tests := []struct {
		in        string
		precision int32
		want      string
	}{
		{"2.345", 2, "2.35"},
		{"2.344", 2, "2.34"},
		{"0.5", 0, "1"},
		{"499.99995", 4, "500"},
		{"-2.345", 2, "-2.35"},
		{"1.5", -1, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundForPersistence(d(tt.in), tt.precision).String())
		})
	}
}
