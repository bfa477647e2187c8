package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateSaleTotalsTierDiscountBeforeTax(t *testing.T) {
	// one unit at 85000, Gold tier 10%, tax 18%
	totals, err := CalculateSaleTotals(
		[]PriceLine{{Qty: d("1"), UnitRate: d("85000")}},
		d("10"), d("18"),
	)
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(d("85000")), "subtotal = %s", totals.Subtotal)
	assert.True(t, totals.DiscountAmount.Equal(d("8500")), "discount = %s", totals.DiscountAmount)
	// tax applies to the discounted base 76500, not the subtotal
	assert.True(t, totals.TaxAmount.Equal(d("13770")), "tax = %s", totals.TaxAmount)
	assert.True(t, totals.TotalAmount.Equal(d("90270")), "total = %s", totals.TotalAmount)
}

func TestCalculateSaleTotalsMultiLine(t *testing.T) {
	totals, err := CalculateSaleTotals(
		[]PriceLine{
			{Qty: d("2"), UnitRate: d("1500")},
			{Qty: d("3"), UnitRate: d("400")},
		},
		d("0"), d("5"),
	)
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(d("4200")))
	assert.True(t, totals.DiscountAmount.IsZero())
	assert.True(t, totals.TaxAmount.Equal(d("210")))
	assert.True(t, totals.TotalAmount.Equal(d("4410")))
}

func TestCalculateSaleTotalsRoundsOnceHalfUp(t *testing.T) {
	// subtotal 100.005, no discount, no tax: the half-cent rounds up at the
	// final total only
	totals, err := CalculateSaleTotals(
		[]PriceLine{{Qty: d("3"), UnitRate: d("33.335")}},
		d("0"), d("0"),
	)
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(d("100.005")), "subtotal keeps full precision, got %s", totals.Subtotal)
	assert.True(t, totals.TotalAmount.Equal(d("100.01")), "total = %s", totals.TotalAmount)
}

func TestCalculateSaleTotalsRejectsBadInput(t *testing.T) {
	line := []PriceLine{{Qty: d("1"), UnitRate: d("100")}}

	cases := []struct {
		name     string
		lines    []PriceLine
		discount decimal.Decimal
		taxRate  decimal.Decimal
	}{
		{"no lines", nil, d("0"), d("0")},
		{"zero qty", []PriceLine{{Qty: d("0"), UnitRate: d("100")}}, d("0"), d("0")},
		{"negative qty", []PriceLine{{Qty: d("-1"), UnitRate: d("100")}}, d("0"), d("0")},
		{"negative rate", []PriceLine{{Qty: d("1"), UnitRate: d("-100")}}, d("0"), d("0")},
		{"negative discount", line, d("-1"), d("0")},
		{"discount over 100", line, d("101"), d("0")},
		{"negative tax", line, d("0"), d("-1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateSaleTotals(tc.lines, tc.discount, tc.taxRate)
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCalculateSaleTotalsHundredPercentDiscount(t *testing.T) {
	totals, err := CalculateSaleTotals(
		[]PriceLine{{Qty: d("1"), UnitRate: d("250")}},
		d("100"), d("18"),
	)
	require.NoError(t, err)

	assert.True(t, totals.DiscountAmount.Equal(d("250")))
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, totals.TotalAmount.IsZero())
}
