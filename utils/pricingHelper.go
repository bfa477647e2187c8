package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PriceLine struct {
	Qty      decimal.Decimal
	UnitRate decimal.Decimal
}

type SaleTotals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

var decimalOneHundred = decimal.NewFromInt(100)

// CalculateSaleTotals computes subtotal, tier discount, tax and total for an
// ordered set of sale lines. Business rule: discount before tax — tax applies
// to (subtotal - discount). Rounding happens once, at the final total, to two
// decimal places (decimal.Round is round-half-away-from-zero, i.e. half-up
// for the non-negative amounts handled here).
func CalculateSaleTotals(lines []PriceLine, tierDiscountPercent decimal.Decimal, taxRate decimal.Decimal) (*SaleTotals, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "at least one line is required"}
	}
	if tierDiscountPercent.IsNegative() || tierDiscountPercent.GreaterThan(decimalOneHundred) {
		return nil, &ValidationError{Field: "tier_discount", Reason: "must be between 0 and 100"}
	}
	if taxRate.IsNegative() {
		return nil, &ValidationError{Field: "tax_rate", Reason: "must not be negative"}
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		if !line.Qty.IsPositive() {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].qty", i), Reason: "must be greater than zero"}
		}
		if line.UnitRate.IsNegative() {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].unit_rate", i), Reason: "must not be negative"}
		}
		subtotal = subtotal.Add(line.Qty.Mul(line.UnitRate))
	}

	discountAmount := CalculateDiscountAmount(subtotal, tierDiscountPercent, "P")
	taxAmount := CalculateTaxAmount(subtotal.Sub(discountAmount), taxRate)
	totalAmount := subtotal.Sub(discountAmount).Add(taxAmount).Round(2)

	return &SaleTotals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		TotalAmount:    totalAmount,
	}, nil
}

// CalculateTaxAmount is tax-exclusive: (amount / 100) * taxRate
func CalculateTaxAmount(amount decimal.Decimal, taxRate decimal.Decimal) decimal.Decimal {
	if taxRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return amount.DivRound(decimalOneHundred, 4).Mul(taxRate)
}

func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {

	var discountAmount decimal.Decimal

	if discount.GreaterThan(decimal.NewFromFloat(0.0)) {
		if discountType == "P" {
			discountAmount = subTotal.Mul(discount).DivRound(decimalOneHundred, 4)
		} else {
			discountAmount = discount
		}
	} else {
		discountAmount = decimal.NewFromFloat(0.0)
	}

	return discountAmount
}
