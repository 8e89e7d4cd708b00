package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// LineTotal computes the billed amount for one invoice line:
// quantity * unit_price, discounted, then taxed, rounded to two places.
func LineTotal(quantity, unitPrice, discountRate, taxRate decimal.Decimal) decimal.Decimal {
	gross := quantity.Mul(unitPrice)
	discounted := gross.Mul(decimal.NewFromInt(1).Sub(discountRate.Div(oneHundred)))
	taxed := discounted.Mul(decimal.NewFromInt(1).Add(taxRate.Div(oneHundred)))
	return taxed.Round(2)
}

// ComputeTotals fills LineTotal on every line and sets the invoice
// subtotal, tax total and grand total. Subtotal is the discounted
// pre-tax sum; TaxTotal is the difference to the grand total.
func (inv *Invoice) ComputeTotals() {
	subtotal := decimal.Zero
	total := decimal.Zero
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.LineTotal = LineTotal(line.Quantity, line.UnitPrice, line.DiscountRate, line.TaxRate)
		preTax := line.Quantity.Mul(line.UnitPrice).
			Mul(decimal.NewFromInt(1).Sub(line.DiscountRate.Div(oneHundred))).
			Round(2)
		subtotal = subtotal.Add(preTax)
		total = total.Add(line.LineTotal)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.Total = total.Round(2)
	inv.TaxTotal = inv.Total.Sub(inv.Subtotal).Round(2)
}

// ValidateLines rejects invoices with no lines, non-positive quantities
// or prices, or rates outside 0..100.
func (inv *Invoice) ValidateLines() error {
	if len(inv.Lines) == 0 {
		return &ValidationError{Field: "lines", Message: "invoice needs at least one line"}
	}
	for _, line := range inv.Lines {
		if line.Quantity.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: "quantity", Message: "must be greater than zero"}
		}
		if line.UnitPrice.IsNegative() {
			return &ValidationError{Field: "unit_price", Message: "must not be negative"}
		}
		if line.DiscountRate.IsNegative() || line.DiscountRate.GreaterThan(oneHundred) {
			return &ValidationError{Field: "discount_rate", Message: "must be between 0 and 100"}
		}
		if line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(oneHundred) {
			return &ValidationError{Field: "tax_rate", Message: "must be between 0 and 100"}
		}
		if strings.TrimSpace(line.Description) == "" {
			return &ValidationError{Field: "description", Message: "required"}
		}
	}
	return nil
}
