package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// legacyMethodNames maps historical free-form payment strings onto the
// canonical payment_methods rows. The mapping is exhaustive over every
// value observed in pre-normalisation data; anything outside it falls
// back to Cash.
var legacyMethodNames = map[string]string{
	"cash":           MethodCash,
	"bank_transfer":  MethodDigital,
	"card":           MethodDigital,
	"mobile_money":   MethodDigital,
	"cheque":         MethodDigital,
	"online_payment": MethodDigital,
	"pending":        MethodCredit,
}

// NormalizeLegacyMethod maps a historical payment string to a canonical
// method name. Matching is case-insensitive and unknown values map to Cash.
func NormalizeLegacyMethod(legacy string) string {
	if name, ok := legacyMethodNames[strings.ToLower(strings.TrimSpace(legacy))]; ok {
		return name
	}
	return MethodCash
}

// LegacyMethodMapping returns a copy of the legacy-to-canonical mapping,
// used to generate the backfill UPDATE during schema migration.
func LegacyMethodMapping() map[string]string {
	out := make(map[string]string, len(legacyMethodNames))
	for k, v := range legacyMethodNames {
		out[k] = v
	}
	return out
}

// balanceTolerance is the largest acceptable drift between total_amount
// and amount_paid + amount_due, one cent.
var balanceTolerance = decimal.NewFromFloat(0.01)

// Balanced reports whether the sale's three amounts reconcile to within
// one cent.
func (s *Sale) Balanced() bool {
	drift := s.TotalAmount.Sub(s.AmountPaid.Add(s.AmountDue))
	return drift.Abs().LessThanOrEqual(balanceTolerance)
}

// statusFor derives the sale status from the amounts.
func statusFor(amountPaid, amountDue decimal.Decimal) SaleStatus {
	switch {
	case amountDue.LessThanOrEqual(balanceTolerance):
		return SaleStatusPaid
	case amountPaid.IsZero():
		return SaleStatusCredit
	default:
		return SaleStatusPartial
	}
}

// ValidateTender checks the method-specific tender details. Digital
// methods require both the paying account name and the provider
// reference; this applies to the up-front tender on a new sale the
// same as to later settlements.
func ValidateTender(method *PaymentMethod, accountName, reference string) error {
	if !method.RequiresReference {
		return nil
	}
	if strings.TrimSpace(accountName) == "" {
		return &ValidationError{Field: "account_name", Message: "required for " + method.Name + " payments"}
	}
	if strings.TrimSpace(reference) == "" {
		return &ValidationError{Field: "reference", Message: "required for " + method.Name + " payments"}
	}
	return nil
}

// ValidatePayment checks a settlement before it is applied.
func ValidatePayment(sale *Sale, method *PaymentMethod, payment *SalePayment) error {
	if payment.Amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if payment.Amount.Sub(sale.AmountDue).GreaterThan(balanceTolerance) {
		return ErrOverpayment
	}
	return ValidateTender(method, payment.AccountName, payment.Reference)
}

// ApplyPayment validates the payment and moves its amount from the
// outstanding balance to the paid balance, updating the sale status.
// The sale is not modified when an error is returned.
func ApplyPayment(sale *Sale, method *PaymentMethod, payment *SalePayment) error {
	if err := ValidatePayment(sale, method, payment); err != nil {
		return err
	}
	sale.AmountPaid = sale.AmountPaid.Add(payment.Amount).Round(2)
	sale.AmountDue = sale.TotalAmount.Sub(sale.AmountPaid).Round(2)
	if sale.AmountDue.IsNegative() {
		sale.AmountDue = decimal.Zero
	}
	sale.Status = statusFor(sale.AmountPaid, sale.AmountDue)
	return nil
}

// NewSale derives the paid/due split and status for a fresh sale from its
// total and the amount tendered up front.
func NewSale(total, tendered decimal.Decimal) (amountPaid, amountDue decimal.Decimal, status SaleStatus, err error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, "", &ValidationError{Field: "total_amount", Message: "must be greater than zero"}
	}
	if tendered.IsNegative() {
		return decimal.Zero, decimal.Zero, "", &ValidationError{Field: "amount_paid", Message: "must not be negative"}
	}
	if tendered.Sub(total).GreaterThan(balanceTolerance) {
		return decimal.Zero, decimal.Zero, "", ErrOverpayment
	}
	amountPaid = tendered.Round(2)
	amountDue = total.Sub(amountPaid).Round(2)
	if amountDue.IsNegative() {
		amountDue = decimal.Zero
	}
	return amountPaid, amountDue, statusFor(amountPaid, amountDue), nil
}
