// Package ledger defines the core business records of DukaBook: sales,
// payments, invoices, products, customers and expenses, together with the
// money arithmetic that ties them together.
//
// # Overview
//
// All monetary values are held as shopspring decimals and rounded to two
// places at the point where a total is produced. A sale tracks three
// amounts (total, paid, due) and the package guarantees they reconcile to
// within one cent at all times.
//
// # Payment Methods
//
// DukaBook recognises three canonical payment methods:
//
//   - Cash: physical cash at the till
//   - Digital: M-Pesa, bank transfer, card and other electronic rails
//   - Credit: the customer takes the goods and owes the balance
//
// Historical records used free-form strings (cash, mobile_money, cheque,
// online_payment, ...). NormalizeLegacyMethod maps every historical value
// onto a canonical method; anything unrecognised is treated as Cash.
//
// # Usage Example
//
// Record a payment against a credit sale:
//
//	if err := ledger.ApplyPayment(sale, method, payment); err != nil {
//		if errors.Is(err, ledger.ErrOverpayment) {
//			// reject: amount exceeds outstanding balance
//		}
//	}
//
// Compute an invoice line:
//
//	total := ledger.LineTotal(line.Quantity, line.UnitPrice, line.DiscountRate, line.TaxRate)
//
// # Related Packages
//
//   - pkg/storage: persistence of ledger records
//   - pkg/usage: per-feature usage counters gated on ledger writes
package ledger
