package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Common errors returned by ledger operations and storage lookups.
var (
	// ErrNotFound indicates the requested record does not exist or is not
	// visible to the current user.
	ErrNotFound = errors.New("record not found")

	// ErrOverpayment indicates a payment larger than the outstanding balance.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")
)

// ValidationError describes a rejected field on an incoming record.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SaleStatus reflects how much of a sale has been settled.
type SaleStatus string

const (
	SaleStatusPaid    SaleStatus = "paid"
	SaleStatusPartial SaleStatus = "partial"
	SaleStatusCredit  SaleStatus = "credit"
)

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Canonical payment method names. The payment_methods table is seeded with
// exactly these three rows.
const (
	MethodCash    = "Cash"
	MethodDigital = "Digital"
	MethodCredit  = "Credit"
)

// PaymentMethod is a row of the payment_methods lookup table.
type PaymentMethod struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	RequiresReference bool      `json:"requires_reference"`
	CreatedAt         time.Time `json:"created_at"`
}

// Sale records a single sale, possibly settled over multiple payments.
// TotalAmount always equals AmountPaid + AmountDue to within one cent.
type Sale struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	CustomerID      *string         `json:"customer_id,omitempty"`
	ProductID       *string         `json:"product_id,omitempty"`
	Description     string          `json:"description,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	PaymentMethodID int             `json:"payment_method_id"`
	Status          SaleStatus      `json:"status"`
	SaleDate        time.Time       `json:"sale_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Tender details for the up-front payment. Only consulted at
	// creation time; settled into the first sale_payments row.
	AccountName string `json:"account_name,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// SalePayment is one settlement against a sale. Digital payments carry the
// account name and transaction reference from the provider.
type SalePayment struct {
	ID              string          `json:"id"`
	SaleID          string          `json:"sale_id"`
	PaymentMethodID int             `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	AccountName     string          `json:"account_name,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	PaidAt          time.Time       `json:"paid_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Product is a stocked item. StockQuantity may go to zero but never below.
type Product struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LowStock reports whether the product has fallen to or below its
// restock threshold.
func (p *Product) LowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// Customer is a buyer tracked for credit sales and invoicing.
type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expense is a business outgoing, optionally backed by a stored receipt.
type Expense struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptKey  string          `json:"receipt_key,omitempty"`
	ExpenseDate time.Time       `json:"expense_date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Invoice is a customer-facing bill assembled from line items.
type Invoice struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	CustomerID    string          `json:"customer_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        InvoiceStatus   `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Notes         string          `json:"notes,omitempty"`
	Lines         []InvoiceLine   `json:"lines,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InvoiceLine is a single billed item. Rates are percentages (7.5 means
// 7.5%), and LineTotal is stored denormalised at write time.
type InvoiceLine struct {
	ID           string          `json:"id"`
	InvoiceID    string          `json:"invoice_id"`
	ProductID    *string         `json:"product_id,omitempty"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// Overdue reports whether an unpaid invoice is past its due date.
func (inv *Invoice) Overdue(now time.Time) bool {
	switch inv.Status {
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return false
	}
	return now.After(inv.DueDate)
}
