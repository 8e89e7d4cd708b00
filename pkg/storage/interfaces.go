package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

// SaleFilter narrows ListSales. Zero values mean no constraint.
type SaleFilter struct {
	Status     ledger.SaleStatus
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ExpenseFilter narrows ListExpenses.
type ExpenseFilter struct {
	Category string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Store is the persistence surface for all ledger records. Every method
// scopes reads and writes to userID; the Postgres implementation routes
// that through row-level security.
type Store interface {
	// Payment methods (global lookup table)
	ListPaymentMethods(ctx context.Context) ([]*ledger.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id int) (*ledger.PaymentMethod, error)

	// Sales
	CreateSale(ctx context.Context, userID string, sale *ledger.Sale) error
	GetSale(ctx context.Context, userID, saleID string) (*ledger.Sale, error)
	ListSales(ctx context.Context, userID string, filter SaleFilter) ([]*ledger.Sale, int64, error)
	RecordPayment(ctx context.Context, userID, saleID string, payment *ledger.SalePayment) (*ledger.Sale, error)
	ListPayments(ctx context.Context, userID, saleID string) ([]*ledger.SalePayment, error)

	// Products
	CreateProduct(ctx context.Context, userID string, product *ledger.Product) error
	GetProduct(ctx context.Context, userID, productID string) (*ledger.Product, error)
	ListProducts(ctx context.Context, userID string, limit, offset int) ([]*ledger.Product, int64, error)
	UpdateProduct(ctx context.Context, userID string, product *ledger.Product) error
	DeleteProduct(ctx context.Context, userID, productID string) error
	AdjustStock(ctx context.Context, userID, productID string, delta int) (*ledger.Product, error)
	LowStockProducts(ctx context.Context, userID string) ([]*ledger.Product, error)

	// Customers
	CreateCustomer(ctx context.Context, userID string, customer *ledger.Customer) error
	GetCustomer(ctx context.Context, userID, customerID string) (*ledger.Customer, error)
	ListCustomers(ctx context.Context, userID string, limit, offset int) ([]*ledger.Customer, int64, error)
	UpdateCustomer(ctx context.Context, userID string, customer *ledger.Customer) error
	DeleteCustomer(ctx context.Context, userID, customerID string) error

	// Expenses
	CreateExpense(ctx context.Context, userID string, expense *ledger.Expense) error
	GetExpense(ctx context.Context, userID, expenseID string) (*ledger.Expense, error)
	ListExpenses(ctx context.Context, userID string, filter ExpenseFilter) ([]*ledger.Expense, int64, error)
	UpdateExpense(ctx context.Context, userID string, expense *ledger.Expense) error
	DeleteExpense(ctx context.Context, userID, expenseID string) error

	// Invoices
	CreateInvoice(ctx context.Context, userID string, invoice *ledger.Invoice) error
	GetInvoice(ctx context.Context, userID, invoiceID string) (*ledger.Invoice, error)
	ListInvoices(ctx context.Context, userID string, limit, offset int) ([]*ledger.Invoice, int64, error)
	UpdateInvoiceStatus(ctx context.Context, userID, invoiceID string, status ledger.InvoiceStatus) error
	MarkInvoicePaid(ctx context.Context, userID, invoiceID string) error

	// Reporting
	SalesTotals(ctx context.Context, userID string, from, to time.Time) (SalesTotals, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// SalesTotals is an aggregate over a date range, by settlement column.
type SalesTotals struct {
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	AmountDue   decimal.Decimal `json:"amount_due"`
}

// Config holds storage backend configuration
type Config struct {
	// PostgreSQL settings
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// S3 settings (receipt and export attachments)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis cache settings
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache settings
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"sale":            5 * time.Minute,
			"product":         15 * time.Minute,
			"customer":        15 * time.Minute,
			"invoice":         10 * time.Minute,
			"payment_methods": 1 * time.Hour,
			"list":            2 * time.Minute,
		},
		L1CacheSize: 1024,
	}
}
