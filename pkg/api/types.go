package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mnzioki/dukabook/pkg/auth"
	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// listResponse is the envelope for paginated collections.
type listResponse struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = httputil.ParseQueryInt(r, "limit", defaultPageSize)
	offset, _ = httputil.ParseQueryInt(r, "offset", 0)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// dateRange parses optional from/to query params in YYYY-MM-DD form.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return from, to, &ledger.ValidationError{Field: "from", Message: "must be YYYY-MM-DD"}
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return from, to, &ledger.ValidationError{Field: "to", Message: "must be YYYY-MM-DD"}
		}
	}
	return from, to, nil
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	BusinessName string `json:"business_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type authResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

type createSaleRequest struct {
	CustomerID      *string         `json:"customer_id"`
	ProductID       *string         `json:"product_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	AmountTendered  decimal.Decimal `json:"amount_tendered"`
	PaymentMethodID int             `json:"payment_method_id"`
	AccountName     string          `json:"account_name"`
	Reference       string          `json:"reference"`
	SaleDate        *time.Time      `json:"sale_date"`
}

type recordPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID int             `json:"payment_method_id"`
	AccountName     string          `json:"account_name"`
	Reference       string          `json:"reference"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type updateInvoiceStatusRequest struct {
	Status ledger.InvoiceStatus `json:"status"`
}

type changePlanRequest struct {
	Plan   string `json:"plan"`
	Reason string `json:"reason"`
}

type cancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type unregisterPushRequest struct {
	Endpoint string `json:"endpoint"`
}
