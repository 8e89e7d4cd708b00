package notifications

import (
	"fmt"
	"strings"
)

// Notification types carried in the payload's type field. Clients route
// on these when deciding which screen a click should open.
const (
	TypeLimitWarning    = "limit_warning"
	TypeLowStock        = "low_stock"
	TypePaymentReceived = "payment_received"
	TypeInvoiceOverdue  = "invoice_overdue"
	TypeEntityEvent     = "entity_event"
)

const (
	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"
)

// PayloadData carries click-through metadata.
type PayloadData struct {
	URL string `json:"url"`
}

// Payload is the JSON object a service worker parses out of a push
// message. Field names are part of the client contract.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	Tag   string      `json:"tag"`
	Type  string      `json:"type"`
	Data  PayloadData `json:"data"`
}

// Validate checks the fields the client cannot render without.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("payload title is required")
	}
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("payload body is required")
	}
	if p.Type == "" {
		return fmt.Errorf("payload type is required")
	}
	return nil
}

// newPayload fills in the icon and badge defaults shared by every
// notification type.
func newPayload(notifType, tag, title, body, url string) Payload {
	return Payload{
		Title: title,
		Body:  body,
		Icon:  defaultIcon,
		Badge: defaultBadge,
		Tag:   tag,
		Type:  notifType,
		Data:  PayloadData{URL: url},
	}
}

// NewLimitWarning announces that a feature counter crossed a usage
// threshold. The tag collapses repeated warnings for the same feature
// into a single visible notification.
func NewLimitWarning(feature string, percentage float64) Payload {
	return newPayload(
		TypeLimitWarning,
		"limit-"+feature,
		"Usage limit warning",
		fmt.Sprintf("You have used %.0f%% of your %s allowance this month.", percentage, feature),
		"/settings/subscription",
	)
}

// NewLimitExceeded announces a hard limit hit; the client routes this
// type to an upgrade prompt rather than a toast.
func NewLimitExceeded(feature string, current, limit int) Payload {
	return newPayload(
		TypeLimitWarning,
		"limit-"+feature,
		"Usage limit reached",
		fmt.Sprintf("You have reached your %s limit (%d of %d). Upgrade to continue.", feature, current, limit),
		"/settings/subscription",
	)
}

// NewLowStock flags a product at or below its low stock threshold.
func NewLowStock(productName string, quantity int) Payload {
	return newPayload(
		TypeLowStock,
		"stock-"+productName,
		"Low stock",
		fmt.Sprintf("%s is running low (%d left).", productName, quantity),
		"/inventory",
	)
}

// NewPaymentReceived announces a payment landing against a sale.
func NewPaymentReceived(amount, saleID string) Payload {
	return newPayload(
		TypePaymentReceived,
		"payment-"+saleID,
		"Payment received",
		fmt.Sprintf("A payment of %s was recorded.", amount),
		"/sales/"+saleID,
	)
}

// NewInvoiceOverdue flags an invoice that passed its due date unpaid.
func NewInvoiceOverdue(invoiceNumber, invoiceID string) Payload {
	return newPayload(
		TypeInvoiceOverdue,
		"invoice-"+invoiceID,
		"Invoice overdue",
		fmt.Sprintf("Invoice %s is past its due date.", invoiceNumber),
		"/invoices/"+invoiceID,
	)
}
