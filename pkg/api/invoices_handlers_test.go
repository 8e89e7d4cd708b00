package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

func TestCreateInvoice_ComputesTotals(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
		"customer_id":    "cust-1",
		"invoice_number": "INV-0001",
		"lines": []map[string]any{
			{
				"description":   "Consulting",
				"quantity":      "2",
				"unit_price":    "1000",
				"discount_rate": "10",
				"tax_rate":      "16",
			},
			{
				"description": "Materials",
				"quantity":    "1",
				"unit_price":  "500",
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var invoice ledger.Invoice
	decodeBody(t, rec, &invoice)

	// 2 * 1000 * 0.9 * 1.16 = 2088, plus 500.
	assert.Equal(t, "2088", invoice.Lines[0].LineTotal.String())
	assert.Equal(t, "500", invoice.Lines[1].LineTotal.String())
	assert.Equal(t, "2588", invoice.Total.String())
}

func TestCreateInvoice_RejectsBadLine(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
		"customer_id": "cust-1",
		"lines": []map[string]any{
			{"description": "bad", "quantity": "0", "unit_price": "100"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayInvoice(t *testing.T) {
	env := newTestEnv(t)

	invoice := &ledger.Invoice{
		CustomerID:    "cust-1",
		InvoiceNumber: "INV-0002",
		Status:        ledger.InvoiceStatusSent,
	}
	require.NoError(t, env.store.CreateInvoice(t.Context(), env.userID, invoice))

	rec := env.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated ledger.Invoice
	decodeBody(t, rec, &updated)
	assert.Equal(t, ledger.InvoiceStatusPaid, updated.Status)
}

func TestUpdateInvoiceStatus(t *testing.T) {
	env := newTestEnv(t)

	invoice := &ledger.Invoice{CustomerID: "cust-1", InvoiceNumber: "INV-0003"}
	require.NoError(t, env.store.CreateInvoice(t.Context(), env.userID, invoice))

	rec := env.do(t, http.MethodPut, "/api/v1/invoices/"+invoice.ID+"/status", updateInvoiceStatusRequest{
		Status: ledger.InvoiceStatusSent,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/invoices/"+invoice.ID+"/status", map[string]any{
		"status": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
