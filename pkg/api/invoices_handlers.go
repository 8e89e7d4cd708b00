package api

import (
	"net/http"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
)

// createInvoice handles POST /api/v1/invoices. Line totals and the
// invoice total are recomputed server-side; client-supplied totals are
// ignored.
func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var invoice ledger.Invoice
	if !httputil.ParseJSONOrError(w, r, &invoice) {
		return
	}

	if err := invoice.ValidateLines(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	invoice.ComputeTotals()

	if err := s.store.CreateInvoice(r.Context(), userID, &invoice); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	middleware.IncrementUsage(r.Context(), s.usage, userID, "invoices")
	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "invoice", "created", invoice.ID)
	}
	httputil.WriteCreated(w, invoice)
}

// listInvoices handles GET /api/v1/invoices.
func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	invoices, total, err := s.store.ListInvoices(r.Context(), middleware.GetUserID(r), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: invoices, Total: total, Limit: limit, Offset: offset})
}

// getInvoice handles GET /api/v1/invoices/{id}.
func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	invoice, err := s.store.GetInvoice(r.Context(), middleware.GetUserID(r), vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invoice)
}

var validInvoiceStatuses = map[ledger.InvoiceStatus]bool{
	ledger.InvoiceStatusDraft:     true,
	ledger.InvoiceStatusSent:      true,
	ledger.InvoiceStatusPaid:      true,
	ledger.InvoiceStatusOverdue:   true,
	ledger.InvoiceStatusCancelled: true,
}

// updateInvoiceStatus handles PUT /api/v1/invoices/{id}/status.
func (s *Server) updateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var req updateInvoiceStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validInvoiceStatuses[req.Status] {
		httputil.WriteValidationError(w, "unknown invoice status")
		return
	}

	if err := s.store.UpdateInvoiceStatus(r.Context(), userID, vars["id"], req.Status); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "invoice", "updated", vars["id"])
	}

	invoice, err := s.store.GetInvoice(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invoice)
}

// payInvoice handles POST /api/v1/invoices/{id}/pay.
func (s *Server) payInvoice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	if err := s.store.MarkInvoicePaid(r.Context(), userID, vars["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	invoice, err := s.store.GetInvoice(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "invoice", "updated", invoice.ID)
		payload := notifications.NewPaymentReceived(invoice.Total.StringFixed(2), invoice.ID)
		if err := s.notifier.Notify(r.Context(), userID, payload); err != nil {
			s.logger.WithError(err).WithField("invoice_id", invoice.ID).Warn("Failed to send invoice payment notification")
		}
	}
	httputil.WriteSuccess(w, invoice)
}
