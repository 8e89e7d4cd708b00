package api

import (
	"io"
	"net/http"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/storage"
)

// maxReceiptBytes caps receipt uploads at 5 MB.
const maxReceiptBytes = 5 << 20

// createExpense handles POST /api/v1/expenses.
func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var expense ledger.Expense
	if !httputil.ParseJSONOrError(w, r, &expense) {
		return
	}

	if err := s.store.CreateExpense(r.Context(), userID, &expense); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	middleware.IncrementUsage(r.Context(), s.usage, userID, "expenses")
	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "expense", "created", expense.ID)
	}
	httputil.WriteCreated(w, expense)
}

// listExpenses handles GET /api/v1/expenses.
func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	limit, offset := pagination(r)

	filter := storage.ExpenseFilter{
		Category: r.URL.Query().Get("category"),
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   offset,
	}

	expenses, total, err := s.store.ListExpenses(r.Context(), middleware.GetUserID(r), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: expenses, Total: total, Limit: limit, Offset: offset})
}

// getExpense handles GET /api/v1/expenses/{id}.
func (s *Server) getExpense(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	expense, err := s.store.GetExpense(r.Context(), middleware.GetUserID(r), vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, expense)
}

// updateExpense handles PUT /api/v1/expenses/{id}.
func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var expense ledger.Expense
	if !httputil.ParseJSONOrError(w, r, &expense) {
		return
	}
	expense.ID = vars["id"]

	if err := s.store.UpdateExpense(r.Context(), userID, &expense); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "expense", "updated", expense.ID)
	}
	httputil.WriteSuccess(w, expense)
}

// deleteExpense handles DELETE /api/v1/expenses/{id}. A stored receipt
// goes with it.
func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	expense, err := s.store.GetExpense(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if err := s.store.DeleteExpense(r.Context(), userID, vars["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if expense.ReceiptKey != "" && s.receipts != nil {
		if err := s.receipts.DeleteObject(r.Context(), expense.ReceiptKey); err != nil {
			s.logger.WithError(err).WithField("receipt_key", expense.ReceiptKey).Warn("Failed to delete receipt object")
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "expense", "deleted", vars["id"])
	}
	httputil.WriteNoContent(w)
}

// uploadReceipt handles POST /api/v1/expenses/{id}/receipt. The raw
// request body is the receipt image or PDF.
func (s *Server) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		httputil.WriteServiceUnavailable(w, "attachment storage not configured")
		return
	}

	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	expense, err := s.store.GetExpense(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	content, err := io.ReadAll(io.LimitReader(r.Body, maxReceiptBytes+1))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if len(content) == 0 {
		httputil.WriteValidationError(w, "receipt body is empty")
		return
	}
	if len(content) > maxReceiptBytes {
		httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "receipt exceeds 5 MB")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	key, err := s.receipts.PutReceipt(r.Context(), content, contentType)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	expense.ReceiptKey = key
	if err := s.store.UpdateExpense(r.Context(), userID, expense); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, expense)
}

// downloadReceipt handles GET /api/v1/expenses/{id}/receipt.
func (s *Server) downloadReceipt(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		httputil.WriteServiceUnavailable(w, "attachment storage not configured")
		return
	}

	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	expense, err := s.store.GetExpense(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if expense.ReceiptKey == "" {
		httputil.WriteNotFoundError(w, "expense has no receipt")
		return
	}

	body, err := s.receipts.GetObject(r.Context(), expense.ReceiptKey)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		s.logger.WithError(err).WithField("receipt_key", expense.ReceiptKey).Warn("Receipt download interrupted")
	}
}
