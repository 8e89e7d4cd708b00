package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/storage"
)

// createCustomer handles POST /api/v1/customers.
func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var customer ledger.Customer
	if !httputil.ParseJSONOrError(w, r, &customer) {
		return
	}

	if err := s.store.CreateCustomer(r.Context(), userID, &customer); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	middleware.IncrementUsage(r.Context(), s.usage, userID, "customers")
	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "customer", "created", customer.ID)
	}
	httputil.WriteCreated(w, customer)
}

// listCustomers handles GET /api/v1/customers.
func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	customers, total, err := s.store.ListCustomers(r.Context(), middleware.GetUserID(r), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: customers, Total: total, Limit: limit, Offset: offset})
}

// customerDetail is a customer plus their outstanding credit balance.
type customerDetail struct {
	*ledger.Customer
	OutstandingBalance string `json:"outstanding_balance"`
}

// getCustomer handles GET /api/v1/customers/{id}. The response includes
// the customer's unsettled sales balance.
func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	customer, err := s.store.GetCustomer(r.Context(), userID, vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	outstanding := "0.00"
	sales, _, err := s.store.ListSales(r.Context(), userID, storage.SaleFilter{
		CustomerID: customer.ID,
		Limit:      500,
	})
	if err == nil {
		total := decimal.Zero
		for _, sale := range sales {
			total = total.Add(sale.AmountDue)
		}
		outstanding = total.StringFixed(2)
	}

	httputil.WriteSuccess(w, customerDetail{Customer: customer, OutstandingBalance: outstanding})
}

// updateCustomer handles PUT /api/v1/customers/{id}.
func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var customer ledger.Customer
	if !httputil.ParseJSONOrError(w, r, &customer) {
		return
	}
	customer.ID = vars["id"]

	if err := s.store.UpdateCustomer(r.Context(), userID, &customer); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "customer", "updated", customer.ID)
	}
	httputil.WriteSuccess(w, customer)
}

// deleteCustomer handles DELETE /api/v1/customers/{id}.
func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	if err := s.store.DeleteCustomer(r.Context(), userID, vars["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "customer", "deleted", vars["id"])
	}
	httputil.WriteNoContent(w)
}
