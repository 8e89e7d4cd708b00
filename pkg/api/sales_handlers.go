package api

import (
	"net/http"
	"time"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
	"github.com/mnzioki/dukabook/pkg/storage"
)

// listPaymentMethods handles GET /api/v1/payment-methods.
func (s *Server) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.store.ListPaymentMethods(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, methods)
}

// createSale handles POST /api/v1/sales.
func (s *Server) createSale(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req createSaleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sale := &ledger.Sale{
		CustomerID:      req.CustomerID,
		ProductID:       req.ProductID,
		Description:     req.Description,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		TotalAmount:     req.Quantity.Mul(req.UnitPrice).Round(2),
		AmountPaid:      req.AmountTendered,
		PaymentMethodID: req.PaymentMethodID,
		AccountName:     req.AccountName,
		Reference:       req.Reference,
	}
	if req.SaleDate != nil {
		sale.SaleDate = *req.SaleDate
	}

	if err := s.store.CreateSale(r.Context(), userID, sale); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	middleware.IncrementUsage(r.Context(), s.usage, userID, "sales")
	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "sale", "created", sale.ID)
	}
	s.checkLowStock(r, userID, sale.ProductID)

	httputil.WriteCreated(w, sale)
}

// checkLowStock sends a low-stock alert when a sale drained a product
// to its restock threshold.
func (s *Server) checkLowStock(r *http.Request, userID string, productID *string) {
	if s.notifier == nil || productID == nil {
		return
	}

	product, err := s.store.GetProduct(r.Context(), userID, *productID)
	if err != nil || !product.LowStock() {
		return
	}

	payload := notifications.NewLowStock(product.Name, product.StockQuantity)
	if err := s.notifier.Notify(r.Context(), userID, payload); err != nil {
		s.logger.WithError(err).WithField("product_id", product.ID).Warn("Failed to send low stock alert")
	}
}

// listSales handles GET /api/v1/sales.
func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	from, to, err := dateRange(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	limit, offset := pagination(r)

	filter := storage.SaleFilter{
		Status:     ledger.SaleStatus(r.URL.Query().Get("status")),
		CustomerID: r.URL.Query().Get("customer_id"),
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	}

	sales, total, err := s.store.ListSales(r.Context(), userID, filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: sales, Total: total, Limit: limit, Offset: offset})
}

// getSale handles GET /api/v1/sales/{id}.
func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	sale, err := s.store.GetSale(r.Context(), middleware.GetUserID(r), vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sale)
}

// recordPayment handles POST /api/v1/sales/{id}/payments.
func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var req recordPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	payment := &ledger.SalePayment{
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
		AccountName:     req.AccountName,
		Reference:       req.Reference,
		PaidAt:          time.Now().UTC(),
	}

	sale, err := s.store.RecordPayment(r.Context(), userID, vars["id"], payment)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		payload := notifications.NewPaymentReceived(payment.Amount.StringFixed(2), sale.ID)
		if err := s.notifier.Notify(r.Context(), userID, payload); err != nil {
			s.logger.WithError(err).WithField("sale_id", sale.ID).Warn("Failed to send payment notification")
		}
	}

	httputil.WriteCreated(w, sale)
}

// listPayments handles GET /api/v1/sales/{id}/payments.
func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	payments, err := s.store.ListPayments(r.Context(), middleware.GetUserID(r), vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, payments)
}
