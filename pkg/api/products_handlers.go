package api

import (
	"net/http"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
)

// createProduct handles POST /api/v1/products. A missing category is
// classified from the product name.
func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var product ledger.Product
	if !httputil.ParseJSONOrError(w, r, &product) {
		return
	}
	if product.Category == "" {
		product.Category = ledger.ClassifyProduct(product.Name)
	}

	if err := s.store.CreateProduct(r.Context(), userID, &product); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	middleware.IncrementUsage(r.Context(), s.usage, userID, "products")
	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "product", "created", product.ID)
	}
	httputil.WriteCreated(w, product)
}

// listProducts handles GET /api/v1/products.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	products, total, err := s.store.ListProducts(r.Context(), middleware.GetUserID(r), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: products, Total: total, Limit: limit, Offset: offset})
}

// listLowStock handles GET /api/v1/products/low-stock.
func (s *Server) listLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.LowStockProducts(r.Context(), middleware.GetUserID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, products)
}

// getProduct handles GET /api/v1/products/{id}.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	product, err := s.store.GetProduct(r.Context(), middleware.GetUserID(r), vars["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

// updateProduct handles PUT /api/v1/products/{id}.
func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var product ledger.Product
	if !httputil.ParseJSONOrError(w, r, &product) {
		return
	}
	product.ID = vars["id"]

	if err := s.store.UpdateProduct(r.Context(), userID, &product); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "product", "updated", product.ID)
	}
	httputil.WriteSuccess(w, product)
}

// deleteProduct handles DELETE /api/v1/products/{id}.
func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	if err := s.store.DeleteProduct(r.Context(), userID, vars["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "product", "deleted", vars["id"])
	}
	httputil.WriteNoContent(w)
}

// adjustStock handles POST /api/v1/products/{id}/stock.
func (s *Server) adjustStock(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	var req adjustStockRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		httputil.WriteValidationError(w, "delta must be non-zero")
		return
	}

	product, err := s.store.AdjustStock(r.Context(), userID, vars["id"], req.Delta)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyChange(userID, "product", "updated", product.ID)
		if req.Delta < 0 && product.LowStock() {
			payload := notifications.NewLowStock(product.Name, product.StockQuantity)
			if err := s.notifier.Notify(r.Context(), userID, payload); err != nil {
				s.logger.WithError(err).WithField("product_id", product.ID).Warn("Failed to send low stock alert")
			}
		}
	}
	httputil.WriteSuccess(w, product)
}
