package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mnzioki/dukabook/pkg/export"
	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/storage"
)

// exportReportLimit caps how many rows one export pulls. It matches the
// largest page the storage layer will serve.
const exportReportLimit = 500

// exportReport handles GET /api/v1/reports/{entity}/export. Supported
// entities are sales, expenses, and products; format defaults to CSV.
func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	vars := httputil.GetPathVars(r)

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var report *export.Report
	switch vars["entity"] {
	case "sales":
		sales, _, listErr := s.store.ListSales(r.Context(), userID, storage.SaleFilter{
			From: from, To: to, Limit: exportReportLimit,
		})
		if listErr != nil {
			s.writeDomainError(w, r, listErr)
			return
		}
		report = export.SalesReport(sales)
	case "expenses":
		expenses, _, listErr := s.store.ListExpenses(r.Context(), userID, storage.ExpenseFilter{
			From: from, To: to, Limit: exportReportLimit,
		})
		if listErr != nil {
			s.writeDomainError(w, r, listErr)
			return
		}
		report = export.ExpensesReport(expenses)
	case "products":
		products, _, listErr := s.store.ListProducts(r.Context(), userID, exportReportLimit, 0)
		if listErr != nil {
			s.writeDomainError(w, r, listErr)
			return
		}
		report = export.ProductsReport(products)
	default:
		httputil.WriteNotFoundError(w, "unknown report entity: "+vars["entity"])
		return
	}

	filename := report.Filename(format, time.Now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := report.Write(w, format); err != nil {
		s.logger.WithError(err).WithField("entity", vars["entity"]).Warn("Report export interrupted")
	}
}
