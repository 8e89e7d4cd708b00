package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

// Format selects the output encoding for a report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query string value to a Format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Extension returns the filename extension for the format.
func (f Format) Extension() string {
	if f == FormatXLSX {
		return "xlsx"
	}
	return "csv"
}

// Report is a flat tabular export: one header row plus data rows.
type Report struct {
	Name    string
	Sheet   string
	Headers []string
	Rows    [][]string
}

// Filename returns the attachment filename for the report, stamped with
// the export date.
func (r *Report) Filename(format Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", r.Name, now.Format("2006-01-02"), format.Extension())
}

// Write renders the report in the given format.
func (r *Report) Write(w io.Writer, format Format) error {
	if format == FormatXLSX {
		return r.WriteXLSX(w)
	}
	return r.WriteCSV(w)
}

// WriteCSV renders the report as RFC 4180 CSV.
func (r *Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(r.Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range r.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX renders the report as a single-sheet workbook with a bold
// header row.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheet = "Report"
	}

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range r.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for rowIdx, row := range r.Rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheet, cell, value)
		}
	}

	for i := range r.Headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		f.SetColWidth(sheet, col, col, 18)
	}

	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SalesReport flattens sales into an export table.
func SalesReport(sales []*ledger.Sale) *Report {
	report := &Report{
		Name:  "sales",
		Sheet: "Sales",
		Headers: []string{
			"Date", "Description", "Quantity", "Unit Price", "Total",
			"Paid", "Due", "Status",
		},
	}
	for _, sale := range sales {
		report.Rows = append(report.Rows, []string{
			sale.SaleDate.Format("2006-01-02"),
			sale.Description,
			sale.Quantity.String(),
			sale.UnitPrice.StringFixed(2),
			sale.TotalAmount.StringFixed(2),
			sale.AmountPaid.StringFixed(2),
			sale.AmountDue.StringFixed(2),
			string(sale.Status),
		})
	}
	return report
}

// ExpensesReport flattens expenses into an export table.
func ExpensesReport(expenses []*ledger.Expense) *Report {
	report := &Report{
		Name:    "expenses",
		Sheet:   "Expenses",
		Headers: []string{"Date", "Category", "Description", "Amount", "Receipt"},
	}
	for _, expense := range expenses {
		hasReceipt := "no"
		if expense.ReceiptKey != "" {
			hasReceipt = "yes"
		}
		report.Rows = append(report.Rows, []string{
			expense.ExpenseDate.Format("2006-01-02"),
			expense.Category,
			expense.Description,
			expense.Amount.StringFixed(2),
			hasReceipt,
		})
	}
	return report
}

// ProductsReport flattens the product list into an export table.
func ProductsReport(products []*ledger.Product) *Report {
	report := &Report{
		Name:  "products",
		Sheet: "Products",
		Headers: []string{
			"Name", "Category", "Unit Price", "Cost Price", "Stock",
			"Low Stock Threshold", "Low Stock",
		},
	}
	for _, product := range products {
		lowStock := "no"
		if product.LowStock() {
			lowStock = "yes"
		}
		report.Rows = append(report.Rows, []string{
			product.Name,
			product.Category,
			product.UnitPrice.StringFixed(2),
			product.CostPrice.StringFixed(2),
			strconv.Itoa(product.StockQuantity),
			strconv.Itoa(product.LowStockThreshold),
			lowStock,
		})
	}
	return report
}
