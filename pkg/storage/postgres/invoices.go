package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

const invoiceColumns = `id, user_id, customer_id, invoice_number, status,
	subtotal, tax_total, total, issue_date, due_date, COALESCE(notes, ''),
	created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*ledger.Invoice, error) {
	var inv ledger.Invoice
	err := row.Scan(&inv.ID, &inv.UserID, &inv.CustomerID, &inv.InvoiceNumber,
		&inv.Status, &inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.IssueDate,
		&inv.DueDate, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice validates and totals the lines, assigns the next
// invoice number for the issue year, and writes the invoice and its
// lines in one transaction.
func (s *Store) CreateInvoice(ctx context.Context, userID string, invoice *ledger.Invoice) error {
	ctx, span := tracer.Start(ctx, "Store.CreateInvoice",
		trace.WithAttributes(attribute.String("invoice.user_id", userID)))
	defer span.End()

	if invoice.CustomerID == "" {
		return &ledger.ValidationError{Field: "customer_id", Message: "must not be empty"}
	}
	if err := invoice.ValidateLines(); err != nil {
		return err
	}
	invoice.ComputeTotals()

	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	invoice.UserID = userID
	if invoice.Status == "" {
		invoice.Status = ledger.InvoiceStatusDraft
	}
	if invoice.IssueDate.IsZero() {
		invoice.IssueDate = time.Now().UTC()
	}
	if invoice.DueDate.IsZero() {
		invoice.DueDate = invoice.IssueDate.AddDate(0, 0, 30)
	}

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		// Sequence per owner and issue year: INV-2026-0001, INV-2026-0002...
		if invoice.InvoiceNumber == "" {
			year := invoice.IssueDate.Year()
			var seq int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) + 1 FROM invoices
				WHERE EXTRACT(YEAR FROM issue_date) = $1
			`, year).Scan(&seq)
			if err != nil {
				return fmt.Errorf("failed to allocate invoice number: %w", err)
			}
			invoice.InvoiceNumber = fmt.Sprintf("INV-%d-%04d", year, seq)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO invoices (id, user_id, customer_id, invoice_number, status,
				subtotal, tax_total, total, issue_date, due_date, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
			RETURNING created_at, updated_at
		`, invoice.ID, userID, invoice.CustomerID, invoice.InvoiceNumber,
			invoice.Status, invoice.Subtotal, invoice.TaxTotal, invoice.Total,
			invoice.IssueDate, invoice.DueDate, invoice.Notes,
		).Scan(&invoice.CreatedAt, &invoice.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		for i := range invoice.Lines {
			line := &invoice.Lines[i]
			if line.ID == "" {
				line.ID = uuid.New().String()
			}
			line.InvoiceID = invoice.ID

			_, err := tx.ExecContext(ctx, `
				INSERT INTO invoice_lines (id, invoice_id, product_id, description,
					quantity, unit_price, discount_rate, tax_rate, line_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, line.ID, invoice.ID, line.ProductID, line.Description,
				line.Quantity, line.UnitPrice, line.DiscountRate, line.TaxRate,
				line.LineTotal)
			if err != nil {
				return fmt.Errorf("failed to create invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if s.redis != nil {
		s.redis.SetInvoice(ctx, userID, invoice)
	}
	return nil
}

// GetInvoice fetches an invoice with its lines, cache-aside through Redis.
func (s *Store) GetInvoice(ctx context.Context, userID, invoiceID string) (*ledger.Invoice, error) {
	if s.redis != nil {
		if inv, err := s.redis.GetInvoice(ctx, userID, invoiceID); err == nil && inv != nil {
			return inv, nil
		}
	}

	var invoice *ledger.Invoice
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		var err error
		invoice, err = scanInvoice(tx.QueryRowContext(ctx,
			`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, invoiceID))
		if err != nil {
			return mapNotFound(err, "get invoice")
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, invoice_id, product_id, description, quantity, unit_price,
				discount_rate, tax_rate, line_total
			FROM invoice_lines
			WHERE invoice_id = $1
			ORDER BY id
		`, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to list invoice lines: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var line ledger.InvoiceLine
			if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID,
				&line.Description, &line.Quantity, &line.UnitPrice,
				&line.DiscountRate, &line.TaxRate, &line.LineTotal); err != nil {
				return fmt.Errorf("failed to scan invoice line: %w", err)
			}
			invoice.Lines = append(invoice.Lines, line)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetInvoice(ctx, userID, invoice)
	}
	return invoice, nil
}

// ListInvoices returns one page of invoice headers, newest first, plus
// the unpaged total. Lines are not loaded for list views.
func (s *Store) ListInvoices(ctx context.Context, userID string, limit, offset int) ([]*ledger.Invoice, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var invoices []*ledger.Invoice
	var total int64
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total); err != nil {
			return fmt.Errorf("failed to count invoices: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+invoiceColumns+` FROM invoices ORDER BY issue_date DESC, id LIMIT $1 OFFSET $2`,
			limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			inv, err := scanInvoice(rows)
			if err != nil {
				return fmt.Errorf("failed to scan invoice: %w", err)
			}
			invoices = append(invoices, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// validInvoiceTransitions maps each status to the states it may move to.
var validInvoiceTransitions = map[ledger.InvoiceStatus][]ledger.InvoiceStatus{
	ledger.InvoiceStatusDraft:   {ledger.InvoiceStatusSent, ledger.InvoiceStatusCancelled},
	ledger.InvoiceStatusSent:    {ledger.InvoiceStatusPaid, ledger.InvoiceStatusOverdue, ledger.InvoiceStatusCancelled},
	ledger.InvoiceStatusOverdue: {ledger.InvoiceStatusPaid, ledger.InvoiceStatusCancelled},
}

func invoiceTransitionAllowed(from, to ledger.InvoiceStatus) bool {
	for _, allowed := range validInvoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateInvoiceStatus moves an invoice along its lifecycle. Terminal
// states (paid, cancelled) cannot be left.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, userID, invoiceID string, status ledger.InvoiceStatus) error {
	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		var current ledger.InvoiceStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID,
		).Scan(&current)
		if err != nil {
			return mapNotFound(err, "get invoice")
		}

		if current == status {
			return nil
		}
		if !invoiceTransitionAllowed(current, status) {
			return &ledger.ValidationError{
				Field:   "status",
				Message: fmt.Sprintf("cannot move invoice from %s to %s", current, status),
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2
		`, status, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.redis.InvalidateInvoice(ctx, userID, invoiceID)
	}
	return nil
}

// MarkInvoicePaid settles an invoice from sent or overdue.
func (s *Store) MarkInvoicePaid(ctx context.Context, userID, invoiceID string) error {
	return s.UpdateInvoiceStatus(ctx, userID, invoiceID, ledger.InvoiceStatusPaid)
}

// OverdueInvoice identifies an invoice flipped to overdue by the sweep.
type OverdueInvoice struct {
	ID            string
	UserID        string
	InvoiceNumber string
}

// MarkOverdueInvoices flips sent invoices past their due date to
// overdue across all users. The connection role owns the tables, so
// this sweep is not filtered by the per-user RLS policies.
func (s *Store) MarkOverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error) {
	ctx, span := tracer.Start(ctx, "Store.MarkOverdueInvoices")
	defer span.End()

	rows, err := s.cm.Primary().QueryContext(ctx, `
		UPDATE invoices
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND due_date < $3
		RETURNING id, user_id, invoice_number
	`, ledger.InvoiceStatusOverdue, ledger.InvoiceStatusSent, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	defer rows.Close()

	var flagged []OverdueInvoice
	for rows.Next() {
		var inv OverdueInvoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.InvoiceNumber); err != nil {
			return nil, fmt.Errorf("failed to scan overdue invoice: %w", err)
		}
		flagged = append(flagged, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.redis != nil {
		for _, inv := range flagged {
			s.redis.InvalidateInvoice(ctx, inv.UserID, inv.ID)
		}
	}
	span.SetAttributes(attribute.Int("invoices.overdue", len(flagged)))
	return flagged, nil
}
