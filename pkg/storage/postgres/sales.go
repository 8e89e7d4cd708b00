package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/storage"
)

const saleColumns = `id, user_id, customer_id, product_id, description, quantity,
	unit_price, total_amount, amount_paid, amount_due, payment_method_id,
	status, sale_date, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (*ledger.Sale, error) {
	var s ledger.Sale
	err := row.Scan(&s.ID, &s.UserID, &s.CustomerID, &s.ProductID, &s.Description,
		&s.Quantity, &s.UnitPrice, &s.TotalAmount, &s.AmountPaid, &s.AmountDue,
		&s.PaymentMethodID, &s.Status, &s.SaleDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSale records a sale and its first settlement in one transaction.
// AmountPaid carries the tendered amount on input; the split into
// paid/due and the derived status are computed here, not by the caller.
func (s *Store) CreateSale(ctx context.Context, userID string, sale *ledger.Sale) error {
	ctx, span := tracer.Start(ctx, "Store.CreateSale",
		trace.WithAttributes(attribute.String("sale.user_id", userID)))
	defer span.End()

	if sale.Quantity.IsNegative() || sale.Quantity.IsZero() {
		return &ledger.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if sale.TotalAmount.IsNegative() {
		return &ledger.ValidationError{Field: "total_amount", Message: "must not be negative"}
	}

	paid, due, status, err := ledger.NewSale(sale.TotalAmount, sale.AmountPaid)
	if err != nil {
		return err
	}
	sale.AmountPaid = paid
	sale.AmountDue = due
	sale.Status = status

	method, err := s.GetPaymentMethod(ctx, sale.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("failed to resolve payment method: %w", err)
	}
	if sale.AmountPaid.IsPositive() {
		if err := ledger.ValidateTender(method, sale.AccountName, sale.Reference); err != nil {
			return err
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	sale.UserID = userID
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}

	err = s.write(ctx, userID, func(tx *sql.Tx) error {
		// The row starts fully owed; the settlement trigger moves
		// amount_paid/amount_due/status when payment rows land.
		err := tx.QueryRowContext(ctx, `
			INSERT INTO sales (id, user_id, customer_id, product_id, description,
				quantity, unit_price, total_amount, amount_paid, amount_due,
				payment_method_id, status, sale_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`, sale.ID, userID, sale.CustomerID, sale.ProductID, sale.Description,
			sale.Quantity, sale.UnitPrice, sale.TotalAmount,
			sale.PaymentMethodID, ledger.SaleStatusCredit, sale.SaleDate,
		).Scan(&sale.CreatedAt, &sale.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}

		// The tendered amount, if any, is the first entry in the
		// settlement ledger.
		if sale.AmountPaid.IsPositive() {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sale_payments (id, sale_id, payment_method_id, amount,
					account_name, reference, paid_at)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
			`, uuid.New().String(), sale.ID, method.ID, sale.AmountPaid,
				sale.AccountName, sale.Reference, sale.SaleDate)
			if err != nil {
				return fmt.Errorf("failed to record initial payment: %w", err)
			}
		}

		// Sold from stock: decrement, floored at zero.
		if sale.ProductID != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE products
				SET stock_quantity = GREATEST(stock_quantity - $1, 0), updated_at = NOW()
				WHERE id = $2 AND user_id = $3
			`, sale.Quantity.IntPart(), *sale.ProductID, userID)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if s.redis != nil {
		s.redis.SetSale(ctx, userID, sale)
		if sale.ProductID != nil {
			s.redis.InvalidateProduct(ctx, userID, *sale.ProductID)
		}
	}
	return nil
}

// GetSale fetches one sale, cache-aside through Redis.
func (s *Store) GetSale(ctx context.Context, userID, saleID string) (*ledger.Sale, error) {
	if s.redis != nil {
		if sale, err := s.redis.GetSale(ctx, userID, saleID); err == nil && sale != nil {
			return sale, nil
		}
	}

	var sale *ledger.Sale
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		var err error
		sale, err = scanSale(tx.QueryRowContext(ctx,
			`SELECT `+saleColumns+` FROM sales WHERE id = $1`, saleID))
		if err != nil {
			return mapNotFound(err, "get sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetSale(ctx, userID, sale)
	}
	return sale, nil
}

// ListSales returns a filtered page plus the unpaged total.
func (s *Store) ListSales(ctx context.Context, userID string, filter storage.SaleFilter) ([]*ledger.Sale, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if !filter.From.IsZero() {
		where = append(where, "sale_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "sale_date < "+arg(filter.To))
	}
	cond := strings.Join(where, " AND ")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var sales []*ledger.Sale
	var total int64
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sales WHERE "+cond, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count sales: %w", err)
		}

		query := fmt.Sprintf(
			"SELECT %s FROM sales WHERE %s ORDER BY sale_date DESC, id LIMIT %s OFFSET %s",
			saleColumns, cond, arg(limit), arg(filter.Offset))
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list sales: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sale, err := scanSale(rows)
			if err != nil {
				return fmt.Errorf("failed to scan sale: %w", err)
			}
			sales = append(sales, sale)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

// RecordPayment settles part or all of an outstanding sale. The sale
// row is locked for the duration so concurrent settlements serialize,
// and the returned sale reflects the new split.
func (s *Store) RecordPayment(ctx context.Context, userID, saleID string, payment *ledger.SalePayment) (*ledger.Sale, error) {
	ctx, span := tracer.Start(ctx, "Store.RecordPayment",
		trace.WithAttributes(
			attribute.String("sale.id", saleID),
			attribute.String("sale.user_id", userID),
		))
	defer span.End()

	method, err := s.GetPaymentMethod(ctx, payment.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment method: %w", err)
	}

	var sale *ledger.Sale
	err = s.write(ctx, userID, func(tx *sql.Tx) error {
		var err error
		sale, err = scanSale(tx.QueryRowContext(ctx,
			`SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, saleID))
		if err != nil {
			return mapNotFound(err, "get sale")
		}

		if err := ledger.ApplyPayment(sale, method, payment); err != nil {
			return err
		}

		if payment.ID == "" {
			payment.ID = uuid.New().String()
		}
		payment.SaleID = saleID
		if payment.PaidAt.IsZero() {
			payment.PaidAt = time.Now().UTC()
		}

		// The settlement trigger applies the amount to the sale row;
		// the Go-side sale already carries the same recomputed state
		// from ApplyPayment.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_payments (id, sale_id, payment_method_id, amount, account_name, reference, paid_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		`, payment.ID, saleID, method.ID, payment.Amount, payment.AccountName,
			payment.Reference, payment.PaidAt)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetSale(ctx, userID, sale)
	}
	return sale, nil
}

// ListPayments returns the settlement ledger for a sale, oldest first.
func (s *Store) ListPayments(ctx context.Context, userID, saleID string) ([]*ledger.SalePayment, error) {
	var payments []*ledger.SalePayment
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT p.id, p.sale_id, p.payment_method_id, p.amount,
				COALESCE(p.account_name, ''), COALESCE(p.reference, ''),
				p.paid_at, p.created_at
			FROM sale_payments p
			JOIN sales s ON s.id = p.sale_id
			WHERE p.sale_id = $1
			ORDER BY p.paid_at, p.created_at
		`, saleID)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p ledger.SalePayment
			if err := rows.Scan(&p.ID, &p.SaleID, &p.PaymentMethodID, &p.Amount,
				&p.AccountName, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan payment: %w", err)
			}
			payments = append(payments, &p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// SalesTotals aggregates the settlement columns over a date range.
func (s *Store) SalesTotals(ctx context.Context, userID string, from, to time.Time) (storage.SalesTotals, error) {
	var totals storage.SalesTotals
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			SELECT COUNT(*),
				COALESCE(SUM(total_amount), 0),
				COALESCE(SUM(amount_paid), 0),
				COALESCE(SUM(amount_due), 0)
			FROM sales
			WHERE sale_date >= $1 AND sale_date < $2
		`, from, to).Scan(&totals.Count, &totals.TotalAmount, &totals.AmountPaid, &totals.AmountDue)
	})
	if err != nil {
		return storage.SalesTotals{}, fmt.Errorf("failed to aggregate sales: %w", err)
	}
	return totals, nil
}
