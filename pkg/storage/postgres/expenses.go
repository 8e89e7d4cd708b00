package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/storage"
)

const expenseColumns = `id, user_id, category, description, amount,
	COALESCE(receipt_key, ''), expense_date, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (*ledger.Expense, error) {
	var e ledger.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Category, &e.Description, &e.Amount,
		&e.ReceiptKey, &e.ExpenseDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExpense inserts an expense. ReceiptKey, when set, points at an
// object already stored through PutReceipt.
func (s *Store) CreateExpense(ctx context.Context, userID string, expense *ledger.Expense) error {
	if expense.Amount.IsNegative() || expense.Amount.IsZero() {
		return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if strings.TrimSpace(expense.Description) == "" {
		return &ledger.ValidationError{Field: "description", Message: "must not be empty"}
	}

	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	expense.UserID = userID
	if expense.Category == "" {
		expense.Category = ledger.CategoryOther
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = time.Now().UTC()
	}

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO expenses (id, user_id, category, description, amount, receipt_key, expense_date)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
			RETURNING created_at, updated_at
		`, expense.ID, userID, expense.Category, expense.Description,
			expense.Amount, expense.ReceiptKey, expense.ExpenseDate,
		).Scan(&expense.CreatedAt, &expense.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// GetExpense fetches one expense.
func (s *Store) GetExpense(ctx context.Context, userID, expenseID string) (*ledger.Expense, error) {
	var expense *ledger.Expense
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		var err error
		expense, err = scanExpense(tx.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, expenseID))
		if err != nil {
			return mapNotFound(err, "get expense")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns a filtered page plus the unpaged total.
func (s *Store) ListExpenses(ctx context.Context, userID string, filter storage.ExpenseFilter) ([]*ledger.Expense, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if !filter.From.IsZero() {
		where = append(where, "expense_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "expense_date < "+arg(filter.To))
	}
	cond := strings.Join(where, " AND ")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var expenses []*ledger.Expense
	var total int64
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM expenses WHERE "+cond, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count expenses: %w", err)
		}

		query := fmt.Sprintf(
			"SELECT %s FROM expenses WHERE %s ORDER BY expense_date DESC, id LIMIT %s OFFSET %s",
			expenseColumns, cond, arg(limit), arg(filter.Offset))
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list expenses: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExpense(rows)
			if err != nil {
				return fmt.Errorf("failed to scan expense: %w", err)
			}
			expenses = append(expenses, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

// UpdateExpense overwrites the mutable columns of an expense.
func (s *Store) UpdateExpense(ctx context.Context, userID string, expense *ledger.Expense) error {
	if expense.Amount.IsNegative() || expense.Amount.IsZero() {
		return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}

	return s.write(ctx, userID, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE expenses
			SET category = $1, description = $2, amount = $3,
				receipt_key = NULLIF($4, ''), expense_date = $5, updated_at = NOW()
			WHERE id = $6
			RETURNING updated_at
		`, expense.Category, expense.Description, expense.Amount,
			expense.ReceiptKey, expense.ExpenseDate, expense.ID,
		).Scan(&expense.UpdatedAt)
		if err != nil {
			return mapNotFound(err, "update expense")
		}
		return nil
	})
}

// DeleteExpense removes an expense and its stored receipt, if any.
func (s *Store) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	var receiptKey string
	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			DELETE FROM expenses WHERE id = $1
			RETURNING COALESCE(receipt_key, '')
		`, expenseID).Scan(&receiptKey)
		if err != nil {
			return mapNotFound(err, "delete expense")
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The expense row is already gone, so a failed receipt delete only
	// leaves an orphan object behind.
	if receiptKey != "" && s.s3 != nil {
		if err := s.s3.DeleteObject(ctx, receiptKey); err != nil {
			s.logger.WithError(err).WithField("receipt_key", receiptKey).
				Warn("failed to delete expense receipt")
		}
	}
	return nil
}
