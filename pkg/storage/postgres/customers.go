package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

const customerColumns = `id, user_id, name, COALESCE(phone, ''), COALESCE(email, ''),
	COALESCE(address, ''), created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*ledger.Customer, error) {
	var c ledger.Customer
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.Address,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer inserts a customer record.
func (s *Store) CreateCustomer(ctx context.Context, userID string, customer *ledger.Customer) error {
	if strings.TrimSpace(customer.Name) == "" {
		return &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}

	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	customer.UserID = userID

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO customers (id, user_id, name, phone, email, address)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
			RETURNING created_at, updated_at
		`, customer.ID, userID, customer.Name, customer.Phone, customer.Email,
			customer.Address,
		).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	if s.redis != nil {
		s.redis.SetCustomer(ctx, userID, customer)
	}
	return nil
}

// GetCustomer fetches one customer, cache-aside through Redis.
func (s *Store) GetCustomer(ctx context.Context, userID, customerID string) (*ledger.Customer, error) {
	if s.redis != nil {
		if c, err := s.redis.GetCustomer(ctx, userID, customerID); err == nil && c != nil {
			return c, nil
		}
	}

	var customer *ledger.Customer
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		var err error
		customer, err = scanCustomer(tx.QueryRowContext(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE id = $1`, customerID))
		if err != nil {
			return mapNotFound(err, "get customer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetCustomer(ctx, userID, customer)
	}
	return customer, nil
}

// ListCustomers returns one page of customers plus the unpaged total.
func (s *Store) ListCustomers(ctx context.Context, userID string, limit, offset int) ([]*ledger.Customer, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var customers []*ledger.Customer
	var total int64
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
			return fmt.Errorf("failed to count customers: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+customerColumns+` FROM customers ORDER BY name, id LIMIT $1 OFFSET $2`,
			limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list customers: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				return fmt.Errorf("failed to scan customer: %w", err)
			}
			customers = append(customers, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// UpdateCustomer overwrites the mutable columns of a customer.
func (s *Store) UpdateCustomer(ctx context.Context, userID string, customer *ledger.Customer) error {
	if strings.TrimSpace(customer.Name) == "" {
		return &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE customers
			SET name = $1, phone = NULLIF($2, ''), email = NULLIF($3, ''),
				address = NULLIF($4, ''), updated_at = NOW()
			WHERE id = $5
			RETURNING updated_at
		`, customer.Name, customer.Phone, customer.Email, customer.Address,
			customer.ID,
		).Scan(&customer.UpdatedAt)
		if err != nil {
			return mapNotFound(err, "update customer")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.redis.InvalidateCustomer(ctx, userID, customer.ID)
	}
	return nil
}

// DeleteCustomer removes a customer. Sales and invoices keep their
// customer_id reference via ON DELETE SET NULL.
func (s *Store) DeleteCustomer(ctx context.Context, userID, customerID string) error {
	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		if err != nil {
			return fmt.Errorf("failed to delete customer: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ledger.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.redis.InvalidateCustomer(ctx, userID, customerID)
	}
	return nil
}
