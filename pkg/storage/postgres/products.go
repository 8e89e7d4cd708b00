package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

const productColumns = `id, user_id, name, category, unit_price, cost_price,
	stock_quantity, low_stock_threshold, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*ledger.Product, error) {
	var p ledger.Product
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Category, &p.UnitPrice,
		&p.CostPrice, &p.StockQuantity, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product. A blank category is classified from
// the product name using the keyword rules.
func (s *Store) CreateProduct(ctx context.Context, userID string, product *ledger.Product) error {
	if strings.TrimSpace(product.Name) == "" {
		return &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if product.StockQuantity < 0 {
		return &ledger.ValidationError{Field: "stock_quantity", Message: "must not be negative"}
	}

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.UserID = userID
	if product.Category == "" {
		product.Category = ledger.ClassifyProduct(product.Name)
	}

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO products (id, user_id, name, category, unit_price,
				cost_price, stock_quantity, low_stock_threshold)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`, product.ID, userID, product.Name, product.Category, product.UnitPrice,
			product.CostPrice, product.StockQuantity, product.LowStockThreshold,
		).Scan(&product.CreatedAt, &product.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	if s.redis != nil {
		s.redis.SetProduct(ctx, userID, product)
	}
	return nil
}

// GetProduct fetches one product, cache-aside through Redis.
func (s *Store) GetProduct(ctx context.Context, userID, productID string) (*ledger.Product, error) {
	if s.redis != nil {
		if p, err := s.redis.GetProduct(ctx, userID, productID); err == nil && p != nil {
			return p, nil
		}
	}

	var product *ledger.Product
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
		if err != nil {
			return mapNotFound(err, "get product")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetProduct(ctx, userID, product)
	}
	return product, nil
}

// ListProducts returns one page of the catalogue plus the unpaged total.
func (s *Store) ListProducts(ctx context.Context, userID string, limit, offset int) ([]*ledger.Product, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var products []*ledger.Product
	var total int64
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
			return fmt.Errorf("failed to count products: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products ORDER BY name, id LIMIT $1 OFFSET $2`,
			limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return fmt.Errorf("failed to scan product: %w", err)
			}
			products = append(products, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateProduct overwrites the mutable columns of a product.
func (s *Store) UpdateProduct(ctx context.Context, userID string, product *ledger.Product) error {
	if strings.TrimSpace(product.Name) == "" {
		return &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if product.Category == "" {
		product.Category = ledger.ClassifyProduct(product.Name)
	}

	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE products
			SET name = $1, category = $2, unit_price = $3, cost_price = $4,
				low_stock_threshold = $5, updated_at = NOW()
			WHERE id = $6
			RETURNING updated_at
		`, product.Name, product.Category, product.UnitPrice, product.CostPrice,
			product.LowStockThreshold, product.ID,
		).Scan(&product.UpdatedAt)
		if err != nil {
			return mapNotFound(err, "update product")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.redis.InvalidateProduct(ctx, userID, product.ID)
	}
	return nil
}

// DeleteProduct removes a product from the catalogue. Past sales keep
// their product_id reference via ON DELETE SET NULL.
func (s *Store) DeleteProduct(ctx context.Context, userID, productID string) error {
	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
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
		s.redis.InvalidateProduct(ctx, userID, productID)
	}
	return nil
}

// AdjustStock applies a signed delta to stock, floored at zero, and
// returns the updated product.
func (s *Store) AdjustStock(ctx context.Context, userID, productID string, delta int) (*ledger.Product, error) {
	var product *ledger.Product
	err := s.write(ctx, userID, func(tx *sql.Tx) error {
		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx, `
			UPDATE products
			SET stock_quantity = GREATEST(stock_quantity + $1, 0), updated_at = NOW()
			WHERE id = $2
			RETURNING `+productColumns+`
		`, delta, productID))
		if err != nil {
			return mapNotFound(err, "adjust stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetProduct(ctx, userID, product)
	}
	return product, nil
}

// LowStockProducts returns every product at or below its restock
// threshold, most depleted first.
func (s *Store) LowStockProducts(ctx context.Context, userID string) ([]*ledger.Product, error) {
	var products []*ledger.Product
	err := s.read(ctx, userID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE stock_quantity <= low_stock_threshold
			ORDER BY stock_quantity, name
		`)
		if err != nil {
			return fmt.Errorf("failed to list low stock products: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return fmt.Errorf("failed to scan product: %w", err)
			}
			products = append(products, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}
