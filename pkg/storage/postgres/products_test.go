package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

func productRows(products ...*ledger.Product) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "category", "unit_price", "cost_price",
		"stock_quantity", "low_stock_threshold", "created_at", "updated_at",
	})
	for _, p := range products {
		rows.AddRow(p.ID, p.UserID, p.Name, p.Category, p.UnitPrice, p.CostPrice,
			p.StockQuantity, p.LowStockThreshold, p.CreatedAt, p.UpdatedAt)
	}
	return rows
}

func TestCreateProduct_ClassifiesBlankCategory(t *testing.T) {
	store, mock := newTestStore(t)

	product := &ledger.Product{
		Name:          "Fresh Milk 500ml",
		UnitPrice:     decimal.NewFromInt(60),
		StockQuantity: 24,
	}

	now := time.Now()
	expectUserScope(mock, "user-1")
	mock.ExpectQuery("INSERT INTO products").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	err := store.CreateProduct(context.Background(), "user-1", product)
	require.NoError(t, err)

	assert.Equal(t, "Dairy", product.Category)
	assert.NotEmpty(t, product.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct_KeepsExplicitCategory(t *testing.T) {
	store, mock := newTestStore(t)

	product := &ledger.Product{
		Name:     "Fresh Milk 500ml",
		Category: "Beverages",
	}

	now := time.Now()
	expectUserScope(mock, "user-1")
	mock.ExpectQuery("INSERT INTO products").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	err := store.CreateProduct(context.Background(), "user-1", product)
	require.NoError(t, err)
	assert.Equal(t, "Beverages", product.Category)
}

func TestCreateProduct_RejectsBlankName(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.CreateProduct(context.Background(), "user-1", &ledger.Product{Name: "  "})
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

func TestCreateProduct_RejectsNegativeStock(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.CreateProduct(context.Background(), "user-1", &ledger.Product{
		Name:          "Bar Soap",
		StockQuantity: -1,
	})
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

func TestAdjustStock_ReturnsUpdatedProduct(t *testing.T) {
	store, mock := newTestStore(t)

	updated := &ledger.Product{
		ID:                "p-1",
		UserID:            "user-1",
		Name:              "Sugar 1kg",
		Category:          "Cooking",
		UnitPrice:         decimal.NewFromInt(150),
		CostPrice:         decimal.NewFromInt(120),
		StockQuantity:     7,
		LowStockThreshold: 5,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	expectUserScope(mock, "user-1")
	mock.ExpectQuery("UPDATE products").
		WithArgs(-3, "p-1").
		WillReturnRows(productRows(updated))
	mock.ExpectCommit()

	product, err := store.AdjustStock(context.Background(), "user-1", "p-1", -3)
	require.NoError(t, err)

	assert.Equal(t, 7, product.StockQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStock_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	expectUserScope(mock, "user-1")
	mock.ExpectQuery("UPDATE products").
		WithArgs(5, "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.AdjustStock(context.Background(), "user-1", "missing", 5)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	expectUserScope(mock, "user-1")
	mock.ExpectExec("DELETE FROM products").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteProduct(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLowStockProducts(t *testing.T) {
	store, mock := newTestStore(t)

	depleted := &ledger.Product{
		ID: "p-1", UserID: "user-1", Name: "Tea Leaves 250g",
		Category: "Beverages", StockQuantity: 0, LowStockThreshold: 5,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	low := &ledger.Product{
		ID: "p-2", UserID: "user-1", Name: "Wheat Flour 2kg",
		Category: "Grains & Cereals", StockQuantity: 3, LowStockThreshold: 5,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	expectUserScope(mock, "user-1")
	mock.ExpectQuery("FROM products").
		WillReturnRows(productRows(depleted, low))
	mock.ExpectCommit()

	products, err := store.LowStockProducts(context.Background(), "user-1")
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.True(t, products[0].LowStock())
	assert.True(t, products[1].LowStock())
	assert.Equal(t, "Tea Leaves 250g", products[0].Name)
}

func TestListProducts_Pagination(t *testing.T) {
	store, mock := newTestStore(t)

	p := &ledger.Product{
		ID: "p-1", UserID: "user-1", Name: "Avocado",
		Category: "Fruits & Vegetables", StockQuantity: 40, LowStockThreshold: 10,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	expectUserScope(mock, "user-1")
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(37))
	mock.ExpectQuery("FROM products").
		WithArgs(10, 20).
		WillReturnRows(productRows(p))
	mock.ExpectCommit()

	products, total, err := store.ListProducts(context.Background(), "user-1", 10, 20)
	require.NoError(t, err)

	assert.Equal(t, int64(37), total)
	require.Len(t, products, 1)
	assert.Equal(t, "Avocado", products[0].Name)
}
