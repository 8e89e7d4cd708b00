//go:build integration
// +build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/plans"
	"github.com/mnzioki/dukabook/pkg/storage"
	"github.com/mnzioki/dukabook/pkg/subscriptions"
	"github.com/mnzioki/dukabook/pkg/usage"
)

func setupMigratedDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("dukabook_test"),
		pgcontainer.WithUsername("dukabook"),
		pgcontainer.WithPassword("dukabook_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		pgcontainer.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		container.Terminate(cleanupCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Ping())
	require.NoError(t, RunMigrations(ctx, db, testLogger()))
	return db
}

func TestRunMigrations_Integration(t *testing.T) {
	db := setupMigratedDB(t)
	ctx := context.Background()

	// Every migration is journaled as applied.
	var applied int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM migration_log WHERE status = 'applied'`).Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, len(GetMigrations()), applied)

	// Payment methods seeded exactly once.
	var methods int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_methods`).Scan(&methods)
	require.NoError(t, err)
	assert.Equal(t, 3, methods)

	var requiresRef bool
	err = db.QueryRowContext(ctx,
		`SELECT requires_reference FROM payment_methods WHERE name = 'Digital'`).Scan(&requiresRef)
	require.NoError(t, err)
	assert.True(t, requiresRef)

	// Re-running the full sequence is a no-op.
	require.NoError(t, RunMigrations(ctx, db, testLogger()))
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_methods`).Scan(&methods)
	require.NoError(t, err)
	assert.Equal(t, 3, methods)
}

func TestSettlementTrigger_Integration(t *testing.T) {
	db := setupMigratedDB(t)
	ctx := context.Background()

	var userID string
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash) VALUES ('shop@example.com', 'x')
		RETURNING id
	`).Scan(&userID)
	require.NoError(t, err)

	var saleID string
	err = db.QueryRowContext(ctx, `
		INSERT INTO sales (user_id, description, quantity, unit_price, total_amount,
			amount_paid, amount_due, payment_method_id, status)
		VALUES ($1, 'Wholesale order', 10, 200, 2000, 0, 2000,
			(SELECT id FROM payment_methods WHERE name = 'Credit'), 'credit')
		RETURNING id
	`, userID).Scan(&saleID)
	require.NoError(t, err)

	// First partial payment.
	_, err = db.ExecContext(ctx, `
		INSERT INTO sale_payments (sale_id, payment_method_id, amount)
		VALUES ($1, (SELECT id FROM payment_methods WHERE name = 'Cash'), 500)
	`, saleID)
	require.NoError(t, err)

	var paid, due string
	var status string
	err = db.QueryRowContext(ctx,
		`SELECT amount_paid, amount_due, status FROM sales WHERE id = $1`, saleID).
		Scan(&paid, &due, &status)
	require.NoError(t, err)
	assert.Equal(t, "500.00", paid)
	assert.Equal(t, "1500.00", due)
	assert.Equal(t, "partial", status)

	// Settle the remainder.
	_, err = db.ExecContext(ctx, `
		INSERT INTO sale_payments (sale_id, payment_method_id, amount)
		VALUES ($1, (SELECT id FROM payment_methods WHERE name = 'Cash'), 1500)
	`, saleID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`SELECT amount_paid, amount_due, status FROM sales WHERE id = $1`, saleID).
		Scan(&paid, &due, &status)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", paid)
	assert.Equal(t, "0.00", due)
	assert.Equal(t, "paid", status)
}

// integrationStore wires a Store directly over the migrated database,
// with no Redis or S3 attached.
func integrationStore(t *testing.T, db *sql.DB) *Store {
	t.Helper()
	methods, err := lru.New[int, *ledger.PaymentMethod](16)
	require.NoError(t, err)
	return &Store{
		cm:      &ConnectionManager{primary: db},
		methods: methods,
		config:  storage.DefaultConfig(),
		logger:  testLogger(),
	}
}

func createTestUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	var id string
	require.NoError(t, db.QueryRowContext(context.Background(), `
		INSERT INTO users (email, password_hash) VALUES ($1, 'x')
		RETURNING id`, email).Scan(&id))
	return id
}

// Row policies only bite for non-owner roles, so this goes through the
// Store, which assumes the application role inside every user-scoped
// transaction. The role itself is created by the migrations.
func TestRowLevelSecurity_Integration(t *testing.T) {
	db := setupMigratedDB(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	store := integrationStore(t, db)

	milk := &ledger.Product{Name: "Fresh Milk 500ml", UnitPrice: decimal.NewFromInt(60)}
	require.NoError(t, store.CreateProduct(ctx, alice, milk))
	soap := &ledger.Product{Name: "Bar Soap", UnitPrice: decimal.NewFromInt(120)}
	require.NoError(t, store.CreateProduct(ctx, bob, soap))

	products, total, err := store.ListProducts(ctx, alice, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "alice should only see her own products")
	require.Len(t, products, 1)
	assert.Equal(t, "Fresh Milk 500ml", products[0].Name)

	// Fetching another tenant's product by ID comes back not-found, not
	// someone else's row.
	_, err = store.GetProduct(ctx, alice, soap.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := store.GetProduct(ctx, bob, soap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bar Soap", got.Name)
}

func TestSubscriptionLifecycle_Integration(t *testing.T) {
	db := setupMigratedDB(t)
	ctx := context.Background()

	userID := createTestUser(t, db, "duka@example.com")
	subs := subscriptions.NewPostgresService(db)

	created, err := subs.Create(ctx, userID, plans.TierFree, "signup")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, plans.TierFree, created.Plan)
	assert.False(t, created.CurrentPeriodStart.IsZero())
	assert.True(t, created.CurrentPeriodEnd.After(created.CurrentPeriodStart))

	got, err := subs.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, plans.TierFree, got.Plan)

	upgraded, err := subs.ChangePlan(ctx, userID, plans.TierStarter, "owner", "upgrade")
	require.NoError(t, err)
	assert.Equal(t, plans.TierStarter, upgraded.Plan)

	// One audit row per transition: creation plus the plan change.
	var auditRows int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscription_audit_log WHERE user_id = $1`, userID).
		Scan(&auditRows))
	assert.Equal(t, 2, auditRows)

	var changeRows int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscription_audit_log
		WHERE user_id = $1 AND old_plan = 'free' AND new_plan = 'starter'`, userID).
		Scan(&changeRows))
	assert.Equal(t, 1, changeRows, "exactly one writer records the plan change")
}

func TestFeatureUsageIncrement_Integration(t *testing.T) {
	db := setupMigratedDB(t)
	ctx := context.Background()

	userID := createTestUser(t, db, "counter@example.com")
	_, err := subscriptions.NewPostgresService(db).Create(ctx, userID, plans.TierFree, "signup")
	require.NoError(t, err)

	svc := usage.NewPostgresService(db)
	require.NoError(t, svc.Increment(ctx, userID, plans.FeatureSales, 1))
	require.NoError(t, svc.Increment(ctx, userID, plans.FeatureSales, 1))

	var rows, count, limit int
	var pct float64
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(current_count), MAX(limit_count), MAX(usage_percentage)
		FROM feature_usage
		WHERE user_id = $1 AND feature_code = $2`, userID, plans.FeatureSales).
		Scan(&rows, &count, &limit, &pct))
	assert.Equal(t, 1, rows, "repeat increments reuse the period row")
	assert.Equal(t, 2, count)
	assert.Equal(t, plans.Limit(plans.TierFree, plans.FeatureSales), limit)
	assert.InDelta(t, 4.0, pct, 0.01)
}
