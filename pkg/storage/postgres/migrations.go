package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/observability"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// legacyMethodValuesSQL renders the legacy payment string mapping as a
// VALUES list, e.g. ('cash', 'Cash'), ('pending', 'Credit'), ...
// Generated from the Go mapping so backfill and runtime normalization
// cannot drift apart.
func legacyMethodValuesSQL() string {
	mapping := ledger.LegacyMethodMapping()
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("('%s', '%s')", k, mapping[k]))
	}
	return strings.Join(pairs, ",\n\t\t\t\t")
}

// GetMigrations returns the full schema sequence, oldest first.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create core tables",
			SQL: `
				CREATE EXTENSION IF NOT EXISTS "pgcrypto";

				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					business_name VARCHAR(255),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS customers (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					phone VARCHAR(32),
					email VARCHAR(255),
					address TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS products (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					category VARCHAR(64) NOT NULL DEFAULT 'Other',
					unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
					cost_price NUMERIC(14,2) NOT NULL DEFAULT 0,
					stock_quantity INT NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
					low_stock_threshold INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS sales (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					customer_id UUID REFERENCES customers(id) ON DELETE SET NULL,
					product_id UUID REFERENCES products(id) ON DELETE SET NULL,
					description TEXT NOT NULL DEFAULT '',
					quantity NUMERIC(14,3) NOT NULL,
					unit_price NUMERIC(14,2) NOT NULL,
					total_amount NUMERIC(14,2) NOT NULL,
					payment_method VARCHAR(32) NOT NULL DEFAULT 'cash',
					status VARCHAR(16) NOT NULL DEFAULT 'paid',
					sale_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS expenses (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					category VARCHAR(64) NOT NULL DEFAULT 'Other',
					description TEXT NOT NULL,
					amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
					receipt_key TEXT,
					expense_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS invoices (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					customer_id UUID REFERENCES customers(id) ON DELETE SET NULL,
					invoice_number VARCHAR(32) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'draft',
					subtotal NUMERIC(14,2) NOT NULL DEFAULT 0,
					tax_total NUMERIC(14,2) NOT NULL DEFAULT 0,
					total NUMERIC(14,2) NOT NULL DEFAULT 0,
					issue_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					due_date TIMESTAMPTZ NOT NULL,
					notes TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (user_id, invoice_number)
				);

				CREATE TABLE IF NOT EXISTS invoice_lines (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
					product_id UUID REFERENCES products(id) ON DELETE SET NULL,
					description TEXT NOT NULL,
					quantity NUMERIC(14,3) NOT NULL,
					unit_price NUMERIC(14,2) NOT NULL,
					discount_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
					tax_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
					line_total NUMERIC(14,2) NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_sales_user_date ON sales(user_id, sale_date DESC);
				CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id);
				CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, expense_date DESC);
				CREATE INDEX IF NOT EXISTS idx_products_user ON products(user_id);
				CREATE INDEX IF NOT EXISTS idx_customers_user ON customers(user_id);
				CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices(user_id);
				CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice ON invoice_lines(invoice_id);
			`,
		},
		{
			Version:     2,
			Description: "Create payment_methods lookup and seed Cash/Digital/Credit",
			SQL: `
				CREATE TABLE IF NOT EXISTS payment_methods (
					id SERIAL PRIMARY KEY,
					name VARCHAR(32) NOT NULL UNIQUE,
					is_pos BOOLEAN NOT NULL DEFAULT FALSE,
					requires_reference BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				INSERT INTO payment_methods (name, is_pos, requires_reference) VALUES
					('Cash', TRUE, FALSE),
					('Digital', TRUE, TRUE),
					('Credit', FALSE, FALSE)
				ON CONFLICT (name) DO NOTHING;
			`,
		},
		{
			Version:     3,
			Description: "Add partial payment columns and sale_payments ledger, map legacy payment strings",
			SQL: fmt.Sprintf(`
				ALTER TABLE sales ADD COLUMN IF NOT EXISTS amount_paid NUMERIC(14,2);
				ALTER TABLE sales ADD COLUMN IF NOT EXISTS amount_due NUMERIC(14,2);
				ALTER TABLE sales ADD COLUMN IF NOT EXISTS payment_method_id INT REFERENCES payment_methods(id);

				CREATE TABLE IF NOT EXISTS sale_payments (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					sale_id UUID NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
					payment_method_id INT NOT NULL REFERENCES payment_methods(id),
					amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
					account_name VARCHAR(255),
					reference VARCHAR(255),
					paid_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_sale_payments_sale ON sale_payments(sale_id);

				-- Map legacy text payment methods to lookup ids; unmapped
				-- values fall back to Cash.
				UPDATE sales s
				SET payment_method_id = pm.id
				FROM (VALUES
					%s
				) AS legacy(old_name, new_name)
				JOIN payment_methods pm ON pm.name = legacy.new_name
				WHERE LOWER(TRIM(s.payment_method)) = legacy.old_name
				  AND s.payment_method_id IS NULL;

				UPDATE sales
				SET payment_method_id = (SELECT id FROM payment_methods WHERE name = 'Cash')
				WHERE payment_method_id IS NULL;

				ALTER TABLE sales ALTER COLUMN payment_method_id SET NOT NULL;

				-- Settled/credit split for pre-existing rows: credit sales
				-- owe everything, the rest are fully paid.
				UPDATE sales
				SET amount_paid = CASE WHEN status = 'credit' THEN 0 ELSE total_amount END,
				    amount_due  = CASE WHEN status = 'credit' THEN total_amount ELSE 0 END
				WHERE amount_paid IS NULL;

				ALTER TABLE sales ALTER COLUMN amount_paid SET NOT NULL;
				ALTER TABLE sales ALTER COLUMN amount_due SET NOT NULL;
				ALTER TABLE sales DROP COLUMN IF EXISTS payment_method;
			`, legacyMethodValuesSQL()),
		},
		{
			Version:     4,
			Description: "Add balance constraint and settlement sync trigger",
			SQL: `
				DO $$
				BEGIN
					ALTER TABLE sales ADD CONSTRAINT sales_balance_check
						CHECK (abs((amount_paid + amount_due) - total_amount) < 0.01);
				EXCEPTION
					WHEN duplicate_object THEN NULL;
				END $$;

				CREATE OR REPLACE FUNCTION sync_sale_on_payment() RETURNS TRIGGER AS $$
				BEGIN
					UPDATE sales
					SET amount_paid = amount_paid + NEW.amount,
					    amount_due  = GREATEST(amount_due - NEW.amount, 0),
					    status = CASE
					        WHEN amount_due - NEW.amount <= 0.01 THEN 'paid'
					        WHEN amount_paid + NEW.amount > 0 THEN 'partial'
					        ELSE 'credit'
					    END,
					    updated_at = NOW()
					WHERE id = NEW.sale_id
					  AND pg_trigger_depth() = 1;
					RETURN NEW;
				END;
				$$ LANGUAGE plpgsql;

				DROP TRIGGER IF EXISTS trg_sale_payments_sync ON sale_payments;
				CREATE TRIGGER trg_sale_payments_sync
					AFTER INSERT ON sale_payments
					FOR EACH ROW EXECUTE FUNCTION sync_sale_on_payment();
			`,
		},
		{
			Version:     5,
			Description: "Create product_categories taxonomy and backfill product categories",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS product_categories (
					name VARCHAR(64) PRIMARY KEY,
					sort_order INT NOT NULL
				);

				INSERT INTO product_categories (name, sort_order) VALUES %s
				ON CONFLICT (name) DO NOTHING;

				-- Keyword backfill; already-categorized rows are untouched
				-- so re-running is a no-op.
				DO $$
				BEGIN
					UPDATE products
					SET category = %s
					WHERE category IS NULL OR category = '' OR category = 'Other';
				EXCEPTION
					WHEN OTHERS THEN
						RAISE NOTICE 'category backfill skipped: %%', SQLERRM;
				END $$;
			`, categoryValuesSQL(), ledger.CategoryCaseSQL("name")),
		},
		{
			Version:     6,
			Description: "Create feature_usage counters and increment function",
			SQL: `
				DROP TABLE IF EXISTS user_feature_usage;

				CREATE TABLE IF NOT EXISTS feature_usage (
					id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					feature_code VARCHAR(32) NOT NULL,
					period_start DATE NOT NULL,
					period_end DATE NOT NULL,
					current_count INT NOT NULL DEFAULT 0,
					limit_count INT NOT NULL DEFAULT 0,
					usage_percentage NUMERIC(6,2) NOT NULL DEFAULT 0,
					sync_status VARCHAR(16) NOT NULL DEFAULT 'pending',
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (user_id, feature_code, period_start)
				);

				CREATE INDEX IF NOT EXISTS idx_feature_usage_user_period
					ON feature_usage(user_id, period_start);

				CREATE OR REPLACE FUNCTION increment_feature_usage(
					p_user_id UUID,
					p_feature VARCHAR,
					p_period_start DATE,
					p_period_end DATE,
					p_n INT,
					p_limit INT
				) RETURNS VOID AS $$
				BEGIN
					INSERT INTO feature_usage (user_id, feature_code, period_start, period_end,
						current_count, limit_count)
					VALUES (p_user_id, p_feature, p_period_start, p_period_end, p_n, p_limit)
					ON CONFLICT (user_id, feature_code, period_start)
					DO UPDATE SET
						current_count = feature_usage.current_count + p_n,
						sync_status = 'pending',
						updated_at = NOW();
				END;
				$$ LANGUAGE plpgsql;

				CREATE OR REPLACE FUNCTION recompute_usage_percentage() RETURNS TRIGGER AS $$
				BEGIN
					IF NEW.limit_count > 0 THEN
						NEW.usage_percentage := ROUND(NEW.current_count::NUMERIC / NEW.limit_count * 100, 2);
					ELSE
						NEW.usage_percentage := 0;
					END IF;
					RETURN NEW;
				END;
				$$ LANGUAGE plpgsql;

				DROP TRIGGER IF EXISTS trg_feature_usage_percentage ON feature_usage;
				CREATE TRIGGER trg_feature_usage_percentage
					BEFORE INSERT OR UPDATE ON feature_usage
					FOR EACH ROW EXECUTE FUNCTION recompute_usage_percentage();
			`,
		},
		{
			Version:     7,
			Description: "Create subscription tracking and audit log",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_subscription_tracking (
					id BIGSERIAL UNIQUE,
					user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
					plan VARCHAR(32) NOT NULL DEFAULT 'free',
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					current_period_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					current_period_end TIMESTAMPTZ,
					canceled_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				-- Audit rows are appended by the subscription service in
				-- the same transaction as the state change, so every row
				-- carries the real actor and reason.
				CREATE TABLE IF NOT EXISTS subscription_audit_log (
					id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL,
					old_plan VARCHAR(32),
					new_plan VARCHAR(32),
					old_status VARCHAR(16),
					new_status VARCHAR(16),
					actor VARCHAR(255),
					reason TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_subscription_audit_user
					ON subscription_audit_log(user_id, created_at DESC);
			`,
		},
		{
			Version:     8,
			Description: "Enable row-level security on per-user tables",
			SQL: `
				ALTER TABLE customers ENABLE ROW LEVEL SECURITY;
				ALTER TABLE products ENABLE ROW LEVEL SECURITY;
				ALTER TABLE sales ENABLE ROW LEVEL SECURITY;
				ALTER TABLE expenses ENABLE ROW LEVEL SECURITY;
				ALTER TABLE invoices ENABLE ROW LEVEL SECURITY;
				ALTER TABLE feature_usage ENABLE ROW LEVEL SECURITY;

				DO $$
				DECLARE
					tbl TEXT;
				BEGIN
					FOREACH tbl IN ARRAY ARRAY['customers','products','sales','expenses','invoices','feature_usage']
					LOOP
						EXECUTE format(
							'DROP POLICY IF EXISTS tenant_isolation ON %I', tbl);
						EXECUTE format(
							'CREATE POLICY tenant_isolation ON %I
								USING (user_id::text = current_setting(''app.user_id'', true))', tbl);
					END LOOP;
				END $$;
			`,
		},
		{
			Version:     9,
			Description: "Create push_subscriptions and notification_log tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS push_subscriptions (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					endpoint TEXT NOT NULL,
					p256dh TEXT NOT NULL,
					auth TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (user_id, endpoint)
				);

				CREATE TABLE IF NOT EXISTS notification_log (
					id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL,
					subscription_id UUID REFERENCES push_subscriptions(id) ON DELETE SET NULL,
					notification_type VARCHAR(64) NOT NULL,
					payload JSONB NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'pending',
					attempts INT NOT NULL DEFAULT 0,
					next_attempt_at TIMESTAMPTZ,
					last_error TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notification_log_pending
					ON notification_log(status, next_attempt_at)
					WHERE status IN ('pending', 'retrying');
			`,
		},
		{
			Version:     10,
			Description: "Create non-owner application role so row policies apply",
			SQL: `
				-- The migrating role owns every table and would bypass the
				-- tenant_isolation policies. User-scoped transactions run
				-- as this role instead (SET LOCAL ROLE), which is subject
				-- to RLS. Cross-user maintenance keeps the owner role.
				DO $$
				BEGIN
					CREATE ROLE dukabook_app NOLOGIN;
				EXCEPTION
					WHEN duplicate_object THEN NULL;
				END $$;

				GRANT dukabook_app TO CURRENT_USER;
				GRANT USAGE ON SCHEMA public TO dukabook_app;
				GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO dukabook_app;
				GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO dukabook_app;
				GRANT EXECUTE ON ALL FUNCTIONS IN SCHEMA public TO dukabook_app;

				ALTER DEFAULT PRIVILEGES IN SCHEMA public
					GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO dukabook_app;
				ALTER DEFAULT PRIVILEGES IN SCHEMA public
					GRANT USAGE, SELECT ON SEQUENCES TO dukabook_app;
			`,
		},
	}
}

// categoryValuesSQL renders the product taxonomy as ordered VALUES rows.
func categoryValuesSQL() string {
	cats := ledger.Categories()
	rows := make([]string, 0, len(cats))
	for i, c := range cats {
		rows = append(rows, fmt.Sprintf("('%s', %d)", strings.ReplaceAll(c, "'", "''"), i+1))
	}
	return strings.Join(rows, ", ")
}

// RunMigrations applies every pending migration in version order. Each
// runs in its own transaction and is journaled in migration_log; a
// failure is journaled with the error and aborts the sequence.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migration_log (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'applied',
			error TEXT,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration_log table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("applying migration")

		if err := applyMigration(ctx, db, migration); err != nil {
			recordMigration(ctx, db, migration, "failed", err.Error())
			log.WithError(err).Error("migration failed")
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		recordMigration(ctx, db, migration, "applied", "")
		log.Info("migration applied")
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return err
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version FROM migration_log WHERE status = 'applied' ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration_log: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func recordMigration(ctx context.Context, db *sql.DB, migration Migration, status, errText string) {
	db.ExecContext(ctx, `
		INSERT INTO migration_log (version, description, status, error)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (version) DO UPDATE SET
			status = EXCLUDED.status, error = EXCLUDED.error, applied_at = NOW()
	`, migration.Version, migration.Description, status, errText)
}
