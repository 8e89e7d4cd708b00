package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/storage"
)

var tracer = otel.Tracer("github.com/mnzioki/dukabook/pkg/storage/postgres")

// Store implements storage.Store using PostgreSQL + Redis + S3.
type Store struct {
	cm      *ConnectionManager
	s3      *S3Client
	redis   *RedisClient
	methods *lru.Cache[int, *ledger.PaymentMethod]
	config  storage.Config
	logger  *observability.Logger
}

// NewStore connects to PostgreSQL (and optionally Redis and S3) per the
// given config.
func NewStore(config storage.Config, logger *observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	cm, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(config.PostgresReplicaURLs),
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	var s3Client *S3Client
	if config.S3Endpoint != "" || config.S3Bucket != "" {
		s3Client, err = NewS3Client(config)
		if err != nil {
			cm.Close()
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
	}

	var redisClient *RedisClient
	if config.CacheEnabled && config.RedisURL != "" {
		redisClient, err = NewRedisClient(config)
		if err != nil {
			cm.Close()
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
	}

	size := config.L1CacheSize
	if size <= 0 {
		size = 128
	}
	methods, err := lru.New[int, *ledger.PaymentMethod](size)
	if err != nil {
		cm.Close()
		return nil, err
	}

	return &Store{
		cm:      cm,
		s3:      s3Client,
		redis:   redisClient,
		methods: methods,
		config:  config,
		logger:  logger,
	}, nil
}

// withUser runs fn inside a transaction scoped to userID. The
// connection role owns the tables and Postgres exempts owners from
// their own policies, so the transaction first drops to the NOLOGIN
// dukabook_app role, then sets app.user_id for the tenant_isolation
// policies. Both resets happen automatically at transaction end.
func (s *Store) withUser(ctx context.Context, db *sql.DB, userID string, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SET LOCAL ROLE dukabook_app`); err != nil {
		return fmt.Errorf("failed to assume application role: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.user_id', $1, true)`, userID); err != nil {
		return fmt.Errorf("failed to set user context: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// write scopes fn to userID on the primary.
func (s *Store) write(ctx context.Context, userID string, fn func(*sql.Tx) error) error {
	return s.withUser(ctx, s.cm.Primary(), userID, fn)
}

// read scopes fn to userID on a replica.
func (s *Store) read(ctx context.Context, userID string, fn func(*sql.Tx) error) error {
	return s.withUser(ctx, s.cm.Replica(), userID, fn)
}

// mapNotFound converts driver-level no-rows into the domain sentinel.
func mapNotFound(err error, verb string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", verb, err)
}

// ListPaymentMethods returns the global lookup table, cached in Redis
// since it only changes at migration time.
func (s *Store) ListPaymentMethods(ctx context.Context) ([]*ledger.PaymentMethod, error) {
	if s.redis != nil {
		if methods, err := s.redis.GetPaymentMethods(ctx); err == nil && methods != nil {
			return methods, nil
		}
	}

	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id, name, requires_reference, created_at
		FROM payment_methods
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*ledger.PaymentMethod
	for rows.Next() {
		var m ledger.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.RequiresReference, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetPaymentMethods(ctx, methods)
	}
	for _, m := range methods {
		s.methods.Add(m.ID, m)
	}
	return methods, nil
}

// GetPaymentMethod resolves one lookup row, served from the in-process
// LRU on repeat calls.
func (s *Store) GetPaymentMethod(ctx context.Context, id int) (*ledger.PaymentMethod, error) {
	if m, ok := s.methods.Get(id); ok {
		return m, nil
	}

	var m ledger.PaymentMethod
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT id, name, requires_reference, created_at
		FROM payment_methods
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.RequiresReference, &m.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, "get payment method")
	}

	s.methods.Add(m.ID, &m)
	return &m, nil
}

// HealthCheck pings every backing service.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.cm.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	if s.s3 != nil {
		if err := s.s3.HealthCheck(ctx); err != nil {
			return fmt.Errorf("s3 unhealthy: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// DB returns the primary connection, used for health probes and the
// services that manage their own tables.
func (s *Store) DB() *sql.DB {
	return s.cm.Primary()
}

// Redis returns the cache client, nil when caching is disabled.
func (s *Store) Redis() *RedisClient {
	return s.redis
}

// S3 returns the attachment client, nil when not configured.
func (s *Store) S3() *S3Client {
	return s.s3
}

// Close closes all connections.
func (s *Store) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.cm.Close()
}
