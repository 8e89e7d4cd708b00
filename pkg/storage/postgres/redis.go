package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/storage"
)

// RedisClient handles caching operations
type RedisClient struct {
	client *redis.Client
	config storage.Config
}

// NewRedisClient creates a new Redis client
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	// Parse Redis URL or use default options
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	// Set connection timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: config,
	}, nil
}

// GetPaymentMethods retrieves the payment method list from cache
func (c *RedisClient) GetPaymentMethods(ctx context.Context) ([]*ledger.PaymentMethod, error) {
	data, err := c.client.Get(ctx, "payment_methods").Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var methods []*ledger.PaymentMethod
	if err := json.Unmarshal([]byte(data), &methods); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, "payment_methods")
		return nil, fmt.Errorf("failed to unmarshal payment methods: %w", err)
	}

	return methods, nil
}

// SetPaymentMethods stores the payment method list in cache
func (c *RedisClient) SetPaymentMethods(ctx context.Context, methods []*ledger.PaymentMethod) error {
	data, err := json.Marshal(methods)
	if err != nil {
		return fmt.Errorf("failed to marshal payment methods: %w", err)
	}

	return c.client.Set(ctx, "payment_methods", data, c.config.CacheTTL["payment_methods"]).Err()
}

// GetSale retrieves a sale from cache
func (c *RedisClient) GetSale(ctx context.Context, userID, saleID string) (*ledger.Sale, error) {
	key := fmt.Sprintf("sale:%s:%s", userID, saleID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sale ledger.Sale
	if err := json.Unmarshal([]byte(data), &sale); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal sale: %w", err)
	}

	return &sale, nil
}

// SetSale stores a sale in cache
func (c *RedisClient) SetSale(ctx context.Context, userID string, sale *ledger.Sale) error {
	key := fmt.Sprintf("sale:%s:%s", userID, sale.ID)

	data, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("failed to marshal sale: %w", err)
	}

	return c.client.Set(ctx, key, data, c.config.CacheTTL["sale"]).Err()
}

// InvalidateSale removes a sale from cache
func (c *RedisClient) InvalidateSale(ctx context.Context, userID, saleID string) error {
	return c.client.Del(ctx, fmt.Sprintf("sale:%s:%s", userID, saleID)).Err()
}

// GetProduct retrieves a product from cache
func (c *RedisClient) GetProduct(ctx context.Context, userID, productID string) (*ledger.Product, error) {
	key := fmt.Sprintf("product:%s:%s", userID, productID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product ledger.Product
	if err := json.Unmarshal([]byte(data), &product); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}

	return &product, nil
}

// SetProduct stores a product in cache
func (c *RedisClient) SetProduct(ctx context.Context, userID string, product *ledger.Product) error {
	key := fmt.Sprintf("product:%s:%s", userID, product.ID)

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	return c.client.Set(ctx, key, data, c.config.CacheTTL["product"]).Err()
}

// InvalidateProduct removes a product from cache
func (c *RedisClient) InvalidateProduct(ctx context.Context, userID, productID string) error {
	return c.client.Del(ctx, fmt.Sprintf("product:%s:%s", userID, productID)).Err()
}

// GetCustomer retrieves a customer from cache
func (c *RedisClient) GetCustomer(ctx context.Context, userID, customerID string) (*ledger.Customer, error) {
	key := fmt.Sprintf("customer:%s:%s", userID, customerID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var customer ledger.Customer
	if err := json.Unmarshal([]byte(data), &customer); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}

	return &customer, nil
}

// SetCustomer stores a customer in cache
func (c *RedisClient) SetCustomer(ctx context.Context, userID string, customer *ledger.Customer) error {
	key := fmt.Sprintf("customer:%s:%s", userID, customer.ID)

	data, err := json.Marshal(customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}

	return c.client.Set(ctx, key, data, c.config.CacheTTL["customer"]).Err()
}

// InvalidateCustomer removes a customer from cache
func (c *RedisClient) InvalidateCustomer(ctx context.Context, userID, customerID string) error {
	return c.client.Del(ctx, fmt.Sprintf("customer:%s:%s", userID, customerID)).Err()
}

// GetInvoice retrieves an invoice with its lines from cache
func (c *RedisClient) GetInvoice(ctx context.Context, userID, invoiceID string) (*ledger.Invoice, error) {
	key := fmt.Sprintf("invoice:%s:%s", userID, invoiceID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var invoice ledger.Invoice
	if err := json.Unmarshal([]byte(data), &invoice); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	return &invoice, nil
}

// SetInvoice stores an invoice in cache
func (c *RedisClient) SetInvoice(ctx context.Context, userID string, invoice *ledger.Invoice) error {
	key := fmt.Sprintf("invoice:%s:%s", userID, invoice.ID)

	data, err := json.Marshal(invoice)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice: %w", err)
	}

	return c.client.Set(ctx, key, data, c.config.CacheTTL["invoice"]).Err()
}

// InvalidateInvoice removes an invoice from cache
func (c *RedisClient) InvalidateInvoice(ctx context.Context, userID, invoiceID string) error {
	return c.client.Del(ctx, fmt.Sprintf("invoice:%s:%s", userID, invoiceID)).Err()
}

// InvalidatePatterns removes keys matching patterns
func (c *RedisClient) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		// Use SCAN to find matching keys
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
		}
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// GetPoolStats returns connection pool statistics
func (c *RedisClient) GetPoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// Incr increments a counter (for rate limiting)
func (c *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// Expire sets a key's expiration
func (c *RedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.client.Expire(ctx, key, expiration).Err()
}

// TTL returns the remaining time to live of a key
func (c *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}

// SetNX sets a key only if it doesn't exist (for distributed locks)
func (c *RedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}
