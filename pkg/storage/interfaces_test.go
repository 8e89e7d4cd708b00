package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 1024, cfg.L1CacheSize)

	for _, key := range []string{"sale", "product", "customer", "invoice", "payment_methods", "list"} {
		assert.Positive(t, cfg.CacheTTL[key], "missing TTL for %s", key)
	}

	// Lookup tables change rarely and may cache the longest.
	assert.Greater(t, cfg.CacheTTL["payment_methods"], cfg.CacheTTL["product"])
	assert.Less(t, cfg.CacheTTL["list"], cfg.CacheTTL["sale"])
}
