// Package storage defines the persistence interface for DukaBook's
// ledger records and the configuration shared by its backends.
//
// # Overview
//
// The Store interface covers sales, payments, products, customers,
// expenses and invoices. The production implementation lives in
// pkg/storage/postgres:
//
//   - PostgreSQL for records, with row-level security keyed on
//     app.user_id so one tenant can never read another's rows
//   - Redis as a cache-aside layer in front of hot reads, with an
//     in-process LRU for the payment_methods lookup table
//   - S3 (or MinIO) for receipt images and generated exports,
//     content-addressed by SHA-256
//
// # Multi-tenancy
//
// Every Store method takes the owning userID. The Postgres backend
// opens a transaction, runs
//
//	SELECT set_config('app.user_id', $1, true)
//
// and lets the RLS policies do the filtering. Handlers therefore never
// add WHERE user_id clauses themselves.
//
// # Configuration
//
// Config is populated from DUKABOOK_* environment variables by
// pkg/config. DefaultConfig provides sensible pool sizes and cache
// TTLs for local development.
package storage
