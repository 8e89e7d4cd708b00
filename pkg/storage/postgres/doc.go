// Package postgres implements storage.Store on PostgreSQL with a Redis
// cache-aside layer and S3 attachment storage.
//
// Writes go to the primary; reads may be served by round-robin
// replicas. Per-user scoping is enforced by row-level security: every
// operation runs inside a transaction that first sets app.user_id via
// set_config, and the policies on each table filter on it.
//
// Schema changes are applied by RunMigrations, an ordered in-process
// migration list tracked in schema_migrations and journaled to
// migration_log.
package postgres
