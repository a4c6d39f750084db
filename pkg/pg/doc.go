// Package pg provides a thin layer over the pgx/v5 driver: env-driven pool
// configuration, connection with retry, a health check closure, and error
// classification helpers.
//
// The Postgres-backed subscription store and delivery ledger build on the
// pool returned by Connect. Schema management is deliberately out of scope;
// each store ships a one-shot EnsureSchema helper with its DDL instead of a
// migration engine.
package pg
