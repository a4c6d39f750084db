// Package delivery tracks individual push delivery attempts through their
// lifecycle.
//
// A Delivery is the unit of retry and the audit trail: exactly one exists per
// (notification, subscription) pair, created in the queued state at fan-out
// time. The fan-out engine drives it through the send states and the Tracker
// records client confirmations:
//
//	queued -> sending -> {sent | queued (retry) | failed}
//	sent -> delivered -> read
//
// failed and read are terminal. Timestamps along the happy path are
// monotonic: queued_at <= sent_at <= delivered_at <= read_at.
//
// The Ledger interface abstracts persistence; MemoryLedger serves development
// and tests and PGLedger persists to Postgres via pgx.
package delivery
