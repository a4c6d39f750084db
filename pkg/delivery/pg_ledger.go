package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// Schema is the DDL for the delivery table. Applied via EnsureSchema; hosts
// with their own migration tooling can take it from here instead.
const Schema = `
CREATE TABLE IF NOT EXISTS push_delivery (
	id              TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL,
	subscription_id TEXT NOT NULL,
	status          TEXT NOT NULL,
	attempt_count   INT NOT NULL DEFAULT 0,
	max_attempts    INT NOT NULL DEFAULT 3,
	queued_at       TIMESTAMPTZ NOT NULL,
	sent_at         TIMESTAMPTZ,
	delivered_at    TIMESTAMPTZ,
	read_at         TIMESTAMPTZ,
	failed_at       TIMESTAMPTZ,
	retry_after     TIMESTAMPTZ,
	error_code      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	metadata        JSONB NOT NULL DEFAULT '{}',
	UNIQUE (notification_id, subscription_id)
);

CREATE INDEX IF NOT EXISTS idx_push_delivery_due
	ON push_delivery (retry_after) WHERE status = 'queued' AND retry_after IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_push_delivery_notification
	ON push_delivery (notification_id);
`

// PGLedger is a Postgres implementation of the Ledger interface backed by a
// pgx connection pool. Metadata is stored as JSONB.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger creates a Postgres delivery ledger.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// EnsureSchema creates the delivery table and indexes if missing.
func (l *PGLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure delivery schema: %w", err)
	}
	return nil
}

const deliveryColumns = `id, notification_id, subscription_id, status, attempt_count, max_attempts,
	queued_at, sent_at, delivered_at, read_at, failed_at, retry_after, error_code, error_message, metadata`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID,
		&d.NotificationID,
		&d.SubscriptionID,
		&d.Status,
		&d.AttemptCount,
		&d.MaxAttempts,
		&d.QueuedAt,
		&d.SentAt,
		&d.DeliveredAt,
		&d.ReadAt,
		&d.FailedAt,
		&d.RetryAfter,
		&d.ErrorCode,
		&d.ErrorMessage,
		&d.Metadata,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	return &d, nil
}

func (l *PGLedger) Create(ctx context.Context, d Delivery) error {
	if d.NotificationID == "" {
		return ErrNotificationIDMiss
	}
	if d.SubscriptionID == "" {
		return ErrSubscriptionIDMiss
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO push_delivery (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID,
		d.NotificationID,
		d.SubscriptionID,
		d.Status,
		d.AttemptCount,
		d.MaxAttempts,
		d.QueuedAt,
		d.SentAt,
		d.DeliveredAt,
		d.ReadAt,
		d.FailedAt,
		d.RetryAfter,
		d.ErrorCode,
		d.ErrorMessage,
		d.Metadata,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDeliveryExists
		}
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (l *PGLedger) Get(ctx context.Context, deliveryID string) (*Delivery, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM push_delivery WHERE id = $1`, deliveryID)
	return scanDelivery(row)
}

func (l *PGLedger) Update(ctx context.Context, d Delivery) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE push_delivery
		SET status = $2, attempt_count = $3, sent_at = $4, delivered_at = $5,
			read_at = $6, failed_at = $7, retry_after = $8, error_code = $9,
			error_message = $10, metadata = $11
		WHERE id = $1`,
		d.ID,
		d.Status,
		d.AttemptCount,
		d.SentAt,
		d.DeliveredAt,
		d.ReadAt,
		d.FailedAt,
		d.RetryAfter,
		d.ErrorCode,
		d.ErrorMessage,
		d.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (l *PGLedger) ListByNotification(ctx context.Context, notifID string) ([]Delivery, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+deliveryColumns+` FROM push_delivery
		WHERE notification_id = $1
		ORDER BY queued_at`, notifID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (l *PGLedger) ListDue(ctx context.Context, now time.Time, limit int) ([]Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM push_delivery
		WHERE status = 'queued' AND retry_after IS NOT NULL AND retry_after <= $1
		ORDER BY retry_after`
	args := []any{now}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func collectDeliveries(rows pgx.Rows) ([]Delivery, error) {
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
