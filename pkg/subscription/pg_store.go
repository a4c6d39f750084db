package subscription

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// Schema is the DDL for the subscription table. Applied via EnsureSchema;
// hosts with their own migration tooling can take it from here instead.
const Schema = `
CREATE TABLE IF NOT EXISTS push_subscription (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	endpoint     TEXT NOT NULL UNIQUE,
	p256dh       TEXT NOT NULL,
	auth         TEXT NOT NULL,
	user_agent   TEXT NOT NULL DEFAULT '',
	device_name  TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_used_at TIMESTAMPTZ,
	expires_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_push_subscription_user_active
	ON push_subscription (user_id) WHERE is_active;
`

// PGStore is a Postgres implementation of the Store interface backed by a
// pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres subscription store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the subscription table and indexes if missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure subscription schema: %w", err)
	}
	return nil
}

const subscriptionColumns = `id, user_id, endpoint, p256dh, auth, user_agent, device_name, is_active, created_at, last_used_at, expires_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Endpoint,
		&sub.Keys.P256dh,
		&sub.Keys.Auth,
		&sub.UserAgent,
		&sub.DeviceName,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.LastUsedAt,
		&sub.ExpiresAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &sub, nil
}

func (s *PGStore) Create(ctx context.Context, sub Subscription) error {
	if sub.Endpoint == "" {
		return ErrEndpointRequired
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO push_subscription (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID,
		sub.UserID,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.UserAgent,
		sub.DeviceName,
		sub.IsActive,
		sub.CreatedAt,
		sub.LastUsedAt,
		sub.ExpiresAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEndpoint
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, subID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscription WHERE id = $1`, subID)
	return scanSubscription(row)
}

func (s *PGStore) GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscription WHERE endpoint = $1`, endpoint)
	return scanSubscription(row)
}

func (s *PGStore) ListActive(ctx context.Context, userID string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscription
		WHERE user_id = $1 AND is_active
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, sub Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE push_subscription
		SET user_id = $2, endpoint = $3, p256dh = $4, auth = $5, user_agent = $6,
			device_name = $7, is_active = $8, last_used_at = $9, expires_at = $10
		WHERE id = $1`,
		sub.ID,
		sub.UserID,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.UserAgent,
		sub.DeviceName,
		sub.IsActive,
		sub.LastUsedAt,
		sub.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
