package notification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// Schema is the DDL for the notification table. Applied via EnsureSchema;
// hosts with their own migration tooling can take it from here instead.
const Schema = `
CREATE TABLE IF NOT EXISTS notification (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	channel    TEXT NOT NULL,
	priority   TEXT NOT NULL DEFAULT 'normal',
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	action_url TEXT NOT NULL DEFAULT '',
	icon_url   TEXT NOT NULL DEFAULT '',
	data       JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_notification_user
	ON notification (user_id, created_at DESC);
`

// PGStore is a Postgres implementation of the Store interface backed by a
// pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres notification store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the notification table and index if missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure notification schema: %w", err)
	}
	return nil
}

const notificationColumns = `id, user_id, channel, priority, title, body, action_url, icon_url, data, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var notif Notification
	err := row.Scan(
		&notif.ID,
		&notif.UserID,
		&notif.Channel,
		&notif.Priority,
		&notif.Title,
		&notif.Body,
		&notif.ActionURL,
		&notif.IconURL,
		&notif.Data,
		&notif.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return &notif, nil
}

func (s *PGStore) Create(ctx context.Context, notif Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		notif.ID,
		notif.UserID,
		notif.Channel,
		notif.Priority,
		notif.Title,
		notif.Body,
		notif.ActionURL,
		notif.IconURL,
		notif.Data,
		notif.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, notifID string) (*Notification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notification WHERE id = $1`, notifID)
	return scanNotification(row)
}
