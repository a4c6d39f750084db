package delivery

import (
	"context"
	"time"
)

// Ledger handles delivery persistence. Updates are scoped to a single
// delivery row; the engine relies on no cross-row transactions.
type Ledger interface {
	// Create stores a new delivery. At most one delivery may exist per
	// (notification, subscription) pair.
	Create(ctx context.Context, d Delivery) error

	// Get retrieves a delivery by id.
	Get(ctx context.Context, deliveryID string) (*Delivery, error)

	// Update persists changes to an existing delivery.
	Update(ctx context.Context, d Delivery) error

	// ListByNotification returns all deliveries created for a notification.
	ListByNotification(ctx context.Context, notifID string) ([]Delivery, error)

	// ListDue returns queued deliveries whose retry_after has elapsed,
	// oldest first, up to limit (0 = no limit).
	ListDue(ctx context.Context, now time.Time, limit int) ([]Delivery, error)
}
