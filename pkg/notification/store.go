package notification

import (
	"context"
)

// Store handles notification persistence. The fan-out engine only reads from
// it; creation belongs to the host application emitting notification events.
type Store interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// Get retrieves a single notification by id.
	Get(ctx context.Context, notifID string) (*Notification, error)
}
