package subscription

import (
	"context"
)

// Store handles subscription persistence and retrieval.
type Store interface {
	// Create stores a new subscription.
	Create(ctx context.Context, sub Subscription) error

	// Get retrieves a subscription by id.
	Get(ctx context.Context, subID string) (*Subscription, error)

	// GetByEndpoint retrieves a subscription by its unique endpoint.
	GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)

	// ListActive returns all active subscriptions for a user.
	ListActive(ctx context.Context, userID string) ([]Subscription, error)

	// Update persists changes to an existing subscription.
	Update(ctx context.Context, sub Subscription) error
}
