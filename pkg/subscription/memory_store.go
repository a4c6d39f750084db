package subscription

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Suitable for development and testing.
type MemoryStore struct {
	subscriptions map[string]Subscription // subscription ID -> subscription
	byEndpoint    map[string]string       // endpoint -> subscription ID
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]Subscription),
		byEndpoint:    make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.Endpoint == "" {
		return ErrEndpointRequired
	}
	if _, exists := s.byEndpoint[sub.Endpoint]; exists {
		return ErrDuplicateEndpoint
	}

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	s.subscriptions[sub.ID] = sub
	s.byEndpoint[sub.Endpoint] = sub.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, subID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	// Return a copy to prevent external mutation of stored data
	return &sub, nil
}

func (s *MemoryStore) GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subID, ok := s.byEndpoint[endpoint]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	sub := s.subscriptions[subID]
	return &sub, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, userID string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.IsActive {
			active = append(active, sub)
		}
	}

	return active, nil
}

func (s *MemoryStore) Update(ctx context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subscriptions[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}

	// Keep the endpoint index consistent if the endpoint changed
	if existing.Endpoint != sub.Endpoint {
		delete(s.byEndpoint, existing.Endpoint)
		s.byEndpoint[sub.Endpoint] = sub.ID
	}

	s.subscriptions[sub.ID] = sub
	return nil
}
