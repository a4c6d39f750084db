package delivery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-memory implementation of the Ledger interface.
// Suitable for development and testing.
type MemoryLedger struct {
	deliveries map[string]Delivery // delivery ID -> delivery
	byPair     map[string]string   // notifID+subID -> delivery ID
	mu         sync.RWMutex
}

// NewMemoryLedger creates a new in-memory delivery ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		deliveries: make(map[string]Delivery),
		byPair:     make(map[string]string),
	}
}

func pairKey(notifID, subID string) string {
	return notifID + "\x00" + subID
}

func (l *MemoryLedger) Create(ctx context.Context, d Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.NotificationID == "" {
		return ErrNotificationIDMiss
	}
	if d.SubscriptionID == "" {
		return ErrSubscriptionIDMiss
	}

	key := pairKey(d.NotificationID, d.SubscriptionID)
	if _, exists := l.byPair[key]; exists {
		return ErrDeliveryExists
	}

	l.deliveries[d.ID] = d
	l.byPair[key] = d.ID
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, deliveryID string) (*Delivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, ok := l.deliveries[deliveryID]
	if !ok {
		return nil, ErrDeliveryNotFound
	}

	// Return a copy to prevent external mutation of stored data
	return &d, nil
}

func (l *MemoryLedger) Update(ctx context.Context, d Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.deliveries[d.ID]; !ok {
		return ErrDeliveryNotFound
	}

	l.deliveries[d.ID] = d
	return nil
}

func (l *MemoryLedger) ListByNotification(ctx context.Context, notifID string) ([]Delivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Delivery
	for _, d := range l.deliveries {
		if d.NotificationID == notifID {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})

	return out, nil
}

func (l *MemoryLedger) ListDue(ctx context.Context, now time.Time, limit int) ([]Delivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var due []Delivery
	for _, d := range l.deliveries {
		if d.Status != StatusQueued || d.RetryAfter == nil {
			continue
		}
		if d.RetryAfter.After(now) {
			continue
		}
		due = append(due, d)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].RetryAfter.Before(*due[j].RetryAfter)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}
