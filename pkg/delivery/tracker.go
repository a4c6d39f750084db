package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Tracker processes client-reported delivery confirmations: the service
// worker reports "delivered" when the push was shown and "read" when the user
// clicked it.
//
// Both confirmations are idempotent and only ever move a delivery forward: a
// repeated confirmation is a no-op and a confirmation never regresses a later
// status. A confirmation may race with a concurrent retry attempt on the same
// delivery; the confirmation wins, which is fine because statuses after sent
// only move forward.
type Tracker struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger for the Tracker.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerClock overrides the time source, mainly for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker over the given ledger.
func NewTracker(ledger Ledger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		ledger: ledger,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// ConfirmDelivered marks the delivery as delivered, stamping delivered_at.
// No-op if the delivery already reached delivered or read.
func (t *Tracker) ConfirmDelivered(ctx context.Context, deliveryID string) error {
	return t.confirm(ctx, deliveryID, StatusDelivered)
}

// ConfirmRead marks the delivery as read, stamping read_at. No-op if the
// delivery is already read. A click may arrive without a prior delivered
// confirmation; in that case delivered_at is stamped alongside read_at so the
// timestamp chain stays complete.
func (t *Tracker) ConfirmRead(ctx context.Context, deliveryID string) error {
	return t.confirm(ctx, deliveryID, StatusRead)
}

func (t *Tracker) confirm(ctx context.Context, deliveryID string, target Status) error {
	d, err := t.ledger.Get(ctx, deliveryID)
	if err != nil {
		return err
	}

	if d.Status == StatusFailed {
		return fmt.Errorf("%w: delivery %s is failed", ErrDeliveryFinal, deliveryID)
	}
	if d.Status.AtLeast(target) {
		// Already confirmed; repeated callbacks are expected.
		return nil
	}
	if !d.Status.AtLeast(StatusSent) {
		// Confirmations only apply once the push left the server; a callback
		// for a queued or in-flight delivery is a client bug or a stale ID.
		return fmt.Errorf("%w: delivery %s is %s", ErrInvalidTransition, deliveryID, d.Status)
	}

	now := t.now()
	if target.AtLeast(StatusDelivered) && d.DeliveredAt == nil {
		d.Status = StatusDelivered
		d.DeliveredAt = &now
	}
	if target == StatusRead {
		d.Status = StatusRead
		d.ReadAt = &now
	}

	if err := t.ledger.Update(ctx, *d); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	t.logger.DebugContext(ctx, "delivery confirmation recorded",
		logger.DeliveryID(deliveryID),
		slog.String("status", string(d.Status)),
	)
	return nil
}
