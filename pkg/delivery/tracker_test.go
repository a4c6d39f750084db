package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackerFixture(t *testing.T, status Status) (*Tracker, *MemoryLedger, Delivery) {
	t.Helper()

	ledger := NewMemoryLedger()
	d := newQueuedDelivery("notif-1", "sub-1")
	d.Status = status
	if status.AtLeast(StatusSent) {
		sentAt := time.Now().Add(-time.Minute)
		d.SentAt = &sentAt
	}
	require.NoError(t, ledger.Create(context.Background(), d))

	return NewTracker(ledger), ledger, d
}

func TestTracker_ConfirmDelivered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("marks sent delivery as delivered", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusSent)

		require.NoError(t, tracker.ConfirmDelivered(ctx, d.ID))

		got, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, got.Status)
		require.NotNil(t, got.DeliveredAt)
		assert.False(t, got.DeliveredAt.Before(*got.SentAt), "sent_at <= delivered_at")
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusSent)

		require.NoError(t, tracker.ConfirmDelivered(ctx, d.ID))
		first, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)

		require.NoError(t, tracker.ConfirmDelivered(ctx, d.ID))
		second, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)

		assert.Equal(t, StatusDelivered, second.Status)
		assert.Equal(t, first.DeliveredAt, second.DeliveredAt, "delivered_at is stamped once")
	})

	t.Run("does not regress a read delivery", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusRead)

		require.NoError(t, tracker.ConfirmDelivered(ctx, d.ID))

		got, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRead, got.Status)
	})

	t.Run("rejects queued delivery", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusQueued)

		err := tracker.ConfirmDelivered(ctx, d.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		got, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusQueued, got.Status)
		assert.Nil(t, got.DeliveredAt)
	})

	t.Run("rejects in-flight delivery", func(t *testing.T) {
		t.Parallel()
		tracker, _, d := trackerFixture(t, StatusSending)

		err := tracker.ConfirmDelivered(ctx, d.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("rejects failed delivery", func(t *testing.T) {
		t.Parallel()
		tracker, _, d := trackerFixture(t, StatusFailed)

		err := tracker.ConfirmDelivered(ctx, d.ID)
		assert.ErrorIs(t, err, ErrDeliveryFinal)
	})

	t.Run("unknown delivery", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(NewMemoryLedger())

		err := tracker.ConfirmDelivered(ctx, "missing")
		assert.ErrorIs(t, err, ErrDeliveryNotFound)
	})
}

func TestTracker_ConfirmRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("delivered then read keeps timestamps ordered", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusSent)

		require.NoError(t, tracker.ConfirmDelivered(ctx, d.ID))
		time.Sleep(time.Millisecond)
		require.NoError(t, tracker.ConfirmRead(ctx, d.ID))

		got, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRead, got.Status)
		require.NotNil(t, got.DeliveredAt)
		require.NotNil(t, got.ReadAt)
		assert.True(t, got.DeliveredAt.Before(*got.ReadAt), "delivered_at < read_at")
	})

	t.Run("click without prior delivered confirmation stamps both", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusSent)

		require.NoError(t, tracker.ConfirmRead(ctx, d.ID))

		got, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRead, got.Status)
		require.NotNil(t, got.DeliveredAt, "delivered_at backfilled so the chain stays complete")
		require.NotNil(t, got.ReadAt)
		assert.False(t, got.ReadAt.Before(*got.DeliveredAt))
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		tracker, ledger, d := trackerFixture(t, StatusSent)

		require.NoError(t, tracker.ConfirmRead(ctx, d.ID))
		first, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)

		require.NoError(t, tracker.ConfirmRead(ctx, d.ID))
		second, err := ledger.Get(ctx, d.ID)
		require.NoError(t, err)

		assert.Equal(t, first.ReadAt, second.ReadAt)
	})
}
