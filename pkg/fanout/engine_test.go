package fanout_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/delivery"
	"github.com/dmitrymomot/pushkit/pkg/fanout"
	"github.com/dmitrymomot/pushkit/pkg/notification"
	"github.com/dmitrymomot/pushkit/pkg/subscription"
	"github.com/dmitrymomot/pushkit/pkg/webpush"
)

// fakeTransport records every send and answers per endpoint: a zero status
// means success, anything else comes back as a *webpush.SendError.
type fakeTransport struct {
	mu       sync.Mutex
	statuses map[string]int
	calls    map[string]int
	payloads []webpush.Payload
	opts     []webpush.Options
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		statuses: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeTransport) respond(endpoint string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[endpoint] = status
}

func (f *fakeTransport) sends(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *fakeTransport) Send(ctx context.Context, endpoint string, keys subscription.Keys, payload webpush.Payload, opts webpush.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[endpoint]++
	f.payloads = append(f.payloads, payload)
	f.opts = append(f.opts, opts)

	if status := f.statuses[endpoint]; status != 0 {
		return &webpush.SendError{StatusCode: status}
	}
	return nil
}

// testEnv wires an engine over in-memory stores with a controllable clock.
type testEnv struct {
	users     *fanout.StaticUserResolver
	notifs    *notification.MemoryStore
	subs      *subscription.MemoryStore
	ledger    *delivery.MemoryLedger
	transport *fakeTransport

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		users:     fanout.NewStaticUserResolver(fanout.User{ID: "user-1", PushEnabled: true}),
		notifs:    notification.NewMemoryStore(),
		subs:      subscription.NewMemoryStore(),
		ledger:    delivery.NewMemoryLedger(),
		transport: newFakeTransport(),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) engine(opts ...fanout.Option) *fanout.Engine {
	opts = append([]fanout.Option{fanout.WithClock(e.clock)}, opts...)
	return fanout.New(e.users, e.notifs, e.subs, e.ledger, e.transport, opts...)
}

func (e *testEnv) addSubscription(t *testing.T, id, endpoint string) subscription.Subscription {
	t.Helper()
	sub := subscription.Subscription{
		ID:       id,
		UserID:   "user-1",
		Endpoint: endpoint,
		Keys:     subscription.Keys{P256dh: "p256dh-key", Auth: "auth-secret"},
		IsActive: true,
	}
	require.NoError(t, e.subs.Create(context.Background(), sub))
	return sub
}

func (e *testEnv) addNotification(t *testing.T, id string) notification.Notification {
	t.Helper()
	notif := notification.Notification{
		ID:       id,
		UserID:   "user-1",
		Channel:  notification.ChannelPush,
		Priority: notification.PriorityNormal,
		Title:    "New message",
		Body:     "You have a new message",
	}
	require.NoError(t, e.notifs.Create(context.Background(), notif))
	return notif
}

func TestEngine_Process_Preconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ignores non-push channels", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")

		res, err := env.engine().Process(ctx, notification.Notification{
			ID:      "notif-1",
			UserID:  "user-1",
			Channel: notification.ChannelEmail,
			Title:   "hi",
		})
		require.NoError(t, err)
		assert.Zero(t, res)
		assert.Zero(t, env.transport.sends("https://push.example.com/ep-1"))
	})

	t.Run("skips when transport is not configured", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
		notif := env.addNotification(t, "notif-1")

		engine := fanout.New(env.users, env.notifs, env.subs, env.ledger, nil)
		res, err := engine.Process(ctx, notif)
		require.NoError(t, err)
		assert.Zero(t, res)

		deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
		require.NoError(t, err)
		assert.Empty(t, deliveries)
	})

	t.Run("ignores users with push disabled", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.users.Set(fanout.User{ID: "user-1", PushEnabled: false})
		env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
		notif := env.addNotification(t, "notif-1")

		res, err := env.engine().Process(ctx, notif)
		require.NoError(t, err)
		assert.Zero(t, res)
		assert.Zero(t, env.transport.sends("https://push.example.com/ep-1"))
	})

	t.Run("no active subscriptions is a no-op", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		notif := env.addNotification(t, "notif-1")

		res, err := env.engine().Process(ctx, notif)
		require.NoError(t, err)
		assert.Zero(t, res)
	})

	t.Run("unknown user is an error", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.engine().Process(ctx, notification.Notification{
			ID:      "notif-1",
			UserID:  "user-unknown",
			Channel: notification.ChannelPush,
		})
		assert.ErrorIs(t, err, fanout.ErrUserNotFound)
	})
}

func TestEngine_Process_HappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.addSubscription(t, "sub-2", "https://push.example.com/ep-2")
	inactive := subscription.Subscription{
		ID:       "sub-3",
		UserID:   "user-1",
		Endpoint: "https://push.example.com/ep-3",
		Keys:     subscription.Keys{P256dh: "k", Auth: "a"},
		IsActive: false,
	}
	require.NoError(t, env.subs.Create(ctx, inactive))
	notif := env.addNotification(t, "notif-1")

	res, err := env.engine().Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 2, Sent: 2}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2, "one delivery per active subscription")

	for _, d := range deliveries {
		assert.Equal(t, delivery.StatusSent, d.Status)
		assert.Equal(t, 1, d.AttemptCount)
		require.NotNil(t, d.SentAt)
		assert.False(t, d.QueuedAt.After(*d.SentAt))
		assert.NotEqual(t, "sub-3", d.SubscriptionID)
	}

	sub, err := env.subs.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastUsedAt, "successful send touches the subscription")

	require.Len(t, env.transport.payloads, 2)
	assert.Equal(t, notif.ID, env.transport.payloads[0].NotificationID)
	assert.NotEmpty(t, env.transport.payloads[0].DeliveryID)
	assert.Zero(t, env.transport.sends("https://push.example.com/ep-3"))
}

func TestEngine_Process_SendTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	notif := env.addNotification(t, "notif-1")

	res, err := env.engine(fanout.WithSendTTL(3600)).Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 1, Sent: 1}, res)

	require.Len(t, env.transport.opts, 1)
	assert.Equal(t, 3600, env.transport.opts[0].TTL, "transport receives the configured TTL")

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, 3600, deliveries[0].Metadata.TTL, "effective TTL is recorded on the delivery")
}

func TestEngine_Process_GoneEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.transport.respond("https://push.example.com/ep-1", http.StatusGone)
	notif := env.addNotification(t, "notif-1")

	res, err := env.engine().Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 1, Failed: 1}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	d := deliveries[0]
	assert.Equal(t, delivery.StatusFailed, d.Status)
	assert.Equal(t, "410", d.ErrorCode)
	assert.Nil(t, d.RetryAfter, "gone is never retried")
	require.NotNil(t, d.FailedAt)
	assert.Equal(t, "push.example.com", d.Metadata.EndpointHost)

	sub, err := env.subs.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.False(t, sub.IsActive, "gone endpoint deactivates the subscription")
	assert.NotNil(t, sub.ExpiresAt)
}

func TestEngine_Process_TransientFailureRequeues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.transport.respond("https://push.example.com/ep-1", http.StatusInternalServerError)
	notif := env.addNotification(t, "notif-1")
	engine := env.engine()

	res, err := engine.Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 1, Requeued: 1}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	d := deliveries[0]
	assert.Equal(t, delivery.StatusQueued, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	assert.Equal(t, "500", d.ErrorCode)
	assert.Nil(t, d.FailedAt, "requeued delivery is not terminally failed")
	require.NotNil(t, d.RetryAfter)
	assert.Equal(t, env.clock().Add(fanout.DefaultRetryDelay), *d.RetryAfter)

	// The service recovers before the retry.
	env.transport.respond("https://push.example.com/ep-1", 0)
	env.advance(2 * time.Minute)

	status, err := engine.Attempt(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, status)

	got, err := env.ledger.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount, "attempt count keeps incrementing across retries")
	assert.NotNil(t, got.SentAt)
}

func TestEngine_Process_PartialFailureIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.addSubscription(t, "sub-2", "https://push.example.com/ep-2")
	env.addSubscription(t, "sub-3", "https://push.example.com/ep-3")
	env.transport.respond("https://push.example.com/ep-2", http.StatusBadRequest)
	notif := env.addNotification(t, "notif-1")

	res, err := env.engine().Process(ctx, notif)
	require.NoError(t, err, "per-device failures never surface as errors")
	assert.Equal(t, fanout.Result{Created: 3, Sent: 2, Failed: 1}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	statuses := make(map[string]delivery.Status, len(deliveries))
	for _, d := range deliveries {
		statuses[d.SubscriptionID] = d.Status
	}
	assert.Equal(t, delivery.StatusSent, statuses["sub-1"])
	assert.Equal(t, delivery.StatusFailed, statuses["sub-2"])
	assert.Equal(t, delivery.StatusSent, statuses["sub-3"])
}

func TestEngine_Process_AttemptsExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.transport.respond("https://push.example.com/ep-1", http.StatusServiceUnavailable)
	notif := env.addNotification(t, "notif-1")
	engine := env.engine(fanout.WithMaxAttempts(2))

	res, err := engine.Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 1, Requeued: 1}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	d := deliveries[0]

	env.advance(2 * time.Minute)
	status, err := engine.Attempt(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusFailed, status, "last attempt failing is terminal")

	got, err := env.ledger.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Nil(t, got.RetryAfter)
	assert.NotNil(t, got.FailedAt)
}

func TestEngine_Attempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects non-queued deliveries", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
		notif := env.addNotification(t, "notif-1")
		engine := env.engine()

		_, err := engine.Process(ctx, notif)
		require.NoError(t, err)

		deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
		require.NoError(t, err)

		status, err := engine.Attempt(ctx, deliveries[0].ID)
		assert.ErrorIs(t, err, fanout.ErrDeliveryNotQueued)
		assert.Equal(t, delivery.StatusSent, status)
	})

	t.Run("fails delivery for deactivated subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		sub := env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
		notif := env.addNotification(t, "notif-1")
		engine := env.engine()

		retryAt := env.clock()
		d := delivery.Delivery{
			ID:             "dlv-1",
			NotificationID: notif.ID,
			SubscriptionID: sub.ID,
			Status:         delivery.StatusQueued,
			MaxAttempts:    delivery.DefaultMaxAttempts,
			QueuedAt:       env.clock(),
			RetryAfter:     &retryAt,
		}
		require.NoError(t, env.ledger.Create(ctx, d))

		sub.Deactivate(env.clock())
		require.NoError(t, env.subs.Update(ctx, sub))

		status, err := engine.Attempt(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusFailed, status)

		got, err := env.ledger.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "SUBSCRIPTION_INACTIVE", got.ErrorCode)
		assert.Zero(t, env.transport.sends(sub.Endpoint))
	})

	t.Run("rejects queued delivery with exhausted attempts", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		sub := env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
		notif := env.addNotification(t, "notif-1")

		retryAt := env.clock()
		d := delivery.Delivery{
			ID:             "dlv-1",
			NotificationID: notif.ID,
			SubscriptionID: sub.ID,
			Status:         delivery.StatusQueued,
			AttemptCount:   delivery.DefaultMaxAttempts,
			MaxAttempts:    delivery.DefaultMaxAttempts,
			QueuedAt:       env.clock(),
			RetryAfter:     &retryAt,
		}
		require.NoError(t, env.ledger.Create(ctx, d))

		_, err := env.engine().Attempt(ctx, d.ID)
		assert.ErrorIs(t, err, delivery.ErrAttemptsExhausted)
		assert.Zero(t, env.transport.sends(sub.Endpoint))
	})

	t.Run("unknown delivery", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.engine().Attempt(ctx, "missing")
		assert.ErrorIs(t, err, delivery.ErrDeliveryNotFound)
	})

	t.Run("nil transport", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		engine := fanout.New(env.users, env.notifs, env.subs, env.ledger, nil)

		_, err := engine.Attempt(ctx, "dlv-1")
		assert.ErrorIs(t, err, fanout.ErrTransportNotConfigured)
	})
}

// flakyLedger fails a bounded number of writes that would mark a delivery as
// in-flight, then behaves normally.
type flakyLedger struct {
	*delivery.MemoryLedger
	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) Update(ctx context.Context, d delivery.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.Status == delivery.StatusSending && l.failures > 0 {
		l.failures--
		return errors.New("write timeout")
	}
	return l.MemoryLedger.Update(ctx, d)
}

func TestEngine_Process_LedgerWriteFailureRequeues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	notif := env.addNotification(t, "notif-1")

	flaky := &flakyLedger{MemoryLedger: env.ledger, failures: 1}
	engine := fanout.New(env.users, env.notifs, env.subs, flaky, env.transport,
		fanout.WithClock(env.clock),
	)

	res, err := engine.Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 1, Requeued: 1}, res)
	assert.Zero(t, env.transport.sends("https://push.example.com/ep-1"), "nothing is sent when the write fails")

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	d := deliveries[0]
	assert.Equal(t, delivery.StatusQueued, d.Status)
	assert.Zero(t, d.AttemptCount, "an attempt that never sent is given back")
	assert.Equal(t, "LEDGER_WRITE_FAILED", d.ErrorCode)
	require.NotNil(t, d.RetryAfter, "rescheduled so the due scan picks it up")
	assert.Equal(t, env.clock().Add(fanout.DefaultRetryDelay), *d.RetryAfter)

	// The ledger recovers and the due scan drives the delivery to sent.
	env.advance(2 * time.Minute)
	res, err = engine.ProcessDue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Sent: 1}, res)

	got, err := env.ledger.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestEngine_ProcessDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.addSubscription(t, "sub-2", "https://push.example.com/ep-2")
	env.transport.respond("https://push.example.com/ep-1", http.StatusBadGateway)
	env.transport.respond("https://push.example.com/ep-2", http.StatusBadGateway)
	notif := env.addNotification(t, "notif-1")
	engine := env.engine()

	res, err := engine.Process(ctx, notif)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Created: 2, Requeued: 2}, res)

	// Nothing is due before the retry delay elapses.
	res, err = engine.ProcessDue(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, res)

	env.transport.respond("https://push.example.com/ep-1", 0)
	env.transport.respond("https://push.example.com/ep-2", 0)
	env.advance(2 * time.Minute)

	res, err = engine.ProcessDue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, fanout.Result{Sent: 2}, res)

	deliveries, err := env.ledger.ListByNotification(ctx, notif.ID)
	require.NoError(t, err)
	for _, d := range deliveries {
		assert.Equal(t, delivery.StatusSent, d.Status)
		assert.Equal(t, 2, d.AttemptCount)
	}
}

func TestEngine_ProcessDue_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.addSubscription(t, "sub-1", "https://push.example.com/ep-1")
	env.addSubscription(t, "sub-2", "https://push.example.com/ep-2")
	env.transport.respond("https://push.example.com/ep-1", http.StatusBadGateway)
	env.transport.respond("https://push.example.com/ep-2", http.StatusBadGateway)
	notif := env.addNotification(t, "notif-1")
	engine := env.engine()

	_, err := engine.Process(ctx, notif)
	require.NoError(t, err)

	env.transport.respond("https://push.example.com/ep-1", 0)
	env.transport.respond("https://push.example.com/ep-2", 0)
	env.advance(2 * time.Minute)

	res, err := engine.ProcessDue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent+res.Requeued+res.Failed, "limit caps one batch")
}
