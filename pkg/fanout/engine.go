package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/delivery"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/notification"
	"github.com/dmitrymomot/pushkit/pkg/subscription"
	"github.com/dmitrymomot/pushkit/pkg/webpush"
)

// DefaultRetryDelay is the pause before a transiently failed delivery becomes
// due for another attempt.
const DefaultRetryDelay = time.Minute

// Result aggregates the per-device outcomes of one fan-out or re-dispatch
// run. It exists for audit logging: partial failure is an expected terminal
// state for a notification and is not an error.
type Result struct {
	Created  int // deliveries created at fan-out time
	Sent     int // transport accepted the push
	Requeued int // transient failure, scheduled for retry
	Failed   int // terminal failure
}

// Engine fans one push notification out to all active device subscriptions of
// its user and drives each resulting delivery through its send attempts.
//
// The engine holds no state between invocations; every notification event is
// processed independently against the ledger.
type Engine struct {
	users     UserResolver
	notifs    notification.Store
	subs      subscription.Store
	ledger    delivery.Ledger
	transport webpush.Transport

	maxAttempts   int
	retryDelay    time.Duration
	maxConcurrent int
	sendTTL       int
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxAttempts sets how many send attempts each delivery gets.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause before a requeued delivery becomes due.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

// WithMaxConcurrent bounds how many device sends run in parallel during one
// fan-out. Devices are independent; no cross-device ordering exists either way.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithSendTTL sets the TTL in seconds requested for each push and recorded
// in the delivery metadata. Zero leaves the transport default in effect.
func WithSendTTL(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.sendTTL = seconds
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a fan-out engine. A nil transport is allowed and treated as
// "not configured": push notifications are then acknowledged and skipped,
// which keeps a host without VAPID keys functional.
func New(users UserResolver, notifs notification.Store, subs subscription.Store, ledger delivery.Ledger, transport webpush.Transport, opts ...Option) *Engine {
	e := &Engine{
		users:         users,
		notifs:        notifs,
		subs:          subs,
		ledger:        ledger,
		transport:     transport,
		maxAttempts:   delivery.DefaultMaxAttempts,
		retryDelay:    DefaultRetryDelay,
		maxConcurrent: 4,
		logger:        slog.Default(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Process handles one "notification created" event.
//
// Preconditions are checked in order and each short-circuits as a no-op:
// non-push channel, missing transport configuration, user with push disabled,
// no active subscriptions. Past the preconditions, one delivery is created
// per active subscription before any send, then sends run with bounded
// parallelism and full per-device failure isolation.
//
// An error is returned only for operational failures: the user cannot be
// loaded, subscriptions cannot be listed, or a delivery cannot be created.
// Per-device send failures end up in the Result, never in the error.
func (e *Engine) Process(ctx context.Context, notif notification.Notification) (Result, error) {
	var res Result

	if !notif.IsPush() {
		e.logger.DebugContext(ctx, "notification is not addressed to the push channel, ignoring",
			logger.NotificationID(notif.ID),
			slog.String("channel", string(notif.Channel)),
		)
		return res, nil
	}

	if e.transport == nil {
		e.logger.WarnContext(ctx, "push transport is not configured, skipping notification",
			logger.NotificationID(notif.ID),
		)
		return res, nil
	}

	user, err := e.users.Resolve(ctx, notif.UserID)
	if err != nil {
		return res, fmt.Errorf("failed to load user %s: %w", notif.UserID, err)
	}
	if !user.PushEnabled {
		e.logger.DebugContext(ctx, "user has push disabled, ignoring notification",
			logger.NotificationID(notif.ID),
			logger.UserID(user.ID),
		)
		return res, nil
	}

	subs, err := e.subs.ListActive(ctx, notif.UserID)
	if err != nil {
		return res, fmt.Errorf("failed to list active subscriptions for user %s: %w", notif.UserID, err)
	}
	if len(subs) == 0 {
		e.logger.DebugContext(ctx, "user has no active subscriptions, ignoring notification",
			logger.NotificationID(notif.ID),
			logger.UserID(user.ID),
		)
		return res, nil
	}

	// Create every delivery before attempting any send: the ledger row is
	// what guarantees at-most-one fan-out per (notification, subscription)
	// pair and what the retry path is keyed off.
	type unit struct {
		d   delivery.Delivery
		sub subscription.Subscription
	}
	units := make([]unit, 0, len(subs))

	for _, sub := range subs {
		d := delivery.Delivery{
			ID:             uuid.New().String(),
			NotificationID: notif.ID,
			SubscriptionID: sub.ID,
			Status:         delivery.StatusQueued,
			AttemptCount:   0,
			MaxAttempts:    e.maxAttempts,
			QueuedAt:       e.now(),
		}
		if err := e.ledger.Create(ctx, d); err != nil {
			return res, fmt.Errorf("failed to create delivery for subscription %s: %w", sub.ID, err)
		}
		res.Created++
		units = append(units, unit{d: d, sub: sub})
	}

	sem := make(chan struct{}, e.maxConcurrent)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := range units {
		wg.Add(1)
		sem <- struct{}{}

		go func(u *unit) {
			defer wg.Done()
			defer func() { <-sem }()

			status := e.attempt(ctx, &u.d, &u.sub, notif)

			mu.Lock()
			defer mu.Unlock()
			switch status {
			case delivery.StatusSent:
				res.Sent++
			case delivery.StatusQueued:
				res.Requeued++
			default:
				res.Failed++
			}
		}(&units[i])
	}

	wg.Wait()

	e.logger.InfoContext(ctx, "push notification fan-out finished",
		logger.NotificationID(notif.ID),
		logger.UserID(user.ID),
		slog.Int("devices", res.Created),
		slog.Int("sent", res.Sent),
		slog.Int("requeued", res.Requeued),
		slog.Int("failed", res.Failed),
	)

	return res, nil
}

// Attempt runs one send attempt for a queued delivery. It is the single code
// path behind both fan-out-time sends and scheduler-driven retries, keyed off
// the delivery state rather than the notification event. The returned status
// is the delivery status after the attempt.
func (e *Engine) Attempt(ctx context.Context, deliveryID string) (delivery.Status, error) {
	if e.transport == nil {
		return "", ErrTransportNotConfigured
	}

	d, err := e.ledger.Get(ctx, deliveryID)
	if err != nil {
		return "", err
	}
	if d.Status != delivery.StatusQueued {
		return d.Status, fmt.Errorf("%w: delivery %s is %s", ErrDeliveryNotQueued, d.ID, d.Status)
	}
	if d.AttemptsExhausted() {
		// Queued rows normally never outlive their attempt budget; one that
		// did was edited out of band and must not be sent again.
		return d.Status, fmt.Errorf("%w: delivery %s used %d of %d attempts", delivery.ErrAttemptsExhausted, d.ID, d.AttemptCount, d.MaxAttempts)
	}

	sub, err := e.subs.Get(ctx, d.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("failed to load subscription %s: %w", d.SubscriptionID, err)
	}
	if !sub.IsActive {
		// The subscription died between scheduling and re-dispatch.
		d.MarkFailed(e.now(), "SUBSCRIPTION_INACTIVE", "subscription is no longer active")
		if err := e.ledger.Update(ctx, *d); err != nil {
			return "", fmt.Errorf("failed to update delivery %s: %w", d.ID, err)
		}
		return d.Status, nil
	}

	notif, err := e.notifs.Get(ctx, d.NotificationID)
	if err != nil {
		return "", fmt.Errorf("failed to load notification %s: %w", d.NotificationID, err)
	}

	return e.attempt(ctx, d, sub, *notif), nil
}

// ProcessDue re-dispatches queued deliveries whose retry_after has elapsed,
// up to limit (0 = no limit). Per-delivery failures are logged and skipped;
// only a ledger listing failure aborts the run.
func (e *Engine) ProcessDue(ctx context.Context, limit int) (Result, error) {
	var res Result

	due, err := e.ledger.ListDue(ctx, e.now(), limit)
	if err != nil {
		return res, fmt.Errorf("failed to list due deliveries: %w", err)
	}

	for _, d := range due {
		status, err := e.Attempt(ctx, d.ID)
		if err != nil {
			if errors.Is(err, ErrDeliveryNotQueued) {
				// A concurrent attempt or confirmation got there first.
				continue
			}
			e.logger.ErrorContext(ctx, "failed to re-attempt delivery",
				logger.DeliveryID(d.ID),
				logger.Error(err),
			)
			continue
		}

		switch status {
		case delivery.StatusSent:
			res.Sent++
		case delivery.StatusQueued:
			res.Requeued++
		default:
			res.Failed++
		}
	}

	return res, nil
}

// attempt drives one send attempt: queued -> sending -> {sent | queued |
// failed}. All errors are contained here; the returned value is the delivery
// status after the attempt. Ledger and subscription write failures inside the
// attempt are logged and degrade the outcome to failed, but never escape the
// per-device boundary.
func (e *Engine) attempt(ctx context.Context, d *delivery.Delivery, sub *subscription.Subscription, notif notification.Notification) delivery.Status {
	d.Status = delivery.StatusSending
	d.AttemptCount++
	d.Metadata.TTL = e.sendTTL
	if err := e.ledger.Update(ctx, *d); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark delivery as sending",
			logger.DeliveryID(d.ID),
			logger.Error(err),
		)
		// Nothing was sent. Give the attempt back and reschedule, otherwise
		// the row would sit queued with no retry_after and never be picked
		// up by the due scan.
		d.AttemptCount--
		d.Requeue(e.now().Add(e.retryDelay), "LEDGER_WRITE_FAILED", err.Error())
		if uerr := e.ledger.Update(ctx, *d); uerr != nil {
			e.logger.ErrorContext(ctx, "failed to reschedule delivery after ledger write failure",
				logger.DeliveryID(d.ID),
				logger.Error(uerr),
			)
			return delivery.StatusFailed
		}
		return d.Status
	}

	payload := webpush.Payload{
		Title:          notif.Title,
		Body:           notif.Body,
		IconURL:        notif.IconURL,
		ActionURL:      notif.ActionURL,
		Priority:       notif.Priority,
		NotificationID: notif.ID,
		DeliveryID:     d.ID,
		Data:           notif.Data,
	}
	opts := webpush.Options{
		TTL:     e.sendTTL,
		Urgency: webpush.UrgencyFor(notif.Priority),
	}

	err := e.transport.Send(ctx, sub.Endpoint, sub.Keys, payload, opts)
	now := e.now()

	if err == nil {
		d.MarkSent(now)
		if uerr := e.ledger.Update(ctx, *d); uerr != nil {
			e.logger.ErrorContext(ctx, "failed to mark delivery as sent",
				logger.DeliveryID(d.ID),
				logger.Error(uerr),
			)
		}

		sub.Touch(now)
		if uerr := e.subs.Update(ctx, *sub); uerr != nil {
			e.logger.ErrorContext(ctx, "failed to touch subscription after send",
				logger.SubscriptionID(sub.ID),
				logger.Error(uerr),
			)
		}

		e.logger.InfoContext(ctx, "push sent",
			logger.DeliveryID(d.ID),
			logger.SubscriptionID(sub.ID),
			slog.String("device", sub.DeviceLabel()),
			slog.Int("attempt", d.AttemptCount),
		)
		return d.Status
	}

	return e.handleSendFailure(ctx, d, sub, err, now)
}

// handleSendFailure classifies a transport failure and applies the retry and
// deactivation policy.
func (e *Engine) handleSendFailure(ctx context.Context, d *delivery.Delivery, sub *subscription.Subscription, sendErr error, now time.Time) delivery.Status {
	code := webpush.Code(sendErr)
	msg := sendErr.Error()

	d.Metadata.Device = sub.DeviceLabel()
	d.Metadata.EndpointHost = sub.EndpointHost()
	var se *webpush.SendError
	if errors.As(sendErr, &se) {
		d.Metadata.ResponseHeaders = se.Headers
	}

	gone := webpush.IsGone(sendErr)
	if gone {
		// A gone endpoint is permanently dead: deactivate the subscription
		// so it is never selected for fan-out again, and never retry.
		sub.Deactivate(now)
		if uerr := e.subs.Update(ctx, *sub); uerr != nil {
			e.logger.ErrorContext(ctx, "failed to deactivate gone subscription",
				logger.SubscriptionID(sub.ID),
				logger.Error(uerr),
			)
		} else {
			e.logger.InfoContext(ctx, "subscription endpoint gone, deactivated",
				logger.SubscriptionID(sub.ID),
				slog.String("device", sub.DeviceLabel()),
			)
		}
	}

	if !gone && webpush.IsRetryable(sendErr) && !d.AttemptsExhausted() {
		d.Requeue(now.Add(e.retryDelay), code, msg)
	} else {
		d.MarkFailed(now, code, msg)
	}

	if uerr := e.ledger.Update(ctx, *d); uerr != nil {
		e.logger.ErrorContext(ctx, "failed to record delivery failure",
			logger.DeliveryID(d.ID),
			logger.Error(uerr),
		)
		return delivery.StatusFailed
	}

	e.logger.WarnContext(ctx, "push send failed",
		logger.DeliveryID(d.ID),
		logger.SubscriptionID(sub.ID),
		slog.String("device", sub.DeviceLabel()),
		slog.String("status", string(d.Status)),
		slog.String("error_code", code),
		slog.Int("attempt", d.AttemptCount),
		logger.Error(sendErr),
	)

	return d.Status
}
