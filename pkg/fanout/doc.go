// Package fanout implements the push notification fan-out engine: given a
// "notification created" event, it resolves the user's active device
// subscriptions, creates one tracked delivery per device, and drives each
// through its send attempts with retry bookkeeping and full per-device
// failure isolation.
//
// # Flow
//
// Process checks fan-out preconditions in order (push channel, configured
// transport, user opt-in, active subscriptions), each a silent no-op when it
// fails. It then creates one queued delivery per subscription before any send
// and attempts them with bounded parallelism. A failing device never affects
// the others; partial completion is a normal terminal state reported through
// Result.
//
// Transport failures are classified by pkg/webpush: transient failures
// requeue the delivery with a retry_after stamp (while attempts remain),
// permanent ones fail it, and a 410 additionally deactivates the subscription
// regardless of remaining attempts.
//
// # Retries
//
// A requeued delivery is re-attempted through the same Attempt code path the
// fan-out uses, keyed off delivery state rather than the notification event.
// The bundled Retrier polls the ledger for due deliveries; hosts with their
// own scheduler can call Engine.ProcessDue directly instead.
//
// # Usage
//
//	engine := fanout.New(users, notifStore, subStore, ledger, sender,
//	    fanout.WithLogger(log),
//	)
//
//	// on each "notification created" event:
//	res, err := engine.Process(ctx, notif)
//
//	// optional background retry loop:
//	retrier := fanout.NewRetrier(engine, fanout.WithPollInterval(30*time.Second))
//	_ = retrier.Start(ctx)
//	defer retrier.Stop()
package fanout
