// Package webpush abstracts the Web Push transport behind a one-shot Send
// operation with typed failures.
//
// The Transport interface performs exactly one network delivery per call.
// The provided Sender implementation delegates payload encryption and VAPID
// signing to github.com/SherClockHolmes/webpush-go; this package adds the
// failure taxonomy the fan-out engine needs:
//
//   - *SendError carries the push service's HTTP status code
//   - IsGone detects permanently dead endpoints (410)
//   - IsRetryable classifies transient failures (network, 5xx, 408, 429)
//
// # Usage
//
//	sender, err := webpush.NewSender(cfg)
//	if err != nil {
//	    // VAPID identity missing
//	}
//
//	err = sender.Send(ctx, sub.Endpoint, sub.Keys, webpush.Payload{
//	    Title:          "Hi",
//	    Body:           "there",
//	    NotificationID: notif.ID,
//	    DeliveryID:     d.ID,
//	}, webpush.Options{Urgency: webpush.UrgencyFor(notif.Priority)})
//
//	if webpush.IsGone(err) {
//	    // deactivate the subscription
//	}
package webpush
