// Package subscription manages registered web-push device endpoints.
//
// A Subscription ties a browser push endpoint and its encryption keys to a
// user. One user may hold many subscriptions (one per device/browser), and
// endpoints are unique across the whole store.
//
// # Lifecycle
//
// Subscriptions are created through Service.Register when a browser hands
// over its PushManager subscription, and soft-deleted (IsActive=false with a
// stamped ExpiresAt) either explicitly through Service.Unregister or by the
// fan-out engine when the push service reports the endpoint permanently gone.
// Rows are never physically deleted so the device history stays available.
//
// # Usage
//
//	store := subscription.NewMemoryStore()
//	svc := subscription.NewService(store)
//
//	sub, outcome, err := svc.Register(ctx, subscription.RegisterInput{
//	    UserID:   "user-123",
//	    Endpoint: "https://fcm.googleapis.com/fcm/send/abc",
//	    Keys:     subscription.Keys{P256dh: "...", Auth: "..."},
//	})
//
// For production, implement the Store interface with your database; a
// Postgres implementation backed by pgx is provided in PGStore.
package subscription
