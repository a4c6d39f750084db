// Package notification defines the notification domain model consumed by the
// push fan-out engine.
//
// A Notification is one message addressed to one user on one channel. The
// push engine treats notifications as immutable input: it reads them at
// fan-out time and again when re-attempting a queued delivery, but never
// mutates them. Creation is the host application's job.
//
// # Usage
//
//	store := notification.NewMemoryStore()
//
//	notif := notification.Notification{
//	    ID:      uuid.New().String(),
//	    UserID:  "user-123",
//	    Channel: notification.ChannelPush,
//	    Title:   "Build finished",
//	    Body:    "Pipeline #42 completed successfully",
//	}
//	if err := store.Create(ctx, notif); err != nil {
//	    // handle error
//	}
//
// For production, implement the Store interface against your database; the
// included MemoryStore is meant for development and tests.
package notification
