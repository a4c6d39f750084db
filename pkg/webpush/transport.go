package webpush

import (
	"context"

	"github.com/dmitrymomot/pushkit/pkg/notification"
	"github.com/dmitrymomot/pushkit/pkg/subscription"
)

// Payload is the JSON document delivered to the service worker. DeliveryID
// lets the worker call back to confirm the push was shown or clicked.
type Payload struct {
	Title          string                `json:"title"`
	Body           string                `json:"body,omitempty"`
	IconURL        string                `json:"icon_url,omitempty"`
	ActionURL      string                `json:"action_url,omitempty"`
	Priority       notification.Priority `json:"priority,omitempty"`
	NotificationID string                `json:"notification_id"`
	DeliveryID     string                `json:"delivery_id"`
	Data           map[string]any        `json:"data,omitempty"`
}

// Urgency mirrors the Web Push urgency header values.
type Urgency string

const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

// UrgencyFor maps a notification priority to the wire urgency. Urgent and
// high both map to high: the push protocol has no level above it.
func UrgencyFor(p notification.Priority) Urgency {
	switch p {
	case notification.PriorityLow:
		return UrgencyLow
	case notification.PriorityHigh, notification.PriorityUrgent:
		return UrgencyHigh
	default:
		return UrgencyNormal
	}
}

// Options controls how the push service handles one send.
type Options struct {
	// TTL is how long, in seconds, the push service may hold the message.
	TTL int
	// Urgency hints at delivery priority, affecting battery-aware devices.
	Urgency Urgency
}

// Transport attempts exactly one network delivery of a payload to a device
// endpoint. Failures with a push-service status code come back as *SendError;
// anything else is a network-level failure.
type Transport interface {
	Send(ctx context.Context, endpoint string, keys subscription.Keys, payload Payload, opts Options) error
}
