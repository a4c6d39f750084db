package notification

import (
	"time"
)

// Channel represents the delivery channel a notification is addressed to.
// Only ChannelPush engages the push fan-out engine; the remaining channels
// are handled by other systems and pass through untouched.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is one message addressed to one user. It is immutable after
// creation: the fan-out engine only ever reads it.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Channel   Channel        `json:"channel"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	ActionURL string         `json:"action_url,omitempty"`
	IconURL   string         `json:"icon_url,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsPush reports whether the notification is addressed to the push channel.
func (n Notification) IsPush() bool {
	return n.Channel == ChannelPush
}
