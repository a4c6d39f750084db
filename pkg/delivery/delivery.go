package delivery

import (
	"time"
)

// Status represents the delivery lifecycle state.
//
// The state machine is:
//
//	queued -> sending -> {sent | queued (retry) | failed}
//	sent -> delivered -> read
//
// failed and read are terminal. A retried delivery re-enters at sending on
// its next attempt; attempt_count keeps incrementing and is never reset.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders statuses along the happy path so that client
// confirmations only ever move a delivery forward.
var statusRank = map[Status]int{
	StatusQueued:    0,
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// transitions holds the allowed state changes, keyed by source state.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusSending},
	StatusSending:   {StatusSent, StatusQueued, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead},
}

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusRead
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AtLeast reports whether s has reached rank of target on the happy path.
// Failed deliveries rank nowhere and always report false.
func (s Status) AtLeast(target Status) bool {
	sr, ok := statusRank[s]
	if !ok {
		return false
	}
	tr, ok := statusRank[target]
	if !ok {
		return false
	}
	return sr >= tr
}

// Metadata captures context about a delivery attempt for the audit trail.
type Metadata struct {
	Device          string            `json:"device,omitempty"`
	EndpointHost    string            `json:"endpoint_host,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	TTL             int               `json:"ttl,omitempty"`
}

// Delivery tracks one attempt chain to deliver one notification to one
// subscription. It is the unit of retry and the audit trail: exactly one
// Delivery exists per (Notification, Subscription) pair, created at fan-out
// time, and rows are never deleted.
type Delivery struct {
	ID             string     `json:"id"`
	NotificationID string     `json:"notification_id"`
	SubscriptionID string     `json:"subscription_id"`
	Status         Status     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	QueuedAt       time.Time  `json:"queued_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	RetryAfter     *time.Time `json:"retry_after,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Metadata       Metadata   `json:"metadata,omitzero"`
}

// DefaultMaxAttempts is the number of send attempts a delivery gets before it
// is considered terminally failed.
const DefaultMaxAttempts = 3

// AttemptsExhausted reports whether the delivery has used up its attempts.
func (d *Delivery) AttemptsExhausted() bool {
	return d.AttemptCount >= d.MaxAttempts
}

// MarkSent records a successful transport send.
func (d *Delivery) MarkSent(at time.Time) {
	d.Status = StatusSent
	d.SentAt = &at
}

// MarkFailed records a terminal failure with the classifying error fields.
func (d *Delivery) MarkFailed(at time.Time, code, message string) {
	d.Status = StatusFailed
	d.FailedAt = &at
	d.RetryAfter = nil
	d.ErrorCode = code
	d.ErrorMessage = message
}

// Requeue schedules another attempt after a transient failure. The failure
// details are recorded but failed_at stays clear: the delivery is not
// terminally failed yet.
func (d *Delivery) Requeue(retryAt time.Time, code, message string) {
	d.Status = StatusQueued
	d.FailedAt = nil
	d.RetryAfter = &retryAt
	d.ErrorCode = code
	d.ErrorMessage = message
}
