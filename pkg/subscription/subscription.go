package subscription

import (
	"net/url"
	"time"
)

// Keys holds the client-generated encryption material for one push endpoint.
// Both values are opaque base64url strings produced by the browser's
// PushManager; the transport needs them to encrypt payloads.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription represents one registered device/browser push endpoint for a
// user. Endpoints are unique across all subscriptions.
//
// Subscriptions are soft-deleted: deactivation flips IsActive and stamps
// ExpiresAt so the audit history of a device's lifetime survives for
// debugging delivery failures.
type Subscription struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Endpoint   string     `json:"endpoint"`
	Keys       Keys       `json:"keys"`
	UserAgent  string     `json:"user_agent,omitempty"`
	DeviceName string     `json:"device_name,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Deactivate soft-deletes the subscription, stamping the expiry time.
func (s *Subscription) Deactivate(at time.Time) {
	s.IsActive = false
	s.ExpiresAt = &at
}

// Touch records a successful send through this subscription.
func (s *Subscription) Touch(at time.Time) {
	s.LastUsedAt = &at
}

// DeviceLabel returns a human-readable label for the device, preferring the
// explicit device name over the raw user agent.
func (s *Subscription) DeviceLabel() string {
	if s.DeviceName != "" {
		return s.DeviceName
	}
	return s.UserAgent
}

// EndpointHost returns the hostname of the push-service endpoint, or an empty
// string if the endpoint is not a valid URL.
func (s *Subscription) EndpointHost() string {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
