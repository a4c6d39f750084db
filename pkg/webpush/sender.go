package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dmitrymomot/pushkit/pkg/subscription"
)

// Sender is a Transport backed by the webpush-go library, which owns the
// payload encryption and VAPID request signing.
type Sender struct {
	cfg    Config
	client *http.Client
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient sets a custom HTTP client, mainly for tests and custom
// transports. Nil clients are ignored.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// NewSender creates a webpush sender. It fails fast when the VAPID identity
// is missing so a misconfigured deployment is caught at wiring time.
func NewSender(cfg Config, opts ...SenderOption) (*Sender, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	s := &Sender{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10, // push services concentrate many endpoints per host
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Send encrypts and posts the payload to the subscription endpoint. A non-2xx
// push-service response is returned as *SendError.
func (s *Sender) Send(ctx context.Context, endpoint string, keys subscription.Keys, payload Payload, opts Options) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	urgency := opts.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: keys.P256dh,
			Auth:   keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             ttl,
		Urgency:         webpush.Urgency(urgency),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read response body for error context (8KB limit is plenty for push
	// service error messages)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	msg := strings.TrimSpace(strings.ReplaceAll(string(raw), "\n", " "))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}

	return &SendError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Headers:    retryHeaders(resp.Header),
	}
}

// retryHeaders keeps the response headers worth persisting on the delivery.
func retryHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for _, name := range []string{"Retry-After", "Location"} {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
