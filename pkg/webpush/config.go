package webpush

// Config holds the VAPID signing identity used to authenticate against push
// services, plus payload defaults. The key pair is generated once per
// deployment (e.g. with webpush-go's GenerateVAPIDKeys) and must stay stable:
// rotating it invalidates every existing subscription.
type Config struct {
	// Subject identifies the sender to the push service, either a https URL
	// or a mailto address.
	Subject         string `env:"WEBPUSH_SUBJECT" envDefault:"mailto:admin@example.com"`
	VAPIDPublicKey  string `env:"WEBPUSH_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"WEBPUSH_VAPID_PRIVATE_KEY"`

	// DefaultTTL is how long, in seconds, the push service may hold an
	// undelivered message before dropping it.
	DefaultTTL int `env:"WEBPUSH_TTL" envDefault:"86400"`
}

// Configured reports whether a signing identity is present. The fan-out
// engine treats a missing identity as an operational misconfiguration and
// skips processing entirely.
func (c Config) Configured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
