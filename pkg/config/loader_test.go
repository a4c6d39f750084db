package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/config"
)

type testConfig struct {
	Subject string `env:"TEST_WEBPUSH_SUBJECT" envDefault:"mailto:admin@example.com"`
	TTL     int    `env:"TEST_WEBPUSH_TTL" envDefault:"86400"`
	APIKey  string `env:"TEST_REQUIRED_KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Run("reads environment with defaults", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED_KEY", "secret")
		t.Setenv("TEST_WEBPUSH_TTL", "3600")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, "mailto:admin@example.com", cfg.Subject)
		assert.Equal(t, 3600, cfg.TTL)
		assert.Equal(t, "secret", cfg.APIKey)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg testConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("returns on success", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED_KEY", "secret")

		assert.NotPanics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})
}
