package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load populates the configuration struct from environment variables based on
// its `env` field tags. A .env file in the working directory is loaded once
// per process before the first parse; a missing file is not an error.
//
// Example:
//
//	type WebPushConfig struct {
//	    Subject    string `env:"WEBPUSH_SUBJECT" envDefault:"mailto:admin@example.com"`
//	    PublicKey  string `env:"WEBPUSH_VAPID_PUBLIC_KEY,required"`
//	    PrivateKey string `env:"WEBPUSH_VAPID_PRIVATE_KEY,required"`
//	}
//
//	var cfg WebPushConfig
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	defaultEnvLoaded.Do(func() {
		// The .env file is a development convenience and might not exist.
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	return nil
}

// MustLoad works like Load but panics if configuration loading fails. Useful
// for configurations the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
