// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development.
//
// Configuration is declared with struct tags:
//
//	type DirectoryConfig struct {
//		BaseURL string        `env:"DIRECTORY_BASE_URL,required"`
//		Timeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"10s"`
//	}
package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("config target must be a non-nil pointer")
	ErrParsingConfig = errors.New("failed to parse config from environment")
)

var loadDotEnv sync.Once

// Load parses environment variables into v. The default .env file is loaded
// once per process before the first parse; a missing .env file is not an
// error.
func Load[T any](v *T) error {
	loadDotEnv.Do(func() {
		_ = godotenv.Load()
	})

	if v == nil {
		return ErrNilPointer
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Used for configuration
// the service cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}
