package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type options struct {
	prefix      string
	files       []string
	environment map[string]string
}

// Option configures Load.
type Option func(*options)

// WithPrefix requires every variable to carry prefix (for example "TENANTD_").
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvFiles loads the given dotenv files before parsing. Missing files are skipped.
// Variables already present in the process environment are never overridden.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.files = append(o.files, files...) }
}

// WithEnvironment parses from vars instead of the process environment. Intended for tests.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// Load parses environment variables into a new T according to its `env` struct tags.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	cfg, err := config.Load[Config](config.WithEnvFiles(".env"))
func Load[T any](opts ...Option) (T, error) {
	o := options{files: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	if o.environment == nil {
		for _, f := range o.files {
			if _, err := os.Stat(f); err != nil {
				continue
			}
			if err := godotenv.Load(f); err != nil {
				return zero, errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
			}
		}
	}

	cfg, err := env.ParseAsWithOptions[T](env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
	})
	if err != nil {
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad is Load that panics on error. Use it for configuration the process cannot start
// without.
func MustLoad[T any](opts ...Option) T {
	cfg, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}
