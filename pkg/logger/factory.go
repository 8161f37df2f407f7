package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents logger output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config is the env-driven logger configuration.
type Config struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Format      string `env:"LOG_FORMAT" envDefault:"json"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Service     string `env:"APP_SERVICE" envDefault:"tenantd"`
}

// Option configures logger creation.
type Option func(*config)

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat sets output format. Unknown formats panic so misconfiguration stops startup.
func WithFormat(f Format) Option {
	return func(c *config) {
		switch f {
		case FormatJSON, FormatText:
			c.format = f
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
	}
}

// WithOutput sets the output destination. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithContextExtractors registers functions that add request-scoped attributes from context.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies environment defaults: text and debug for development, JSON and info
// otherwise. The service and env names are attached to every record.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		switch strings.ToLower(env) {
		case "production", "prod", "staging", "stage":
			c.level = slog.LevelInfo
			c.format = FormatJSON
		default:
			c.level = slog.LevelDebug
			c.format = FormatText
		}
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		if env != "" {
			c.attrs = append(c.attrs, slog.String("env", env))
		}
	}
}

// FromConfig translates Config into options. Explicit level and format override the
// environment defaults.
func FromConfig(cfg Config) []Option {
	opts := []Option{WithEnvironment(cfg.Environment, cfg.Service)}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err == nil && cfg.Level != "" {
		opts = append(opts, WithLevel(lvl))
	}
	if cfg.Format != "" {
		opts = append(opts, WithFormat(Format(strings.ToLower(cfg.Format))))
	}
	return opts
}

// New creates a slog.Logger whose handler injects context attributes on every record.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level}

	var handler slog.Handler
	if cfg.format == FormatText {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}

	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}

	return slog.New(NewLogHandlerDecorator(handler, cfg.extractors...))
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
