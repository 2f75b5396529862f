// Package nimbuslog provides the structured logger used by every nimbusdb
// component. Unlike a lazily-initialized global, a Registry is constructed
// once by the facade and passed explicitly to constructors, so storage
// engines and query tasks never reach for ambient state.
package nimbuslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level selects the minimum severity a Registry's loggers emit.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how a Registry renders log lines.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Registry owns the base logger that every component derives a child logger
// from. It is constructed once, typically by the top-level facade.
type Registry struct {
	base zerolog.Logger
}

// NewRegistry builds a Registry from cfg. An empty cfg is valid: it logs at
// info level to stdout in console form.
func NewRegistry(cfg Config) *Registry {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	case InfoLevel, "":
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var base zerolog.Logger
	if cfg.JSONOutput {
		base = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).Level(level).With().Timestamp().Logger()
	}
	return &Registry{base: base}
}

// FromEnv parses the NIMBUS_LOG selector (debug|info|warn|error) the way the
// spec's RUST_LOG-style variable would be read, defaulting to info.
func FromEnv(value string) Config {
	switch Level(value) {
	case DebugLevel, WarnLevel, ErrorLevel:
		return Config{Level: Level(value)}
	default:
		return Config{Level: InfoLevel}
	}
}

// Component returns a child logger tagged with the given component name.
func (r *Registry) Component(name string) zerolog.Logger {
	return r.base.With().Str("component", name).Logger()
}

// WithTable returns a child logger additionally tagged with a table name.
func (r *Registry) WithTable(component, table string) zerolog.Logger {
	return r.base.With().Str("component", component).Str("table", table).Logger()
}

// Nop returns a Registry that discards all log output, for tests.
func Nop() *Registry {
	return &Registry{base: zerolog.Nop()}
}
