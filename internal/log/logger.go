// Package log provides the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level  string    // optional log level ("debug", "info", etc.)
	Output io.Writer // optional writer (defaults to os.Stderr)
}

var (
	mu   sync.Mutex
	base = zerolog.New(io.Discard)
)

// Configure replaces the global logger. Level falls back to EPGRAB_LOG_LEVEL, then warn.
// A terminal on stderr gets the human console writer, anything else JSON lines.
func Configure(cfg Config) {
	level := zerolog.WarnLevel
	raw := cfg.Level
	if raw == "" {
		raw = os.Getenv("EPGRAB_LOG_LEVEL")
	}
	if raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
		if term.IsTerminal(int(os.Stderr.Fd())) {
			writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
