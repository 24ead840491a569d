// Package logging builds the zerolog logger shared by a run.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lukemcguire/zombietrail/config"
)

// Options controls where and how log lines are written.
type Options struct {
	Level  string // zerolog level name
	Format string // "console" or "json"
	File   string // Log file path; empty writes to Stderr
	Stderr io.Writer
	// Quiet drops output that would go to Stderr. Used while the TUI owns
	// the terminal; a configured File still receives logs.
	Quiet bool
}

// FromConfig converts the logging section of a config file.
func FromConfig(cfg config.LoggingConfig) Options {
	return Options{Level: cfg.Level, Format: cfg.Format, File: cfg.File}
}

// Logger is a run logger with the resources backing it.
type Logger struct {
	zerolog.Logger
	RunID  string
	closer io.Closer
}

// New builds a logger tagged with a fresh run_id.
func New(opts Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var (
		out    io.Writer
		closer io.Closer
	)
	switch {
	case opts.File != "":
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	case opts.Quiet:
		out = io.Discard
	case opts.Stderr != nil:
		out = opts.Stderr
	default:
		out = os.Stderr
	}

	switch opts.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: opts.File != ""}
	case "json":
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	runID := uuid.NewString()
	log := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("run_id", runID).
		Logger()
	return &Logger{Logger: log, RunID: runID, closer: closer}, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}
