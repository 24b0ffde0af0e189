// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error
	File   string // optional append-only log file
	Pretty bool   // human readable console output
}

// Logger owns the zerolog logger and its optional log file.
type Logger struct {
	logger zerolog.Logger
	file   *os.File
}

// New creates a logger writing to out and, when configured, to cfg.File. It
// also replaces the global log.Logger.
func New(cfg Config, out io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stdout
	}

	var console io.Writer = out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{logger: logger, file: file}, nil
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
