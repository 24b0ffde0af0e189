// Package store persists public chat messages and answers recency and
// similarity queries over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendNone   = "none"
)

var (
	ErrUnknownBackend    = errors.New("unknown store backend")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is one archived public message.
type Record struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Store is append-only storage for records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns up to limit of the newest records, oldest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Similar returns up to k records ranked by similarity to vec, most
	// similar first. Records without an embedding are never returned.
	Similar(ctx context.Context, vec []float32, k int) ([]Record, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string
	Path      string
	Dimension int
	Logger    zerolog.Logger
}

// Open returns the configured backend. BackendNone yields a nil Store.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		s, err := OpenSQLite(cfg.Path, cfg.Dimension, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := OpenBadger(cfg.Path, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
