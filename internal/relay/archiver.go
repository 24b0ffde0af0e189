package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/relaychat/internal/store"
)

// DefaultArchiveQueue is the archiver queue length used when none is given.
const DefaultArchiveQueue = 1024

const appendTimeout = 10 * time.Second

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// archiver writes public records in arrival order on a single goroutine so
// that persistence never blocks delivery.
type archiver struct {
	store    store.Store
	embedder Embedder
	queue    chan store.Record
	logger   zerolog.Logger
	sink     Sink

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newArchiver(st store.Store, embedder Embedder, size int, logger zerolog.Logger, sink Sink) *archiver {
	if size <= 0 {
		size = DefaultArchiveQueue
	}
	a := &archiver{
		store:    st,
		embedder: embedder,
		queue:    make(chan store.Record, size),
		logger:   logger.With().Str("component", "archiver").Logger(),
		sink:     sink,
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// enqueue schedules rec for appending. A full queue drops the record.
func (a *archiver) enqueue(sender, body string, at time.Time) error {
	rec := store.Record{ID: uuid.NewString(), Sender: sender, Body: body, Timestamp: at}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("archiver closed: %w", ErrPersistenceUnavailable)
	}

	select {
	case a.queue <- rec:
		return nil
	default:
		a.sink.CollaboratorFailed("persistence")
		a.logger.Warn().Str("sender", sender).Msg("Archive queue full; dropping record")
		return fmt.Errorf("queue full: %w", ErrPersistenceUnavailable)
	}
}

func (a *archiver) run() {
	defer close(a.done)
	for rec := range a.queue {
		if err := a.write(rec); err != nil {
			a.sink.CollaboratorFailed("persistence")
			a.logger.Error().Err(err).Str("sender", rec.Sender).Msg("Failed to archive message")
		}
	}
}

func (a *archiver) write(rec store.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, rec.Body)
		if err != nil {
			a.sink.CollaboratorFailed("embedding")
			a.logger.Warn().Err(err).Str("sender", rec.Sender).Msg("Storing message without embedding")
		} else {
			rec.Embedding = vec
		}
	}

	if err := a.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// close stops accepting records and waits for the queue to drain or ctx to
// expire.
func (a *archiver) close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
