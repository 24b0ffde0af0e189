// Package responder answers bot mentions. It assembles a context window from
// archived messages, in recency or retrieval mode, and asks a completion
// provider for the answer.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/relaychat/internal/store"
)

// FallbackAnswer is returned whenever the completion provider fails.
const FallbackAnswer = "I encountered an error processing your request."

// Context assembly modes.
const (
	ModeRecency   = "recency"
	ModeRetrieval = "retrieval"
)

const (
	DefaultHistoryLimit = 20
	DefaultTopK         = 5
	DefaultTimeout      = 30 * time.Second
)

var (
	ErrCompletionUnavailable = errors.New("completion unavailable")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
)

// Completer generates an answer to query given a block of chat context.
type Completer interface {
	Complete(ctx context.Context, query, contextText string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// History is the read side of the message store.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Record, error)
	Similar(ctx context.Context, vec []float32, k int) ([]store.Record, error)
}

// Sink receives responder outcomes.
type Sink interface {
	BotAnswered(outcome string)
	CollaboratorFailed(collaborator string)
}

type nopSink struct{}

func (nopSink) BotAnswered(string)        {}
func (nopSink) CollaboratorFailed(string) {}

// Config configures a Bridge.
type Config struct {
	Mode         string
	HistoryLimit int
	TopK         int
	Timeout      time.Duration
}

// Bridge implements the router's responder using a Completer and, depending
// on the mode, a History and an Embedder.
type Bridge struct {
	cfg       Config
	completer Completer
	embedder  Embedder
	history   History
	sink      Sink
	logger    zerolog.Logger
}

// New creates a Bridge. history and embedder may be nil, in which case the
// context is always empty.
func New(cfg Config, completer Completer, embedder Embedder, history History, sink Sink, logger zerolog.Logger) *Bridge {
	if cfg.Mode == "" {
		cfg.Mode = ModeRecency
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Bridge{
		cfg:       cfg,
		completer: completer,
		embedder:  embedder,
		history:   history,
		sink:      sink,
		logger:    logger.With().Str("component", "responder").Str("mode", cfg.Mode).Logger(),
	}
}

// Answer returns the completion for query, or FallbackAnswer on any failure.
func (b *Bridge) Answer(ctx context.Context, query string) string {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	contextText := b.ContextFor(ctx, query)

	if b.completer == nil {
		b.sink.BotAnswered("fallback")
		b.logger.Warn().Msg("No completion provider configured")
		return FallbackAnswer
	}

	answer, err := b.completer.Complete(ctx, query, contextText)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: empty answer", ErrCompletionUnavailable)
	}
	if err != nil {
		b.sink.CollaboratorFailed("completion")
		b.sink.BotAnswered("fallback")
		b.logger.Error().Err(err).Str("query", query).Msg("Completion failed")
		return FallbackAnswer
	}

	b.sink.BotAnswered("answered")
	return answer
}

// ContextFor assembles the context block for query. Collaborator failures
// and empty results yield "".
func (b *Bridge) ContextFor(ctx context.Context, query string) string {
	if b.history == nil {
		return ""
	}
	if b.cfg.Mode == ModeRetrieval {
		return b.retrievalContext(ctx, query)
	}
	return b.recencyContext(ctx)
}

func (b *Bridge) recencyContext(ctx context.Context) string {
	records, err := b.history.Recent(ctx, b.cfg.HistoryLimit)
	if err != nil {
		b.sink.CollaboratorFailed("persistence")
		b.logger.Warn().Err(err).Msg("Recent history unavailable; using empty context")
		return ""
	}
	return strings.Join(lo.Map(records, func(rec store.Record, _ int) string {
		return rec.Sender + ": " + rec.Body
	}), "\n")
}

func (b *Bridge) retrievalContext(ctx context.Context, query string) string {
	if b.embedder == nil {
		return ""
	}
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		b.sink.CollaboratorFailed("embedding")
		b.logger.Warn().Err(err).Msg("Query embedding failed; using empty context")
		return ""
	}
	records, err := b.history.Similar(ctx, vec, b.cfg.TopK)
	if err != nil {
		b.sink.CollaboratorFailed("persistence")
		b.logger.Warn().Err(err).Msg("Similarity search failed; using empty context")
		return ""
	}
	return strings.Join(lo.Map(records, func(rec store.Record, _ int) string {
		return rec.Body
	}), "\n")
}
