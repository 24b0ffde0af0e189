// Package relay routes chat payloads between registered sessions. It owns the
// session registry, classifies each payload, delivers it through the
// broadcaster and hands bot mentions to the responder.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/relaychat/internal/store"
)

// DefaultSendTimeout bounds how long a delivery waits for a slow session.
const DefaultSendTimeout = 50 * time.Millisecond

const replayTimeout = 5 * time.Second

// Responder answers bot queries. It must always return some text; failures
// are expressed as a fallback answer, not an error.
type Responder interface {
	Answer(ctx context.Context, query string) string
}

// Config configures a Router. Only Logger is commonly set; zero values fall
// back to defaults.
type Config struct {
	Registry         *Registry
	Store            store.Store
	Embedder         Embedder
	Responder        Responder
	Sink             Sink
	Logger           zerolog.Logger
	Clock            func() time.Time
	TimestampFormat  string
	SendTimeout      time.Duration
	FailureThreshold int
	HistoryReplay    int
	ArchiveQueue     int
}

// Router is the message routing engine. Handle is called by each connection's
// worker with the payloads it reads; it never holds the registry lock across a
// send or an external call.
type Router struct {
	registry    *Registry
	broadcaster *Broadcaster
	archive     *archiver
	history     store.Store
	responder   Responder
	sink        Sink
	logger      zerolog.Logger

	clock         func() time.Time
	layout        string
	sendTimeout   time.Duration
	historyReplay int

	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRouter creates a router. A nil Store disables persistence and history
// replay; a nil Responder leaves bot mentions unanswered.
func NewRouter(cfg Config) *Router {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TimestampFormat == "" {
		cfg.TimestampFormat = DefaultTimestampFormat
	}
	if cfg.SendTimeout < 0 {
		cfg.SendTimeout = 0
	}

	logger := cfg.Logger.With().Str("component", "router").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Router{
		registry:      cfg.Registry,
		broadcaster:   NewBroadcaster(cfg.Registry, cfg.SendTimeout, cfg.FailureThreshold, cfg.Logger, cfg.Sink),
		history:       cfg.Store,
		responder:     cfg.Responder,
		sink:          cfg.Sink,
		logger:        logger,
		clock:         cfg.Clock,
		layout:        cfg.TimestampFormat,
		sendTimeout:   cfg.SendTimeout,
		historyReplay: cfg.HistoryReplay,
		ctx:           ctx,
		cancel:        cancel,
	}
	if cfg.Store != nil {
		r.archive = newArchiver(cfg.Store, cfg.Embedder, cfg.ArchiveQueue, cfg.Logger, cfg.Sink)
	}
	return r
}

// Registry returns the router's session registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Connect records a new, unregistered session.
func (r *Router) Connect(s *Session) {
	r.logger.Debug().Str("session", s.ID()).Str("addr", s.Addr()).Msg("Session connected")
}

// Disconnect releases the session's username and closes its queue. It is
// safe to call more than once.
func (r *Router) Disconnect(s *Session) {
	name, removed := r.registry.Unregister(s.ID())
	s.Close()
	if !removed {
		return
	}
	r.sink.ActiveSessions(r.registry.Count())
	r.logger.Info().Str("session", s.ID()).Str("username", name).Msg("User disconnected")
}

// Handle processes one payload read from s. The first accepted payload on a
// session is its username; everything after that is chat input.
func (r *Router) Handle(s *Session, raw []byte) {
	if s.Closed() {
		return
	}
	if !s.Registered() {
		r.register(s, string(raw))
		return
	}

	body := Emojify(string(raw))
	env, err := Classify(s.Username(), body, r.clock())
	if errors.Is(err, ErrMalformedDirective) {
		r.logger.Warn().
			Err(err).
			Str("session", s.ID()).
			Str("username", env.Sender).
			Msg("Treating malformed directive as chat")
	}

	r.sink.MessageRouted(env.Kind.String())

	switch env.Kind {
	case KindPrivate:
		r.routePrivate(s, env)
	case KindBotQuery:
		r.publish(env)
		r.ask(env)
	default:
		r.publish(env)
	}
}

// Publish persists and broadcasts a synthetic public envelope without
// classifying it.
func (r *Router) Publish(env Envelope) {
	env.Kind = KindBroadcast
	if env.Timestamp.IsZero() {
		env.Timestamp = r.clock()
	}
	r.publish(env)
}

func (r *Router) register(s *Session, proposed string) {
	name, err := r.registry.Register(s, proposed)
	if err != nil {
		r.sink.Registration(registrationResult(err))
		r.logger.Warn().
			Err(err).
			Str("session", s.ID()).
			Str("username", proposed).
			Msg("Registration rejected")
		r.notify(s, registrationNotice(err, strings.TrimSpace(proposed)))
		return
	}

	r.sink.Registration("accepted")
	r.sink.ActiveSessions(r.registry.Count())
	r.logger.Info().Str("session", s.ID()).Str("username", name).Msg("User connected")
	r.replayHistory(s)
}

func (r *Router) replayHistory(s *Session) {
	if r.history == nil || r.historyReplay <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, replayTimeout)
	defer cancel()

	records, err := r.history.Recent(ctx, r.historyReplay)
	if err != nil {
		r.sink.CollaboratorFailed("persistence")
		r.logger.Warn().Err(err).Str("session", s.ID()).Msg("History replay skipped")
		return
	}
	for _, rec := range records {
		env := Envelope{Sender: rec.Sender, Body: rec.Body, Timestamp: rec.Timestamp}
		if !r.notify(s, env.Format(r.layout)) {
			return
		}
	}
}

func (r *Router) routePrivate(s *Session, env Envelope) {
	target, ok := r.registry.Lookup(env.Target)
	if !ok {
		r.logger.Info().
			Str("session", s.ID()).
			Str("username", env.Sender).
			Str("target", env.Target).
			Msg("Private message to unknown user")
		r.notify(s, fmt.Sprintf("❌ User %s not found.", env.Target))
		return
	}

	r.broadcaster.Deliver(env, []byte(env.FormatPrivate(r.layout)), []*Session{target})
	r.broadcaster.Deliver(env, []byte(env.FormatEcho(r.layout)), []*Session{s})

	r.logger.Info().
		Str("kind", env.Kind.String()).
		Str("username", env.Sender).
		Str("target", env.Target).
		Msg("Private message delivered")
}

func (r *Router) publish(env Envelope) {
	if r.archive != nil {
		// The archiver reports its own failures; delivery goes ahead regardless.
		_ = r.archive.enqueue(env.Sender, env.Body, env.Timestamp)
	}
	r.broadcaster.Broadcast(env, []byte(env.Format(r.layout)))
}

// ask answers env.Query in the background. The answer is published to every
// session registered at that time, whether or not the asker is still here.
func (r *Router) ask(env Envelope) {
	if r.responder == nil {
		r.logger.Debug().Str("username", env.Sender).Msg("Bot mention ignored; no responder configured")
		return
	}

	r.logger.Info().Str("username", env.Sender).Str("query", env.Query).Msg("Bot triggered")

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		answer := r.responder.Answer(r.ctx, env.Query)
		r.Publish(Envelope{Sender: BotName, Body: answer})

		r.logger.Info().Str("asker", env.Sender).Msg("Bot replied")
	}()
}

// notify sends a line to s alone, reporting whether it was queued.
func (r *Router) notify(s *Session, line string) bool {
	if err := s.SendText(line, r.sendTimeout); err != nil {
		r.sink.DeliveryFailed(deliveryReason(err))
		r.logger.Warn().Err(err).Str("session", s.ID()).Msg("Failed to notify session")
		return false
	}
	return true
}

// Shutdown waits for pending bot answers and drains the archive, or gives up
// when ctx expires. The router must not receive payloads afterwards.
func (r *Router) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for bot answers: %w", ctx.Err())
	}
	r.cancel()

	if r.archive != nil {
		if archiveErr := r.archive.close(ctx); archiveErr != nil && err == nil {
			err = fmt.Errorf("draining archive: %w", archiveErr)
		}
	}
	return err
}

func registrationResult(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return "duplicate"
	case errors.Is(err, ErrReservedUsername):
		return "reserved"
	case errors.Is(err, ErrInvalidUsername):
		return "invalid"
	default:
		return "rejected"
	}
}

func registrationNotice(err error, proposed string) string {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return fmt.Sprintf("❌ Username %s is already taken. Please choose another.", proposed)
	case errors.Is(err, ErrReservedUsername):
		return fmt.Sprintf("❌ Username %s is reserved.", proposed)
	case errors.Is(err, ErrInvalidUsername):
		return "❌ Username must not be empty."
	default:
		return "❌ Registration failed."
	}
}
