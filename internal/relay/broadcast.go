package relay

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultFailureThreshold is the number of consecutive failed sends after
// which a session is dropped.
const DefaultFailureThreshold = 3

// Broadcaster delivers rendered envelopes to sessions. A closed or stalled
// session is skipped without affecting delivery to the others.
type Broadcaster struct {
	registry         *Registry
	sendTimeout      time.Duration
	failureThreshold int
	logger           zerolog.Logger
	sink             Sink
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry, sendTimeout time.Duration, failureThreshold int, logger zerolog.Logger, sink Sink) *Broadcaster {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Broadcaster{
		registry:         registry,
		sendTimeout:      sendTimeout,
		failureThreshold: failureThreshold,
		logger:           logger.With().Str("component", "broadcaster").Logger(),
		sink:             sink,
	}
}

// Broadcast delivers payload to every registered session and returns the
// number of successful sends.
func (b *Broadcaster) Broadcast(env Envelope, payload []byte) int {
	targets := b.registry.Snapshot()
	delivered := b.Deliver(env, payload, targets)

	b.logger.Debug().
		Str("kind", env.Kind.String()).
		Str("sender", env.Sender).
		Int("targets", len(targets)).
		Int("delivered", delivered).
		Msg("Broadcast complete")
	return delivered
}

// Deliver sends payload to each of targets. The registry lock is not held
// while sending.
func (b *Broadcaster) Deliver(env Envelope, payload []byte, targets []*Session) int {
	delivered := 0
	for _, s := range targets {
		if b.send(env, s, payload) {
			delivered++
		}
	}
	return delivered
}

func (b *Broadcaster) send(env Envelope, s *Session, payload []byte) bool {
	err := s.Send(payload, b.sendTimeout)
	if err == nil {
		return true
	}

	b.sink.DeliveryFailed(deliveryReason(err))
	b.logger.Warn().
		Err(err).
		Str("session", s.ID()).
		Str("username", s.Username()).
		Str("kind", env.Kind.String()).
		Msg("Delivery failed; skipping recipient")

	if err == ErrTransportClosed || s.Failures() >= b.failureThreshold {
		b.drop(s)
	}
	return false
}

// drop removes a session that can no longer receive messages.
func (b *Broadcaster) drop(s *Session) {
	name, removed := b.registry.Unregister(s.ID())
	s.Close()
	if !removed {
		return
	}
	b.sink.ActiveSessions(b.registry.Count())
	b.logger.Info().
		Str("session", s.ID()).
		Str("username", name).
		Int("failures", s.Failures()).
		Msg("Session removed after failed deliveries")
}
