package relay

import (
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultSendBuffer is the outbound queue length used when none is given.
const DefaultSendBuffer = 256

// Session is the routing layer's view of one client connection. It owns the
// outbound queue for its connection; the transport drains it through
// Outbound and the broadcaster fills it through Send.
type Session struct {
	id   string
	addr string

	username atomic.Pointer[string]
	failures atomic.Int64

	// mu guards the queue: senders hold the read lock, Close the write lock.
	mu     sync.RWMutex
	send   chan []byte
	closed atomic.Bool
}

// NewSession creates an unregistered session with a fresh id. A non-positive
// buffer falls back to DefaultSendBuffer.
func NewSession(addr string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	id, err := gonanoid.New()
	if err != nil {
		id = addr + "-" + time.Now().Format("150405.000000000")
	}
	return &Session{
		id:   id,
		addr: addr,
		send: make(chan []byte, buffer),
	}
}

// ID returns the per-connection identity.
func (s *Session) ID() string { return s.id }

// Addr returns the remote address of the connection.
func (s *Session) Addr() string { return s.addr }

// Username returns the claimed username, or "" before registration.
func (s *Session) Username() string {
	if name := s.username.Load(); name != nil {
		return *name
	}
	return ""
}

// Registered reports whether the session has claimed a username.
func (s *Session) Registered() bool {
	return s.Username() != ""
}

// Outbound returns the queue the transport write pump drains. It is closed
// when the session is closed.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Send queues payload for the connection. It waits at most timeout for room
// in the queue; a zero timeout makes it non-blocking.
func (s *Session) Send(payload []byte, timeout time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return ErrTransportClosed
	}

	select {
	case s.send <- payload:
		s.failures.Store(0)
		return nil
	default:
	}

	if timeout <= 0 {
		s.failures.Add(1)
		return ErrSendTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.send <- payload:
		s.failures.Store(0)
		return nil
	case <-timer.C:
		s.failures.Add(1)
		return ErrSendTimeout
	}
}

// SendText is Send for a rendered line.
func (s *Session) SendText(line string, timeout time.Duration) error {
	return s.Send([]byte(line), timeout)
}

// Failures returns the number of consecutive failed sends.
func (s *Session) Failures() int {
	return int(s.failures.Load())
}

// Close closes the outbound queue once in-flight sends have returned. It is
// safe to call more than once.
func (s *Session) Close() {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return
	}
	close(s.send)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) setUsername(name string) {
	s.username.Store(&name)
}
