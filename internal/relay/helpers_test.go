package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/store"
)

var fixedTime = time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// memStore is an in-memory store.Store with switchable failures.
type memStore struct {
	mu         sync.Mutex
	records    []store.Record
	failAppend bool
	failRecent bool
}

var errStoreDown = errors.New("store down")

func (m *memStore) Append(_ context.Context, rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errStoreDown
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecent {
		return nil, errStoreDown
	}
	start := len(m.records) - limit
	if start < 0 {
		start = 0
	}
	return append([]store.Record(nil), m.records[start:]...), nil
}

func (m *memStore) Similar(context.Context, []float32, int) ([]store.Record, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Record(nil), m.records...)
}

// countingSink records sink calls by label.
type countingSink struct {
	mu     sync.Mutex
	counts map[string]int
	active int
}

func newCountingSink() *countingSink {
	return &countingSink{counts: make(map[string]int)}
}

func (c *countingSink) inc(key string) {
	c.mu.Lock()
	c.counts[key]++
	c.mu.Unlock()
}

func (c *countingSink) MessageRouted(kind string)      { c.inc("routed:" + kind) }
func (c *countingSink) Registration(result string)     { c.inc("registration:" + result) }
func (c *countingSink) DeliveryFailed(reason string)   { c.inc("delivery:" + reason) }
func (c *countingSink) CollaboratorFailed(name string) { c.inc("collaborator:" + name) }

func (c *countingSink) ActiveSessions(n int) {
	c.mu.Lock()
	c.active = n
	c.mu.Unlock()
}

func (c *countingSink) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// receive returns the next line queued for s.
func receive(t *testing.T, s *Session) string {
	t.Helper()
	select {
	case line, ok := <-s.Outbound():
		require.True(t, ok, "session queue closed")
		return string(line)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for a message", "session %s", s.Username())
		return ""
	}
}

// assertQuiet fails if anything is queued for s.
func assertQuiet(t *testing.T, s *Session) {
	t.Helper()
	select {
	case line, ok := <-s.Outbound():
		if ok {
			require.FailNow(t, "unexpected message", "%s got %q", s.Username(), string(line))
		}
	case <-time.After(50 * time.Millisecond):
	}
}
