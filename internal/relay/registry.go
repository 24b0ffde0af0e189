package relay

import (
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Registry maps usernames to their active sessions. At most one session holds
// a username at any instant; the name is released when that session is
// unregistered. Names are kept by session id as well, so the registry lock is
// never taken together with a session's own locks.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Session
	byID   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Session),
		byID:   make(map[string]string),
	}
}

// Register claims username for s. The name is trimmed before use. A name held
// by another session is rejected with ErrDuplicateUsername and the holder is
// left untouched.
func (r *Registry) Register(s *Session, username string) (string, error) {
	name := strings.TrimSpace(username)
	switch {
	case name == "":
		return "", ErrInvalidUsername
	case name == BotName || name == BotMarker:
		return "", ErrReservedUsername
	}

	if s.Registered() {
		return "", ErrAlreadyRegistered
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID()]; ok {
		return "", ErrAlreadyRegistered
	}
	if _, taken := r.byName[name]; taken {
		return "", ErrDuplicateUsername
	}

	s.setUsername(name)
	r.byName[name] = s
	r.byID[s.ID()] = name
	return name, nil
}

// Lookup returns the session registered under username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[username]
	return s, ok
}

// Unregister releases the username held by the session with sessionID. It
// returns the released name; calling it for an unknown id is a no-op.
func (r *Registry) Unregister(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byID[sessionID]
	if !ok {
		return "", false
	}
	delete(r.byID, sessionID)
	if held, ok := r.byName[name]; ok && held.ID() == sessionID {
		delete(r.byName, name)
	}
	return name, true
}

// Snapshot returns the currently registered sessions. The slice is a copy and
// may be used after the lock is released.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.byName)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byName)
}

// Usernames returns the registered usernames in sorted order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := lo.Keys(r.byName)
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
