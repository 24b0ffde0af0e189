package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	alice := NewSession("1.1.1.1:1", 4)

	name, err := r.Register(alice, "  alice \n")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, "alice", alice.Username())
	assert.True(t, alice.Registered())

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	first := NewSession("a", 4)
	second := NewSession("b", 4)

	_, err := r.Register(first, "alice")
	require.NoError(t, err)

	_, err = r.Register(second, "alice")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.False(t, second.Registered())

	holder, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, first, holder, "original holder must be untouched")
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(NewSession("a", 4), "   ")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = r.Register(NewSession("b", 4), BotName)
	assert.ErrorIs(t, err, ErrReservedUsername)

	_, err = r.Register(NewSession("c", 4), BotMarker)
	assert.ErrorIs(t, err, ErrReservedUsername)

	assert.Equal(t, 0, r.Count())
}

func TestRegistryRejectsSecondRegistration(t *testing.T) {
	r := NewRegistry()
	s := NewSession("a", 4)

	_, err := r.Register(s, "alice")
	require.NoError(t, err)

	_, err = r.Register(s, "alice2")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, "alice", s.Username())
	_, ok := r.Lookup("alice2")
	assert.False(t, ok)
}

func TestRegistryUnregisterReleasesName(t *testing.T) {
	r := NewRegistry()
	s := NewSession("a", 4)
	_, err := r.Register(s, "alice")
	require.NoError(t, err)

	name, removed := r.Unregister(s.ID())
	assert.True(t, removed)
	assert.Equal(t, "alice", name)

	name, removed = r.Unregister(s.ID())
	assert.False(t, removed, "second unregister is a no-op")
	assert.Empty(t, name)

	_, ok := r.Lookup("alice")
	assert.False(t, ok)

	_, err = r.Register(NewSession("b", 4), "alice")
	assert.NoError(t, err, "released name can be claimed again")
}

func TestRegistryUnregisterUnknownSession(t *testing.T) {
	r := NewRegistry()
	_, removed := r.Unregister("nope")
	assert.False(t, removed)
}

func TestRegistrySnapshotAndUsernames(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := r.Register(NewSession(name, 4), name)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Usernames())
	assert.Len(t, r.Snapshot(), 3)
	assert.Empty(t, NewRegistry().Usernames())
	assert.NotNil(t, NewRegistry().Usernames())
}

func TestRegistryConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := NewRegistry()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Register(NewSession(fmt.Sprintf("s%d", i), 4), "alice"); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrDuplicateUsername)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Count())
}

func TestRegistryNotBlockedBySlowSend(t *testing.T) {
	r := NewRegistry()
	slow := NewSession("slow", 1)
	other := NewSession("other", 1)
	_, err := r.Register(slow, "slow")
	require.NoError(t, err)
	_, err = r.Register(other, "other")
	require.NoError(t, err)

	require.NoError(t, slow.SendText("fills the queue", 0))
	sendDone := make(chan error, 1)
	go func() { sendDone <- slow.SendText("waits for room", 500*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	name, removed := r.Unregister(slow.ID())
	assert.True(t, removed)
	assert.Equal(t, "slow", name)

	_, ok := r.Lookup("other")
	assert.True(t, ok)
	_, ok = r.Lookup("slow")
	assert.False(t, ok)
	assert.Len(t, r.Snapshot(), 1)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "registry waited on a blocked send")

	assert.ErrorIs(t, <-sendDone, ErrSendTimeout)
}
