package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicehub/domain/event"
	"voicehub/errors"
)

// recordingSink captures everything consumed so tests can assert fanout.
type recordingSink struct {
	events []event.Outbound
	fail   bool
}

func (s *recordingSink) Consume(_ context.Context, e event.Outbound) error {
	if s.fail {
		return fmt.Errorf("sink unavailable")
	}
	s.events = append(s.events, e)
	return nil
}

func TestUnicastReachesExactlyOneConnection(t *testing.T) {
	r := NewRegistry(slog.Default())
	a, b := &recordingSink{}, &recordingSink{}
	r.Register("c1", "s1", "alice", a)
	r.Register("c2", "s1", "bob", b)

	require.NoError(t, r.Unicast(context.Background(), "c1", event.New("pong", "s1", nil)))

	assert.Len(t, a.events, 1)
	assert.Empty(t, b.events)
}

func TestUnicastUnknownConnection(t *testing.T) {
	r := NewRegistry(slog.Default())

	err := r.Unicast(context.Background(), "ghost", event.New("pong", "", nil))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestBroadcastSessionSkipsOtherSessions(t *testing.T) {
	r := NewRegistry(slog.Default())
	a, b, c := &recordingSink{}, &recordingSink{}, &recordingSink{}
	r.Register("c1", "s1", "alice", a)
	r.Register("c2", "s1", "bob", b)
	r.Register("c3", "s2", "carol", c)

	r.BroadcastSession(context.Background(), "s1", event.New("message", "s1", nil))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Empty(t, c.events)
}

func TestBroadcastSurvivesFailingSink(t *testing.T) {
	r := NewRegistry(slog.Default())
	healthy, broken := &recordingSink{}, &recordingSink{fail: true}
	r.Register("c1", "s1", "alice", healthy)
	r.Register("c2", "s1", "bob", broken)

	r.BroadcastSession(context.Background(), "s1", event.New("message", "s1", nil))

	assert.Len(t, healthy.events, 1, "one failing sink must not block the others")
}

func TestBroadcastUserCoversAllConnections(t *testing.T) {
	r := NewRegistry(slog.Default())
	laptop, phone := &recordingSink{}, &recordingSink{}
	r.Register("c1", "s1", "alice", laptop)
	r.Register("c2", "s2", "alice", phone)

	r.BroadcastUser(context.Background(), "alice", event.New("notification", "", nil))

	assert.Len(t, laptop.events, 1)
	assert.Len(t, phone.events, 1)
}

func TestUnregisterCleansIndexes(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.Register("c1", "s1", "alice", &recordingSink{})
	r.Register("c2", "s1", "alice", &recordingSink{})

	r.Unregister("c1")
	assert.Equal(t, RegistryStats{Connections: 1, Sessions: 1, Users: 1}, r.Stats())

	r.Unregister("c2")
	assert.Equal(t, RegistryStats{}, r.Stats())

	// Unregistering twice is a no-op.
	r.Unregister("c2")
	assert.Equal(t, RegistryStats{}, r.Stats())
}

func TestCleanupInactiveDropsOnlyStaleConnections(t *testing.T) {
	r := NewRegistry(slog.Default())
	current := time.Now()
	r.now = func() time.Time { return current }

	r.Register("old", "s1", "alice", &recordingSink{})
	current = current.Add(10 * time.Minute)
	r.Register("fresh", "s1", "bob", &recordingSink{})

	removed := r.CleanupInactive(5 * time.Minute)

	assert.Equal(t, 1, removed)
	_, ok := r.Lookup("old")
	assert.False(t, ok)
	_, ok = r.Lookup("fresh")
	assert.True(t, ok)
}

// HasUser tracks multi-connection users: it only turns false once the
// last connection is gone.
func TestHasUserFollowsLastConnection(t *testing.T) {
	r := NewRegistry(slog.Default())
	assert.False(t, r.HasUser("alice"))

	r.Register("c1", "s1", "alice", &recordingSink{})
	r.Register("c2", "s2", "alice", &recordingSink{})
	assert.True(t, r.HasUser("alice"))

	r.Unregister("c1")
	assert.True(t, r.HasUser("alice"))

	r.Unregister("c2")
	assert.False(t, r.HasUser("alice"))
}

func TestTouchRefreshesIdleClock(t *testing.T) {
	r := NewRegistry(slog.Default())
	current := time.Now()
	r.now = func() time.Time { return current }

	r.Register("c1", "s1", "alice", &recordingSink{})
	current = current.Add(10 * time.Minute)
	r.Touch("c1")

	assert.Zero(t, r.CleanupInactive(5*time.Minute))
}
