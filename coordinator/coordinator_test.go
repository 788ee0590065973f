package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicehub/domain"
	"voicehub/errors"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, e domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *recordingAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Kind)
	}
	return out
}

type staticDirectory map[string]string

func (d staticDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	return d[userID], nil
}

func newCoordinator(t *testing.T) (*Coordinator, *recordingAudit) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	audit := &recordingAudit{}
	dir := staticDirectory{"u1": "Alice", "u2": "Bob"}
	return NewCoordinator(log, dir, audit, DefaultSpeakingThreshold), audit
}

// First joiner becomes host, second is a plain participant, the host may
// mute the participant, and the participant muting the host is denied
// without any state change.
func TestCoordinator_HostMutesParticipant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	p1, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	req.Equal(domain.RoleHost, p1.Role)
	req.Equal("Alice", p1.DisplayName)

	p2, err := coord.Join(ctx, "s1", "u2", "c2", "")
	req.NoError(err)
	req.Equal(domain.RoleParticipant, p2.Role)

	req.NoError(coord.SetMuted(ctx, "s1", "u2", true, "u1"))
	muted, err := coord.Get("s1", "u2")
	req.NoError(err)
	req.Equal(domain.StatusMuted, muted.Status)

	// Snapshot the host before the forbidden attempt.
	before, err := coord.Get("s1", "u1")
	req.NoError(err)

	err = coord.SetMuted(ctx, "s1", "u1", true, "u2")
	req.ErrorIs(err, errors.ErrPermissionDenied)

	after, err := coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(before.Status, after.Status)
}

func TestCoordinator_SelfMuteAllowed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	_, err = coord.Join(ctx, "s1", "u2", "c2", "")
	req.NoError(err)

	req.NoError(coord.SetMuted(ctx, "s1", "u2", true, "u2"))
	req.NoError(coord.SetMuted(ctx, "s1", "u2", false, "u2"))

	p, err := coord.Get("s1", "u2")
	req.NoError(err)
	req.Equal(domain.StatusActive, p.Status)
}

func TestCoordinator_ReconnectOverwritesConnection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)

	req.NoError(coord.Disconnect(ctx, "s1", "u1"))
	p, err := coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(domain.StatusDisconnected, p.Status)
	req.Empty(p.ConnectionID)

	// Reconnect keeps the membership (and the host role) but swaps the
	// connection id. The (session, user) key never duplicates.
	p, err = coord.Join(ctx, "s1", "u1", "c9", "")
	req.NoError(err)
	req.Equal(domain.RoleHost, p.Role)
	req.Equal("c9", p.ConnectionID)
	req.Len(coord.Participants("s1"), 1)
}

func TestCoordinator_LastLeaveEndsSession(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, audit := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	req.NoError(coord.Leave(ctx, "s1", "u1"))

	req.Empty(coord.Participants("s1"))
	req.Contains(audit.kinds(), "session_ended")

	// A late lookup right after the end is answered as ended, not unknown.
	_, err = coord.Get("s1", "u1")
	req.ErrorIs(err, errors.ErrSessionEnded)
}

func TestCoordinator_ChangeRole(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	_, err = coord.Join(ctx, "s1", "u2", "c2", "")
	req.NoError(err)

	req.NoError(coord.ChangeRole(ctx, "s1", "u2", domain.RoleAdmin, "u1"))
	p, err := coord.Get("s1", "u2")
	req.NoError(err)
	req.Equal(domain.RoleAdmin, p.Role)

	// An admin may not promote anyone (self included) to host.
	err = coord.ChangeRole(ctx, "s1", "u2", domain.RoleHost, "u2")
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// An admin may not act on the host.
	err = coord.ChangeRole(ctx, "s1", "u1", domain.RoleGuest, "u2")
	req.ErrorIs(err, errors.ErrPermissionDenied)
}

func TestCoordinator_AudioLevelSpeakingToggle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)

	req.NoError(coord.UpdateAudioLevel("s1", "u1", 0.8))
	p, err := coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(domain.StatusSpeaking, p.Status)

	req.NoError(coord.UpdateAudioLevel("s1", "u1", 0.01))
	p, err = coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(domain.StatusActive, p.Status)

	// Values outside [0,1] are clamped.
	req.NoError(coord.UpdateAudioLevel("s1", "u1", 7.5))
	p, err = coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(1.0, p.AudioLevel)
}

func TestCoordinator_MutedNeverSpeaks(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	req.NoError(coord.SetMuted(ctx, "s1", "u1", true, "u1"))

	req.NoError(coord.UpdateAudioLevel("s1", "u1", 0.9))
	p, err := coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(domain.StatusMuted, p.Status)
}

func TestCoordinator_CheckPermission(t *testing.T) {
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "host", "c1", "")
	require.NoError(t, err)
	_, err = coord.Join(ctx, "s1", "member", "c2", "")
	require.NoError(t, err)
	_, err = coord.Join(ctx, "s1", "watcher", "c3", domain.RoleObserver)
	require.NoError(t, err)

	tests := []struct {
		user   string
		action string
		want   bool
	}{
		{"host", "manage_session", true},
		{"host", "mute_others", true},
		{"member", "manage_session", false},
		{"member", "send_message", true},
		{"member", "send_audio", true},
		{"watcher", "send_message", false},
		{"watcher", "send_audio", false},
		{"watcher", "view_participants", true},
		{"ghost", "send_message", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, coord.CheckPermission("s1", tt.user, tt.action),
			"user=%s action=%s", tt.user, tt.action)
	}
}

func TestCoordinator_EndSessionRequiresAuthority(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	_, err = coord.Join(ctx, "s1", "u2", "c2", "")
	req.NoError(err)

	req.ErrorIs(coord.EndSession(ctx, "s1", "u2"), errors.ErrPermissionDenied)
	req.NoError(coord.EndSession(ctx, "s1", "u1"))
	req.Empty(coord.Participants("s1"))

	// Ending twice is its own condition, distinct from an unknown session.
	req.ErrorIs(coord.EndSession(ctx, "s1", "u1"), errors.ErrSessionEnded)
	req.ErrorIs(coord.EndSession(ctx, "nope", "u1"), errors.ErrNotFound)
}

// Ended sessions leave no permanent record behind: the session entry is
// dropped immediately and the ended marker itself is reaped once past
// retention, so a long-lived process never accrues dead session ids.
func TestCoordinator_EndedSessionRecordsReaped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	base := time.Now()
	coord.now = func() time.Time { return base }

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	req.NoError(coord.UpdateAudioLevel("s1", "u1", 0.9))
	req.NoError(coord.EndSession(ctx, "s1", "u1"))

	req.Empty(coord.sessions)
	req.Empty(coord.participants)
	req.Empty(coord.speakingFrom)

	_, err = coord.Get("s1", "u1")
	req.ErrorIs(err, errors.ErrSessionEnded)

	// Ending another session past the retention window reaps the marker;
	// from then on the old id reads as unknown.
	base = base.Add(endedRetention + time.Second)
	_, err = coord.Join(ctx, "s2", "u2", "c2", "")
	req.NoError(err)
	req.NoError(coord.EndSession(ctx, "s2", "u2"))

	_, err = coord.Get("s1", "u1")
	req.ErrorIs(err, errors.ErrNotFound)
	req.Len(coord.endedAt, 1)
}

// Rejoining an ended session id starts a fresh session and clears the
// ended marker.
func TestCoordinator_RejoinAfterEndStartsFresh(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)
	req.NoError(coord.EndSession(ctx, "s1", "u1"))

	p, err := coord.Join(ctx, "s1", "u2", "c2", "")
	req.NoError(err)
	req.Equal(domain.RoleHost, p.Role)
	req.Empty(coord.endedAt)
}

func TestCoordinator_TouchCountsMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	_, err := coord.Join(ctx, "s1", "u1", "c1", "")
	req.NoError(err)

	coord.Touch("s1", "u1", true)
	coord.Touch("s1", "u1", true)
	coord.Touch("s1", "u1", false)

	p, err := coord.Get("s1", "u1")
	req.NoError(err)
	req.Equal(2, p.MessageCount)
}
