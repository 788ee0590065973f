package analysis

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"voicehub/domain/event"
	"voicehub/errors"
	"voicehub/mocks"
)

func newTestEngine(t *testing.T, stepDelay time.Duration) (*Engine, func() []event.Outbound) {
	t.Helper()
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)

	var mu sync.Mutex
	var events []event.Outbound
	registry.EXPECT().Unicast(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, e event.Outbound) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		}).AnyTimes()

	engine := NewEngine(slog.Default(), registry, stepDelay)
	return engine, func() []event.Outbound {
		mu.Lock()
		defer mu.Unlock()
		return append([]event.Outbound{}, events...)
	}
}

func TestRequestRunsToCompletion(t *testing.T) {
	engine, received := newTestEngine(t, time.Millisecond)
	engine.Subscribe("s1", "c1")

	req := engine.Request("s1", "alice", "language", "the quick brown fox jumps over the lazy dog")
	require.NotEmpty(t, req.ID)
	assert.Equal(t, StatusRunning, req.Status)

	require.Eventually(t, func() bool {
		snapshot, err := engine.Progress(req.ID)
		return err == nil && snapshot.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	snapshot, err := engine.Progress(req.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, snapshot.Progress)
	assert.NotEmpty(t, snapshot.Result["language"])
	assert.Equal(t, 9, snapshot.Result["word_count"])

	types := make([]string, 0)
	for _, e := range received() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"ai_analysis_progress", "ai_analysis_progress", "ai_analysis_complete"}, types)
}

func TestProgressUnknownRequest(t *testing.T) {
	engine, _ := newTestEngine(t, time.Millisecond)

	_, err := engine.Progress("missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCancelAuthority(t *testing.T) {
	engine, _ := newTestEngine(t, time.Minute)
	req := engine.Request("s1", "alice", "sentiment", "some text")

	// A stranger without admin authority is refused.
	err := engine.Cancel(req.ID, "mallory", false)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	// The requester may always cancel.
	require.NoError(t, engine.Cancel(req.ID, "alice", false))

	snapshot, err := engine.Progress(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snapshot.Status)

	// Cancelling twice is a no-op.
	require.NoError(t, engine.Cancel(req.ID, "alice", false))
}

func TestCancelByAdmin(t *testing.T) {
	engine, _ := newTestEngine(t, time.Minute)
	req := engine.Request("s1", "alice", "toxicity", "some text")

	require.NoError(t, engine.Cancel(req.ID, "host", true))

	snapshot, err := engine.Progress(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snapshot.Status)
}

func TestCancelUnknownRequest(t *testing.T) {
	engine, _ := newTestEngine(t, time.Millisecond)

	err := engine.Cancel("missing", "alice", true)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	engine, received := newTestEngine(t, time.Millisecond)
	engine.Subscribe("s1", "c1")
	engine.Unsubscribe("s1", "c1")

	req := engine.Request("s1", "alice", "language", "hello world")

	require.Eventually(t, func() bool {
		snapshot, err := engine.Progress(req.ID)
		return err == nil && snapshot.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, received())
}
