package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicehub/observability"
	"voicehub/repositories"
	"voicehub/runtime"
)

func newTestAdmin(t *testing.T) (*httptest.Server, *runtime.Registry) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := runtime.NewRegistry(log)
	admin := NewAdminServer(log, "127.0.0.1:0", observability.NewStatsManager(log), registry, repositories.NewAuditRepository(db, log), 0)

	ts := httptest.NewServer(admin.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, registry
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestAdmin(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsShape(t *testing.T) {
	ts, _ := newTestAdmin(t)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "router")
	assert.Contains(t, body, "connections")
}

func TestAuditRequiresSession(t *testing.T) {
	ts, _ := newTestAdmin(t)

	resp, err := http.Get(ts.URL + "/audit")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCleanupReportsRemovals(t *testing.T) {
	ts, registry := newTestAdmin(t)
	registry.Register("c1", "s1", "alice", nil)

	// Idle threshold in the future sweeps everything registered.
	time.Sleep(5 * time.Millisecond)
	resp, err := http.Post(ts.URL+"/cleanup?max_idle=1ms", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body["removed"])
}

func TestCleanupRejectsBadDuration(t *testing.T) {
	ts, _ := newTestAdmin(t)

	resp, err := http.Post(ts.URL+"/cleanup?max_idle=nonsense", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
