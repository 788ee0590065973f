package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicehub/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAuditHistoryNewestFirst(t *testing.T) {
	db := openTestDB(t)
	repo := NewAuditRepository(db, slog.Default())
	ctx := context.Background()

	base := time.Now().UTC()
	for i, kind := range []string{"joined", "muted", "role_changed"} {
		err := repo.Record(ctx, domain.AuditEntry{
			SessionID: "s1",
			Kind:      kind,
			ActorID:   "alice",
			At:        base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	// Another session must never leak into s1's history.
	require.NoError(t, repo.Record(ctx, domain.AuditEntry{SessionID: "s2", Kind: "joined", ActorID: "eve", At: base}))

	entries, err := repo.History("s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "role_changed", entries[0].Kind)
	assert.Equal(t, "joined", entries[2].Kind)
}

func TestAuditHistoryHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	repo := NewAuditRepository(db, slog.Default())
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Record(ctx, domain.AuditEntry{
			SessionID: "s1",
			Kind:      "joined",
			ActorID:   "alice",
			At:        base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	entries, err := repo.History("s1", 4)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestDirectoryFallsBackToRawID(t *testing.T) {
	db := openTestDB(t)
	dir := NewUserDirectory(db)

	name, err := dir.DisplayName(context.Background(), "u-unknown")
	require.NoError(t, err)
	assert.Equal(t, "u-unknown", name)
}

func TestDirectoryUpsertThenResolve(t *testing.T) {
	db := openTestDB(t)
	dir := NewUserDirectory(db)
	ctx := context.Background()

	require.NoError(t, dir.Upsert(ctx, Profile{ID: "u1", DisplayName: "Alice"}))

	name, err := dir.DisplayName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}
