// Package repositories holds the BadgerDB-backed persistence collaborators.
// The router core owns no durable state; everything written here is either
// audit history or directory data consulted at join time.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"voicehub/contract"
	"voicehub/domain"
)

var _ contract.AuditTrail = (*AuditRepository)(nil)

type AuditRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewAuditRepository(db *badger.DB, log *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, log: log}
}

// Record persists one audit entry.
// The key is formatted as "audit:{session_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two entries
//     arrive at the same nanosecond.
func (a *AuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	key := fmt.Sprintf("audit:%s:%019d:%s",
		entry.SessionID,
		entry.At.UnixNano(),
		uuid.NewString(),
	)
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// History returns the most recent entries for a session, newest first.
// Thanks to the padded timestamp in the key, a reverse prefix scan walks
// the entries in time order without any post-sort.
func (a *AuditRepository) History(sessionID string, limit int) ([]domain.AuditEntry, error) {
	var raw [][]byte
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("audit:%s:", sessionID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				a.log.Debug(fmt.Sprintf("Maximum of %d audit entries reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(raw))
	for _, b := range raw {
		var entry domain.AuditEntry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
