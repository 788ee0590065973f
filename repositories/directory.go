package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"voicehub/contract"
)

var _ contract.Directory = (*UserDirectory)(nil)

// UserDirectory resolves display names against the local user store. An
// unknown user is not an error: the raw ID doubles as the display name so
// a session never blocks on directory data.
type UserDirectory struct {
	db *badger.DB
}

func NewUserDirectory(db *badger.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// Profile is the stored representation of one directory entry.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d *UserDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var profile Profile

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}
	return profile.DisplayName, nil
}

// Upsert writes or replaces a directory entry.
func (d *UserDirectory) Upsert(ctx context.Context, profile Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("user:"+profile.ID), data)
	})
}
