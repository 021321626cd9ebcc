package preferences

import (
	"context"
	"fmt"

	"github.com/kilamate/kilamate/internal/kv"
)

// Store persists preferences.
type Store interface {
	// Load returns the stored preferences, or Defaults if none exist.
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, prefs Preferences) error
}

// KVStore keeps preferences as JSON under StorageKey.
type KVStore struct {
	kv kv.Store
}

// NewKVStore creates a preferences store backed by s.
func NewKVStore(s kv.Store) *KVStore {
	return &KVStore{kv: s}
}

// Load returns the stored preferences.
func (s *KVStore) Load(ctx context.Context) (Preferences, error) {
	prefs := Defaults()
	if _, err := kv.GetJSON(ctx, s.kv, StorageKey, &prefs); err != nil {
		return Defaults(), fmt.Errorf("loading preferences: %w", err)
	}
	return prefs.normalize(), nil
}

// Save replaces the stored preferences.
func (s *KVStore) Save(ctx context.Context, prefs Preferences) error {
	if err := kv.SetJSON(ctx, s.kv, StorageKey, prefs); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}
