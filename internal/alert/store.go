package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilamate/kilamate/internal/kv"
)

// RecordKey is the storage key of the sent-alert record.
const RecordKey = "sent-weather-alerts"

// Store persists the sent-alert record.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
}

// KVStore keeps the record as JSON under RecordKey in a key-value store.
// Concurrent writers are last-write-wins.
type KVStore struct {
	kv kv.Store
}

// NewKVStore creates a record store backed by s.
func NewKVStore(s kv.Store) *KVStore {
	return &KVStore{kv: s}
}

// Load returns the stored record, or an empty one if none exists.
func (s *KVStore) Load(ctx context.Context) (Record, error) {
	rec := Record{}
	if _, err := kv.GetJSON(ctx, s.kv, RecordKey, &rec); err != nil {
		return Record{}, fmt.Errorf("loading alert record: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// Save replaces the stored record.
func (s *KVStore) Save(ctx context.Context, rec Record) error {
	if err := kv.SetJSON(ctx, s.kv, RecordKey, rec); err != nil {
		return fmt.Errorf("saving alert record: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu  sync.RWMutex
	rec Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rec: Record{}}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec.Clone()
	return nil
}
