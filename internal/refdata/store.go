package refdata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Source provides the reference table from some backing storage.
type Source interface {
	// Load parses the full table.
	Load(ctx context.Context) (*Table, error)
	// Fingerprint identifies the current backing state so the store can
	// detect staleness without a full reload.
	Fingerprint(ctx context.Context) (string, error)
}

// Store owns the read-mostly reference table. Readers take lock-free
// snapshots; reloads build a fresh table and swap the pointer
// atomically, so no reader ever observes a partially-updated table.
type Store struct {
	source Source

	table atomic.Pointer[Table]

	mu       sync.Mutex // serializes reloads
	onReload []func(*Table)
}

// NewStore creates a store over the given source. Call Reload before
// serving snapshots.
func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Snapshot returns the current table, or nil before the first load.
// The returned table is immutable and safe to share across goroutines.
func (s *Store) Snapshot() *Table {
	return s.table.Load()
}

// Reload re-parses the source and atomically swaps in the new table.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("reference reload failed: %w", err)
	}

	s.table.Store(table)
	log.Info().Int("records", len(table.Records)).Str("source", table.Source).
		Msg("Reference table reloaded")

	for _, fn := range s.onReload {
		fn(table)
	}
	return nil
}

// RefreshIfStale compares the source fingerprint against the loaded
// table and reloads only when they differ. Returns whether a reload
// happened.
func (s *Store) RefreshIfStale(ctx context.Context) (bool, error) {
	current := s.Snapshot()
	if current == nil {
		return true, s.Reload(ctx)
	}

	fingerprint, err := s.source.Fingerprint(ctx)
	if err != nil {
		return false, fmt.Errorf("staleness check failed: %w", err)
	}
	if fingerprint == current.Fingerprint {
		return false, nil
	}

	log.Info().Str("have", current.Fingerprint).Str("want", fingerprint).
		Msg("Reference table stale, reloading")
	return true, s.Reload(ctx)
}

// OnReload registers a callback invoked with each freshly swapped table.
// Register before serving; callbacks run on the reloading goroutine.
func (s *Store) OnReload(fn func(*Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}
