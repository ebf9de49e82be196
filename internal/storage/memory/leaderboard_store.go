package memory

import (
	"context"
	"sync"

	"vinflip/internal/domain"
	"vinflip/internal/storage"
)

// LeaderboardStore is an in-memory implementation of storage.LeaderboardStore.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries []domain.LeaderboardEntry
}

// NewLeaderboardStore creates a new in-memory leaderboard store.
func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{}
}

// Load retrieves all entries in their persisted order.
func (s *LeaderboardStore) Load(_ context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LeaderboardEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Save replaces the persisted list.
func (s *LeaderboardStore) Save(_ context.Context, entries []domain.LeaderboardEntry) error {
	if len(entries) > domain.MaxLeaderboardEntries {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]domain.LeaderboardEntry, len(entries))
	copy(s.entries, entries)
	return nil
}

var _ storage.LeaderboardStore = (*LeaderboardStore)(nil)
