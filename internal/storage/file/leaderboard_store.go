package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"vinflip/internal/domain"
	"vinflip/internal/storage"
)

// LeaderboardFileName is the fixed file name inside the store's directory.
// Carries over the storage key used by the original web client.
const LeaderboardFileName = "vinuhub_leaderboard.json"

// LeaderboardStore persists the leaderboard as a JSON file. A corrupt or
// missing file reads as an empty leaderboard, never an error.
type LeaderboardStore struct {
	mu   sync.Mutex
	path string
}

// NewLeaderboardStore creates a store rooted at dir. The directory is
// created if missing.
func NewLeaderboardStore(dir string) (*LeaderboardStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create leaderboard dir: %w", err)
	}
	return &LeaderboardStore{path: filepath.Join(dir, LeaderboardFileName)}, nil
}

// Load reads the persisted list. Missing or unparseable content yields an
// empty slice.
func (s *LeaderboardStore) Load(_ context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.LeaderboardEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leaderboard file: %w", err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt content resets to empty rather than wedging the game.
		return []domain.LeaderboardEntry{}, nil
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// Save replaces the persisted list. The write goes through a temp file and
// rename so a crash cannot leave a half-written leaderboard.
func (s *LeaderboardStore) Save(_ context.Context, entries []domain.LeaderboardEntry) error {
	if len(entries) > domain.MaxLeaderboardEntries {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write leaderboard temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace leaderboard file: %w", err)
	}
	return nil
}

var _ storage.LeaderboardStore = (*LeaderboardStore)(nil)
