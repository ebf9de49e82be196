package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vinflip/internal/domain"
	"vinflip/internal/storage"
)

// LeaderboardStore implements storage.LeaderboardStore using PostgreSQL.
// The whole list is rewritten per save; position preserves the caller's
// ordering so Load returns entries exactly as saved.
type LeaderboardStore struct {
	pool *Pool
}

// NewLeaderboardStore creates a new LeaderboardStore.
func NewLeaderboardStore(pool *Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LeaderboardStore = (*LeaderboardStore)(nil)

// Load retrieves all entries in saved order.
func (s *LeaderboardStore) Load(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT player, payout, won_at_ms
		FROM leaderboard
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Player, &e.Payout, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}

	return entries, nil
}

// Save replaces the persisted list atomically.
func (s *LeaderboardStore) Save(ctx context.Context, entries []domain.LeaderboardEntry) error {
	if len(entries) > domain.MaxLeaderboardEntries {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}

	query := `
		INSERT INTO leaderboard (id, position, player, payout, won_at_ms)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, e := range entries {
		_, err := tx.Exec(ctx, query, uuid.New(), i, string(e.Player), e.Payout, e.Timestamp)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert leaderboard entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
