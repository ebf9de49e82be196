package storage

import (
	"context"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
)

// LeaderboardStore persists the capped top-payout list. The whole list is
// rewritten after every qualifying win, mirroring how the browser client
// rewrote its storage key.
type LeaderboardStore interface {
	// Load retrieves all entries in their persisted order. An empty or
	// missing leaderboard yields an empty slice, not an error.
	Load(ctx context.Context) ([]domain.LeaderboardEntry, error)

	// Save replaces the persisted list. Returns ErrInvalidInput if more than
	// domain.MaxLeaderboardEntries entries are given.
	Save(ctx context.Context, entries []domain.LeaderboardEntry) error
}

// FlipEventStore archives every observed FlipResult event.
type FlipEventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if (tx_hash, log_index)
	// exists.
	Insert(ctx context.Context, e *domain.FlipEvent) error

	// GetByPlayer retrieves all events for a player, ordered by block then
	// log index ascending.
	GetByPlayer(ctx context.Context, player evm.Address) ([]*domain.FlipEvent, error)

	// Stats computes aggregate statistics over the archive.
	Stats(ctx context.Context) (*domain.FlipStats, error)
}
