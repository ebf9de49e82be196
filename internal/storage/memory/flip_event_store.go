package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/storage"
)

type eventKey struct {
	txHash   string
	logIndex uint64
}

// FlipEventStore is an in-memory implementation of storage.FlipEventStore.
type FlipEventStore struct {
	mu   sync.RWMutex
	data map[eventKey]*domain.FlipEvent
}

// NewFlipEventStore creates a new in-memory flip event store.
func NewFlipEventStore() *FlipEventStore {
	return &FlipEventStore{
		data: make(map[eventKey]*domain.FlipEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if (tx_hash, log_index) exists.
func (s *FlipEventStore) Insert(_ context.Context, e *domain.FlipEvent) error {
	if e == nil || e.TxHash == "" || e.Player == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := eventKey{e.TxHash, e.LogIndex}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *e
	s.data[k] = &copy
	return nil
}

// GetByPlayer retrieves all events for a player, ordered by block then log index ASC.
func (s *FlipEventStore) GetByPlayer(_ context.Context, player evm.Address) ([]*domain.FlipEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FlipEvent
	for _, e := range s.data {
		if e.Player.Equal(player) {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].LogIndex < result[j].LogIndex
	})

	return result, nil
}

// Stats computes aggregate statistics over the archive.
func (s *FlipEventStore) Stats(_ context.Context) (*domain.FlipStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.FlipStats{}
	biggest := decimal.Zero
	wagered := decimal.Zero

	for _, e := range s.data {
		stats.TotalFlips++
		if bet, err := decimal.NewFromString(e.Bet); err == nil {
			wagered = wagered.Add(bet)
		}
		if e.Won {
			stats.TotalWins++
			if payout, err := decimal.NewFromString(e.Payout); err == nil && payout.GreaterThan(biggest) {
				biggest = payout
			}
		}
	}

	if stats.TotalFlips > 0 {
		stats.WinRate = float64(stats.TotalWins) / float64(stats.TotalFlips)
	}
	stats.BiggestPayout = biggest.String()
	stats.TotalWagered = wagered.String()
	return stats, nil
}

var _ storage.FlipEventStore = (*FlipEventStore)(nil)
