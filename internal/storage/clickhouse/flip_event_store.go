package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/storage"
)

// FlipEventStore implements storage.FlipEventStore using ClickHouse.
type FlipEventStore struct {
	conn *Conn
}

// NewFlipEventStore creates a new FlipEventStore.
func NewFlipEventStore(conn *Conn) *FlipEventStore {
	return &FlipEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FlipEventStore = (*FlipEventStore)(nil)

// Insert adds an event. MergeTree does not enforce uniqueness, so the
// (tx_hash, log_index) key is checked explicitly before insert.
func (s *FlipEventStore) Insert(ctx context.Context, e *domain.FlipEvent) error {
	if e == nil || e.TxHash == "" || e.Player == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.TxHash, e.LogIndex)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO flip_events (
			player, heads, won, bet, payout, tx_hash, block_number, log_index, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		string(evm.NormalizeAddress(string(e.Player))), boolToUint8(e.Heads), boolToUint8(e.Won),
		e.Bet, e.Payout, e.TxHash, e.BlockNumber, e.LogIndex, uint64(e.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("insert flip event: %w", err)
	}

	return nil
}

// GetByPlayer retrieves all events for a player, ordered by block then log index ASC.
func (s *FlipEventStore) GetByPlayer(ctx context.Context, player evm.Address) ([]*domain.FlipEvent, error) {
	query := `
		SELECT player, heads, won, bet, payout, tx_hash, block_number, log_index, observed_at
		FROM flip_events
		WHERE player = ?
		ORDER BY block_number ASC, log_index ASC
	`

	rows, err := s.conn.Query(ctx, query, string(evm.NormalizeAddress(string(player))))
	if err != nil {
		return nil, fmt.Errorf("query by player: %w", err)
	}
	defer rows.Close()

	return scanFlipEvents(rows)
}

// Stats computes aggregate statistics over the archive.
func (s *FlipEventStore) Stats(ctx context.Context) (*domain.FlipStats, error) {
	query := `
		SELECT
			count(*) AS total_flips,
			countIf(won = 1) AS total_wins,
			if(count(*) > 0, countIf(won = 1) / count(*), 0) AS win_rate,
			toString(maxIf(toDecimal128(payout, 18), won = 1)) AS biggest_payout,
			toString(sum(toDecimal128(bet, 18))) AS total_wagered
		FROM flip_events
	`

	stats := &domain.FlipStats{}
	err := s.conn.QueryRow(ctx, query).Scan(
		&stats.TotalFlips, &stats.TotalWins, &stats.WinRate,
		&stats.BiggestPayout, &stats.TotalWagered,
	)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	// Decimal128 renders with trailing zeros; normalize to plain decimals.
	stats.BiggestPayout = normalizeDecimal(stats.BiggestPayout)
	stats.TotalWagered = normalizeDecimal(stats.TotalWagered)

	return stats, nil
}

func normalizeDecimal(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.String()
}

// exists checks if an event with the given key exists.
func (s *FlipEventStore) exists(ctx context.Context, txHash string, logIndex uint64) (bool, error) {
	query := `
		SELECT count(*) FROM flip_events
		WHERE tx_hash = ? AND log_index = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, txHash, logIndex).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanFlipEvents scans multiple rows.
func scanFlipEvents(rows driver.Rows) ([]*domain.FlipEvent, error) {
	var events []*domain.FlipEvent

	for rows.Next() {
		var e domain.FlipEvent
		var player string
		var heads, won uint8
		var observedAt uint64

		err := rows.Scan(
			&player, &heads, &won, &e.Bet, &e.Payout,
			&e.TxHash, &e.BlockNumber, &e.LogIndex, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan flip event row: %w", err)
		}

		e.Player = evm.Address(player)
		e.Heads = heads == 1
		e.Won = won == 1
		e.ObservedAt = int64(observedAt)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flip event rows: %w", err)
	}

	return events, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
