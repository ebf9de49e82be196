package domain

import (
	"sort"

	"github.com/shopspring/decimal"

	"vinflip/internal/evm"
)

// MaxLeaderboardEntries caps the persisted leaderboard.
const MaxLeaderboardEntries = 10

// LeaderboardEntry is one top-payout record.
type LeaderboardEntry struct {
	Player    evm.Address `json:"player"`
	Payout    string      `json:"payout"`    // decimal VIN
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}

// ApplyLeaderboard merges a winning entry into the list under the canonical
// policy: one entry per player, an existing entry is replaced only by a
// higher payout, capped at MaxLeaderboardEntries, ordered by payout
// descending (newer first on equal payout).
func ApplyLeaderboard(entries []LeaderboardEntry, entry LeaderboardEntry) []LeaderboardEntry {
	merged := make([]LeaderboardEntry, 0, len(entries)+1)
	replaced := false

	for _, e := range entries {
		if e.Player.Equal(entry.Player) {
			if payoutLess(e.Payout, entry.Payout) {
				continue // dropped in favor of the better payout
			}
			replaced = true // existing entry is at least as good
		}
		merged = append(merged, e)
	}
	if !replaced {
		merged = append(merged, entry)
	}

	SortLeaderboard(merged)

	if len(merged) > MaxLeaderboardEntries {
		merged = merged[:MaxLeaderboardEntries]
	}
	return merged
}

// SortLeaderboard orders entries by payout descending, newest first on ties.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Payout != entries[j].Payout {
			return payoutLess(entries[j].Payout, entries[i].Payout)
		}
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// payoutLess compares two decimal payout strings. Unparseable values sort
// last so a corrupt entry can never displace a real one.
func payoutLess(a, b string) bool {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil {
		return errB == nil
	}
	if errB != nil {
		return false
	}
	return da.LessThan(db)
}
