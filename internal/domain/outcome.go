package domain

import "vinflip/internal/evm"

// FlipOutcome is the resolved result of one flip, built from a FlipResult
// event for the active account. Immutable once created.
type FlipOutcome struct {
	Player evm.Address
	Choice bool // side the player picked (true = heads)
	Heads  bool // side the coin revealed
	Won    bool
	Bet    string // decimal VIN
	Payout string // decimal VIN
}

// FlipEvent is one observed FlipResult event from any player, as archived by
// the event store. Keyed by (tx_hash, log_index).
type FlipEvent struct {
	Player      evm.Address
	Heads       bool
	Won         bool
	Bet         string // decimal VIN
	Payout      string // decimal VIN
	TxHash      string
	BlockNumber uint64
	LogIndex    uint64
	ObservedAt  int64 // Unix timestamp in milliseconds
}

// FlipStats summarizes the archived event history.
type FlipStats struct {
	TotalFlips    uint64
	TotalWins     uint64
	WinRate       float64
	BiggestPayout string // decimal VIN
	TotalWagered  string // decimal VIN
}

// Balances are the three read-only views shown to the player, as decimal
// VIN strings.
type Balances struct {
	VIN      string // player's token balance
	Winnings string // playerBalances(account) on the game contract
	Pot      string // token balance held by the game contract
}

// ZeroBalances is the disconnected display state.
func ZeroBalances() Balances {
	return Balances{VIN: "0", Winnings: "0", Pot: "0"}
}
