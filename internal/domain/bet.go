package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Bet bounds enforced client-side before any transaction is built.
var (
	MinBet = decimal.RequireFromString("0.1")
	MaxBet = decimal.RequireFromString("100000")
)

// BetIntent is the bet about to be submitted: an amount in VIN and a side
// choice (true = heads).
type BetIntent struct {
	Amount string // decimal VIN string
	Heads  bool
}

// Validate checks the bet bounds. A nil error means the amount parses and
// satisfies 0.1 <= amount <= 100000.
func (b BetIntent) Validate() error {
	amt, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return fmt.Errorf("invalid bet amount %q", b.Amount)
	}
	if amt.LessThan(MinBet) {
		return fmt.Errorf("minimum bet: %s VIN", MinBet)
	}
	if amt.GreaterThan(MaxBet) {
		return fmt.Errorf("maximum bet: %s VIN", MaxBet)
	}
	return nil
}

// ValidateAgainstBalance checks bounds plus the player's spendable balance.
func (b BetIntent) ValidateAgainstBalance(tokenBalance string) error {
	if err := b.Validate(); err != nil {
		return err
	}
	bal, err := decimal.NewFromString(tokenBalance)
	if err != nil {
		return fmt.Errorf("invalid balance %q", tokenBalance)
	}
	amt, _ := decimal.NewFromString(b.Amount)
	if amt.GreaterThan(bal) {
		return fmt.Errorf("insufficient VIN balance")
	}
	return nil
}
