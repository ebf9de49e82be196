package balance

import (
	"context"
	"log"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/game"
)

// Reader refreshes the three balance views and the game allowance in one
// round trip. Last good values are kept, so a failed refresh degrades to
// stale data instead of zeroing the display.
type Reader struct {
	token    *game.Token
	contract *game.Contract
	logger   *log.Logger

	mu        sync.Mutex
	balances  domain.Balances
	allowance *big.Int
}

// NewReader creates a balance reader.
func NewReader(token *game.Token, contract *game.Contract, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Default()
	}
	return &Reader{
		token:     token,
		contract:  contract,
		logger:    logger,
		balances:  domain.ZeroBalances(),
		allowance: new(big.Int),
	}
}

// Refresh reads token balance, winnings, pot and allowance concurrently.
// On error the previous values are returned alongside the error.
func (r *Reader) Refresh(ctx context.Context, account evm.Address) (domain.Balances, error) {
	var (
		tokenBal  *big.Int
		winnings  *big.Int
		pot       *big.Int
		allowance *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tokenBal, err = r.token.BalanceOf(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		winnings, err = r.contract.PlayerBalances(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		pot, err = r.token.BalanceOf(gctx, r.contract.Address())
		return err
	})
	g.Go(func() error {
		var err error
		allowance, err = r.token.Allowance(gctx, account, r.contract.Address())
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.Printf("balance refresh failed, keeping stale values: %v", err)
		return r.Cached(), err
	}

	balances := domain.Balances{
		VIN:      evm.FormatVIN(tokenBal),
		Winnings: evm.FormatVIN(winnings),
		Pot:      evm.FormatVIN(pot),
	}

	r.mu.Lock()
	r.balances = balances
	r.allowance = allowance
	r.mu.Unlock()

	return balances, nil
}

// Cached returns the last successfully read balances.
func (r *Reader) Cached() domain.Balances {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances
}

// Allowance returns the last successfully read game allowance, in wei.
func (r *Reader) Allowance() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.allowance)
}

// Reset drops cached values back to the disconnected state.
func (r *Reader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances = domain.ZeroBalances()
	r.allowance = new(big.Int)
}
