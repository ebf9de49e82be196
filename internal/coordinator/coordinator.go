package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"vinflip/internal/balance"
	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/observability"
	"vinflip/internal/reconcile"
	"vinflip/internal/submit"
	"vinflip/internal/wallet"
)

// State is the game session's coarse phase.
type State string

const (
	// StateIdle accepts new actions.
	StateIdle State = "idle"
	// StateSubmitting covers the wallet prompt.
	StateSubmitting State = "submitting"
	// StateAwaitingConfirmation means the wallet accepted the flip and the
	// receipt is pending.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateAwaitingEvent means the flip is mined and the FlipResult event is
	// still in flight.
	StateAwaitingEvent State = "awaiting_event"
	// StateResolved shows the outcome until the next action or disconnect.
	StateResolved State = "resolved"
)

// MaxHistory caps the per-session list of recent outcomes.
const MaxHistory = 5

// DefaultErrorTTL is how long a surfaced error stays visible before it
// clears itself.
const DefaultErrorTTL = 8 * time.Second

// ErrFlipInFlight guards against a second flip while one is unresolved.
var ErrFlipInFlight = errors.New("a flip is already in flight")

// Snapshot is the session state served to clients.
type Snapshot struct {
	State       State                `json:"state"`
	Connected   bool                 `json:"connected"`
	Account     evm.Address          `json:"account,omitempty"`
	Balances    domain.Balances      `json:"balances"`
	Allowance   string               `json:"allowance"` // decimal VIN
	LastError   string               `json:"last_error,omitempty"`
	LastOutcome *domain.FlipOutcome  `json:"last_outcome,omitempty"`
	History     []domain.FlipOutcome `json:"history"`
}

// Coordinator drives the game session: one wallet, one account, one flip at
// a time. All mutations funnel through here so the guard invariants hold.
type Coordinator struct {
	wallet     *wallet.Manager
	balances   *balance.Reader
	submitter  *submit.Submitter
	reconciler *reconcile.Reconciler
	logger     *log.Logger

	errorTTL  time.Duration
	afterFunc func(time.Duration, func()) *time.Timer

	mu           sync.Mutex
	state        State
	flipInFlight bool
	flipSentAt   time.Time
	lastErr      string
	errTimer     *time.Timer
	lastOutcome  *domain.FlipOutcome
	history      []domain.FlipOutcome
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithErrorTTL overrides how long surfaced errors persist.
func WithErrorTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.errorTTL = ttl
	}
}

// WithAfterFunc overrides the error-clear timer source.
func WithAfterFunc(fn func(time.Duration, func()) *time.Timer) Option {
	return func(c *Coordinator) {
		c.afterFunc = fn
	}
}

// New creates a coordinator and wires itself into the reconciler's
// callbacks.
func New(w *wallet.Manager, balances *balance.Reader, submitter *submit.Submitter, reconciler *reconcile.Reconciler, logger *log.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	c := &Coordinator{
		wallet:     w,
		balances:   balances,
		submitter:  submitter,
		reconciler: reconciler,
		logger:     logger,
		errorTTL:   DefaultErrorTTL,
		afterFunc:  time.AfterFunc,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	reconciler.OnOutcome(c.handleOutcome)
	reconciler.OnWithdrawal(c.handleWithdrawal)
	submitter.OnSent(c.handleSent)
	return c
}

// Connect opens the wallet session, (re)starts the event subscription and
// loads balances. Reconnecting tears the old subscription down first so a
// wallet-side account change cannot leak events across accounts.
func (c *Coordinator) Connect(ctx context.Context) (evm.Address, error) {
	c.reconciler.Stop(ctx)

	account, err := c.wallet.Connect(ctx)
	if err != nil {
		c.surfaceError(err.Error())
		return "", err
	}
	observability.RecordWalletConnect()

	c.mu.Lock()
	c.lastOutcome = nil
	c.history = nil
	c.flipInFlight = false
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.reconciler.Start(ctx); err != nil {
		c.wallet.Disconnect()
		return "", fmt.Errorf("start event subscription: %w", err)
	}

	if _, err := c.balances.Refresh(ctx, account); err != nil {
		// Stale zeros are tolerable at connect; the next refresh fixes it.
		c.logger.Printf("initial balance refresh: %v", err)
	}
	return account, nil
}

// Disconnect ends the session and resets all per-account state. Safe to call
// repeatedly.
func (c *Coordinator) Disconnect(ctx context.Context) {
	c.reconciler.Stop(ctx)
	c.wallet.Disconnect()
	c.balances.Reset()

	c.mu.Lock()
	c.lastOutcome = nil
	c.history = nil
	c.flipInFlight = false
	c.state = StateIdle
	c.clearErrorLocked()
	c.mu.Unlock()
}

// Approve grants the standing spend allowance and refreshes balances.
func (c *Coordinator) Approve(ctx context.Context) error {
	account, ok := c.wallet.Account()
	if !ok {
		return wallet.ErrNotConnected
	}

	if _, err := c.submitter.ApproveSpend(ctx, account); err != nil {
		c.reportSubmitErr(err)
		return err
	}
	observability.DefaultMetrics.ApprovalsTotal.Inc()

	c.refresh(ctx, account)
	return nil
}

// Flip submits a bet. Only one flip may be unresolved at a time; the guard
// releases when the FlipResult event arrives, not when the receipt does.
func (c *Coordinator) Flip(ctx context.Context, intent domain.BetIntent) error {
	account, ok := c.wallet.Account()
	if !ok {
		return wallet.ErrNotConnected
	}

	c.mu.Lock()
	if c.flipInFlight {
		c.mu.Unlock()
		return ErrFlipInFlight
	}
	c.flipInFlight = true
	c.state = StateSubmitting
	c.lastOutcome = nil
	c.mu.Unlock()

	approved := c.balances.Allowance()
	tokenBalance := c.balances.Cached().VIN

	_, err := c.submitter.SubmitFlip(ctx, account, intent, approved, tokenBalance)
	if err != nil {
		c.mu.Lock()
		c.flipInFlight = false
		c.state = StateIdle
		c.mu.Unlock()
		c.reportSubmitErr(err)
		return err
	}

	if amt, perr := decimal.NewFromString(intent.Amount); perr == nil {
		f, _ := amt.Float64()
		observability.RecordFlipSubmitted(f)
	}

	c.mu.Lock()
	c.state = StateAwaitingEvent
	c.flipSentAt = time.Now()
	c.mu.Unlock()
	return nil
}

// handleSent moves the in-flight flip from the wallet prompt to the receipt
// wait. Approvals and withdrawals also fire it but change no state.
func (c *Coordinator) handleSent(evm.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flipInFlight && c.state == StateSubmitting {
		c.state = StateAwaitingConfirmation
	}
}

// Withdraw pulls accumulated winnings back to the wallet.
func (c *Coordinator) Withdraw(ctx context.Context) error {
	account, ok := c.wallet.Account()
	if !ok {
		return wallet.ErrNotConnected
	}

	winnings := c.balances.Cached().Winnings
	if _, err := c.submitter.Withdraw(ctx, account, winnings); err != nil {
		c.reportSubmitErr(err)
		return err
	}
	observability.DefaultMetrics.WithdrawalsTotal.Inc()

	c.refresh(ctx, account)
	return nil
}

// Snapshot returns the current session state.
func (c *Coordinator) Snapshot() Snapshot {
	account, connected := c.wallet.Account()

	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]domain.FlipOutcome, len(c.history))
	copy(history, c.history)

	var outcome *domain.FlipOutcome
	if c.lastOutcome != nil {
		o := *c.lastOutcome
		outcome = &o
	}

	return Snapshot{
		State:       c.state,
		Connected:   connected,
		Account:     account,
		Balances:    c.balances.Cached(),
		Allowance:   evm.FormatVIN(c.balances.Allowance()),
		LastError:   c.lastErr,
		LastOutcome: outcome,
		History:     history,
	}
}

// DismissError clears the surfaced error without waiting out the TTL.
func (c *Coordinator) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearErrorLocked()
}

// handleOutcome resolves the in-flight flip: record it, release the guard,
// refresh balances.
func (c *Coordinator) handleOutcome(o domain.FlipOutcome) {
	c.mu.Lock()
	c.lastOutcome = &o
	c.history = append([]domain.FlipOutcome{o}, c.history...)
	if len(c.history) > MaxHistory {
		c.history = c.history[:MaxHistory]
	}
	c.flipInFlight = false
	c.state = StateResolved
	if !c.flipSentAt.IsZero() {
		observability.ObserveFlipResolution(time.Since(c.flipSentAt).Seconds())
		c.flipSentAt = time.Time{}
	}
	c.mu.Unlock()

	c.logger.Printf("flip resolved: won=%v bet=%s payout=%s", o.Won, o.Bet, o.Payout)

	if account, ok := c.wallet.Account(); ok {
		c.refresh(context.Background(), account)
	}
}

// handleWithdrawal reflects a confirmed withdrawal in the balances. The
// withdrawn winnings are gone, so any pending win prompt comes down with them.
func (c *Coordinator) handleWithdrawal(amountVIN string) {
	c.logger.Printf("withdrawal confirmed: %s VIN", amountVIN)

	c.mu.Lock()
	c.lastOutcome = nil
	if c.state == StateResolved {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if account, ok := c.wallet.Account(); ok {
		c.refresh(context.Background(), account)
	}
}

func (c *Coordinator) refresh(ctx context.Context, account evm.Address) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := c.balances.Refresh(ctx, account); err != nil {
		c.logger.Printf("balance refresh: %v", err)
	}
}

// reportSubmitErr surfaces a submission failure and feeds the metrics.
func (c *Coordinator) reportSubmitErr(err error) {
	var submitErr *submit.SubmitError
	if errors.As(err, &submitErr) {
		observability.RecordSubmitError(submitErr.Op, submitErr.Reason)
	}
	c.surfaceError(err.Error())
}

// surfaceError publishes a user-facing error that clears itself after the
// TTL. A newer error restarts the clock.
func (c *Coordinator) surfaceError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errTimer != nil {
		c.errTimer.Stop()
	}
	c.lastErr = msg
	c.errTimer = c.afterFunc(c.errorTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastErr == msg {
			c.lastErr = ""
		}
	})
}

func (c *Coordinator) clearErrorLocked() {
	if c.errTimer != nil {
		c.errTimer.Stop()
		c.errTimer = nil
	}
	c.lastErr = ""
}
