package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/game"
	"vinflip/internal/observability"
	"vinflip/internal/storage"
)

// AccountFunc reports the active account, if any. The reconciler consults it
// per event so a reconnect under a different account takes effect immediately.
type AccountFunc func() (evm.Address, bool)

// Reconciler subscribes to the game contract's event stream and folds every
// event into local state: the leaderboard sees all wins chain-wide, the
// archive sees everything, and callbacks fire for the active account's own
// events.
type Reconciler struct {
	ws          evm.WSClient
	contract    *game.Contract
	leaderboard storage.LeaderboardStore
	archive     storage.FlipEventStore // optional
	account     AccountFunc
	logger      *log.Logger
	now         func() time.Time

	onOutcome    func(domain.FlipOutcome)
	onWithdrawal func(amountVIN string)

	mu      sync.Mutex
	subID   evm.SubscriptionID
	done    chan struct{}
	running bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler. The archive store may be nil, in which
// case events are not persisted beyond the leaderboard.
func NewReconciler(ws evm.WSClient, contract *game.Contract, leaderboard storage.LeaderboardStore, archive storage.FlipEventStore, account AccountFunc, logger *log.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	r := &Reconciler{
		ws:          ws,
		contract:    contract,
		leaderboard: leaderboard,
		archive:     archive,
		account:     account,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnOutcome registers a callback for the active account's resolved flips.
func (r *Reconciler) OnOutcome(fn func(domain.FlipOutcome)) {
	r.onOutcome = fn
}

// OnWithdrawal registers a callback for the active account's withdrawals.
// The amount is a decimal VIN string.
func (r *Reconciler) OnWithdrawal(fn func(amountVIN string)) {
	r.onWithdrawal = fn
}

// Start subscribes to both game events and processes them until Stop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reconciler already running")
	}

	subID, logs, err := r.ws.SubscribeLogs(ctx, r.contract.EventFilter())
	if err != nil {
		return fmt.Errorf("subscribe to game events: %w", err)
	}

	r.subID = subID
	r.done = make(chan struct{})
	r.running = true

	go r.loop(logs)

	r.logger.Printf("subscribed to game events on %s", r.contract.Address())
	return nil
}

// Stop unsubscribes and waits for in-flight event handling to finish. Safe
// to call when not running.
func (r *Reconciler) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	subID := r.subID
	done := r.done
	r.running = false
	r.mu.Unlock()

	if err := r.ws.Unsubscribe(ctx, subID); err != nil {
		r.logger.Printf("unsubscribe failed: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Reconciler) loop(logs <-chan evm.Log) {
	defer close(r.done)

	for logEntry := range logs {
		r.handleLog(context.Background(), logEntry)
	}
}

func (r *Reconciler) handleLog(ctx context.Context, logEntry evm.Log) {
	// Reorged-out logs carry removed=true and must not touch state.
	if logEntry.Removed || len(logEntry.Topics) == 0 {
		return
	}

	switch logEntry.Topics[0] {
	case game.FlipResultTopic:
		r.handleFlipResult(ctx, logEntry)
	case game.WithdrawalTopic:
		r.handleWithdrawal(logEntry)
	}
}

func (r *Reconciler) handleFlipResult(ctx context.Context, logEntry evm.Log) {
	ev, err := game.DecodeFlipResult(logEntry)
	if err != nil {
		r.logger.Printf("bad FlipResult log %s: %v", logEntry.TxHash, err)
		observability.RecordEventError("flip_result", "decode")
		return
	}

	now := r.now()
	observability.RecordEventObserved("flip_result", float64(now.Unix()))

	bet := evm.FormatVIN(ev.Bet)
	payout := evm.FormatVIN(ev.Payout)

	r.archiveEvent(ctx, &domain.FlipEvent{
		Player:      ev.Player,
		Heads:       ev.Heads,
		Won:         ev.Won,
		Bet:         bet,
		Payout:      payout,
		TxHash:      string(logEntry.TxHash),
		BlockNumber: logEntry.BlockNumber,
		LogIndex:    logEntry.LogIndex,
		ObservedAt:  now.UnixMilli(),
	})

	// Every win chain-wide competes for the leaderboard, not just ours.
	if ev.Won {
		r.updateLeaderboard(ctx, domain.LeaderboardEntry{
			Player:    ev.Player,
			Payout:    payout,
			Timestamp: now.UnixMilli(),
		})
	}

	account, connected := r.account()
	if connected && ev.Player.Equal(account) {
		observability.RecordFlipResolved(ev.Won)
		if r.onOutcome != nil {
			r.onOutcome(domain.FlipOutcome{
				Player: ev.Player,
				Choice: playerChoice(ev),
				Heads:  ev.Heads,
				Won:    ev.Won,
				Bet:    bet,
				Payout: payout,
			})
		}
	}
}

// playerChoice reconstructs the side the player picked: the revealed side on
// a win, the opposite on a loss.
func playerChoice(ev *game.FlipResultEvent) bool {
	if ev.Won {
		return ev.Heads
	}
	return !ev.Heads
}

func (r *Reconciler) handleWithdrawal(logEntry evm.Log) {
	ev, err := game.DecodeWithdrawal(logEntry)
	if err != nil {
		r.logger.Printf("bad Withdrawal log %s: %v", logEntry.TxHash, err)
		observability.RecordEventError("withdrawal", "decode")
		return
	}

	observability.RecordEventObserved("withdrawal", float64(r.now().Unix()))

	account, connected := r.account()
	if connected && ev.Player.Equal(account) && r.onWithdrawal != nil {
		r.onWithdrawal(evm.FormatVIN(ev.Amount))
	}
}

func (r *Reconciler) archiveEvent(ctx context.Context, e *domain.FlipEvent) {
	if r.archive == nil {
		return
	}
	start := r.now()
	err := r.archive.Insert(ctx, e)
	observability.RecordDBQuery("clickhouse", "insert_flip_event", time.Since(start).Seconds(), err)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Replayed log after a reconnect, already archived.
		return
	}
	if err != nil {
		r.logger.Printf("archive flip event %s: %v", e.TxHash, err)
		observability.RecordEventError("flip_result", "archive")
		return
	}
	observability.RecordEventArchived()
}

func (r *Reconciler) updateLeaderboard(ctx context.Context, entry domain.LeaderboardEntry) {
	current, err := r.leaderboard.Load(ctx)
	if err != nil {
		r.logger.Printf("load leaderboard: %v", err)
		observability.RecordEventError("flip_result", "leaderboard_load")
		return
	}

	updated := domain.ApplyLeaderboard(current, entry)
	if err := r.leaderboard.Save(ctx, updated); err != nil {
		r.logger.Printf("save leaderboard: %v", err)
		observability.RecordEventError("flip_result", "leaderboard_save")
		return
	}
	observability.UpdateLeaderboardSize(len(updated))
}
