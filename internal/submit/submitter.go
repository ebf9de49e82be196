package submit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/game"
	"vinflip/internal/observability"
	"vinflip/internal/wallet"
)

// GasLimit is the fixed gas limit for every game transaction.
const GasLimit = 200000

// Fee fallbacks when the node cannot suggest fees.
var (
	fallbackPriorityFee = evm.Gwei(1)
	fallbackMaxFee      = evm.Gwei(2)
)

// ApproveCeilingVIN is the standing allowance granted in one approval, large
// enough that a session never needs a second one.
var ApproveCeilingVIN = decimal.RequireFromString("1000000")

// InvalidBetError is a precondition failure caught before any network call.
type InvalidBetError struct {
	Reason string
}

func (e *InvalidBetError) Error() string {
	return "invalid bet: " + e.Reason
}

// SubmitError is a transaction that made it to the network and failed.
type SubmitError struct {
	Op              string // "approve", "flip" or "withdraw"
	Reason          string
	InsufficientGas bool // the account cannot cover gas for the transaction
	Err             error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Submitter builds game transactions, hands them to the wallet for signing,
// and waits for their receipts.
type Submitter struct {
	rpc      evm.RPCClient
	provider wallet.Provider
	contract *game.Contract
	token    *game.Token
	logger   *log.Logger

	pollInterval time.Duration
	onSent       func(evm.Hash)
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = d
	}
}

// NewSubmitter creates a transaction submitter.
func NewSubmitter(rpc evm.RPCClient, provider wallet.Provider, contract *game.Contract, token *game.Token, logger *log.Logger, opts ...Option) *Submitter {
	if logger == nil {
		logger = log.Default()
	}
	s := &Submitter{
		rpc:          rpc,
		provider:     provider,
		contract:     contract,
		token:        token,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSent registers a callback fired once the wallet has accepted a
// transaction, before the receipt wait begins.
func (s *Submitter) OnSent(fn func(evm.Hash)) {
	s.onSent = fn
}

// ApproveSpend grants the game contract the standing allowance ceiling.
func (s *Submitter) ApproveSpend(ctx context.Context, from evm.Address) (*evm.Receipt, error) {
	amount := ApproveCeilingVIN.Shift(evm.TokenDecimals).BigInt()
	data, err := s.token.ApproveCalldata(s.contract.Address(), amount)
	if err != nil {
		return nil, &SubmitError{Op: "approve", Reason: "encode calldata", Err: err}
	}
	return s.send(ctx, "approve", from, s.token.Address(), data)
}

// SubmitFlip validates the bet against cached state, then submits
// flip(heads, amount). Preconditions fail fast with InvalidBetError and cost
// no network round trip.
func (s *Submitter) SubmitFlip(ctx context.Context, from evm.Address, intent domain.BetIntent, approved *big.Int, tokenBalance string) (*evm.Receipt, error) {
	if err := intent.ValidateAgainstBalance(tokenBalance); err != nil {
		return nil, &InvalidBetError{Reason: err.Error()}
	}

	amountWei, err := evm.ParseVIN(intent.Amount)
	if err != nil {
		return nil, &InvalidBetError{Reason: err.Error()}
	}
	if approved == nil || approved.Cmp(amountWei) < 0 {
		return nil, &InvalidBetError{Reason: "allowance too low, approve VIN spending first"}
	}

	data, err := s.contract.FlipCalldata(intent.Heads, amountWei)
	if err != nil {
		return nil, &SubmitError{Op: "flip", Reason: "encode calldata", Err: err}
	}
	return s.send(ctx, "flip", from, s.contract.Address(), data)
}

// Withdraw submits withdraw(). Refused when there is nothing to withdraw.
func (s *Submitter) Withdraw(ctx context.Context, from evm.Address, winnings string) (*evm.Receipt, error) {
	w, err := decimal.NewFromString(winnings)
	if err != nil || !w.IsPositive() {
		return nil, &InvalidBetError{Reason: "no winnings to withdraw"}
	}
	return s.send(ctx, "withdraw", from, s.contract.Address(), s.contract.WithdrawCalldata())
}

// send signs and broadcasts via the wallet, then waits for the receipt.
func (s *Submitter) send(ctx context.Context, op string, from, to evm.Address, data []byte) (*evm.Receipt, error) {
	fees := s.fees(ctx)

	hash, err := s.provider.SendTransaction(ctx, wallet.TxRequest{
		From:                 from,
		To:                   to,
		Data:                 data,
		Gas:                  GasLimit,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
	})
	if err != nil {
		var rpcErr *evm.RPCError
		switch {
		case errors.As(err, &rpcErr) && rpcErr.Code == evm.CodeUserRejected:
			observability.RecordWalletRejection("transaction")
			return nil, &SubmitError{Op: op, Reason: "rejected in wallet", Err: err}
		case isInsufficientFunds(err):
			return nil, &SubmitError{Op: op, Reason: "insufficient funds for gas", InsufficientGas: true, Err: err}
		}
		return nil, &SubmitError{Op: op, Reason: "send transaction", Err: err}
	}

	s.logger.Printf("%s submitted: %s", op, hash)
	if s.onSent != nil {
		s.onSent(hash)
	}

	receipt, err := s.awaitReceipt(ctx, hash)
	if err != nil {
		return nil, &SubmitError{Op: op, Reason: "await receipt", Err: err}
	}
	if receipt.Status == 0 {
		return receipt, &SubmitError{Op: op, Reason: "transaction reverted"}
	}

	s.logger.Printf("%s confirmed in block %d (gas used %d)", op, receipt.BlockNumber, receipt.GasUsed)
	return receipt, nil
}

// isInsufficientFunds spots the node's can't-pay-for-gas rejection, which
// arrives either as the generic internal error code -32603 or as an
// "insufficient funds" message.
func isInsufficientFunds(err error) bool {
	var rpcErr *evm.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == evm.CodeInternalError {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

// fees asks the node for suggestions, falling back to fixed legacy values so
// a degraded node never blocks a bet.
func (s *Submitter) fees(ctx context.Context) *evm.FeeData {
	fees, err := s.rpc.FeeData(ctx)
	if err != nil || fees == nil {
		s.logger.Printf("fee suggestion unavailable, using fallbacks: %v", err)
		return &evm.FeeData{
			MaxPriorityFeePerGas: fallbackPriorityFee,
			MaxFeePerGas:         fallbackMaxFee,
		}
	}
	if fees.MaxPriorityFeePerGas == nil {
		fees.MaxPriorityFeePerGas = fallbackPriorityFee
	}
	if fees.MaxFeePerGas == nil {
		fees.MaxFeePerGas = fallbackMaxFee
	}
	return fees
}

// awaitReceipt polls until the transaction is mined. There is no deadline of
// its own: the chain decides when a flip lands, the caller's context decides
// how long to care.
func (s *Submitter) awaitReceipt(ctx context.Context, hash evm.Hash) (*evm.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		observability.RecordReceiptPoll()
		receipt, err := s.rpc.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
