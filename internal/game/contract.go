package game

import (
	"context"
	"fmt"
	"math/big"

	"vinflip/internal/evm"
)

// Canonical signatures of the coinflip contract surface.
const (
	sigFlip           = "flip(bool,uint256)"
	sigWithdraw       = "withdraw()"
	sigPlayerBalances = "playerBalances(address)"
	sigFlipResult     = "FlipResult(address,bool,bool,uint256,uint256)"
	sigWithdrawal     = "Withdrawal(address,uint256)"
)

// Event topic hashes, matched against topics[0] of incoming logs.
var (
	FlipResultTopic = evm.EventTopic(sigFlipResult)
	WithdrawalTopic = evm.EventTopic(sigWithdrawal)
)

// Contract is a handle on the deployed coinflip contract. Reads go through
// eth_call; state-changing calls are returned as calldata for the wallet
// to sign and send.
type Contract struct {
	addr   evm.Address
	caller evm.Caller
}

// NewContract creates a contract handle.
func NewContract(addr evm.Address, caller evm.Caller) *Contract {
	return &Contract{addr: addr, caller: caller}
}

// Address returns the contract address.
func (c *Contract) Address() evm.Address {
	return c.addr
}

// FlipCalldata encodes flip(heads, amount) for submission.
func (c *Contract) FlipCalldata(heads bool, amountWei *big.Int) ([]byte, error) {
	return evm.PackCall(sigFlip, heads, amountWei)
}

// WithdrawCalldata encodes withdraw() for submission.
func (c *Contract) WithdrawCalldata() []byte {
	data, _ := evm.PackCall(sigWithdraw)
	return data
}

// PlayerBalances reads the accumulated winnings for a player, in wei.
func (c *Contract) PlayerBalances(ctx context.Context, player evm.Address) (*big.Int, error) {
	data, err := evm.PackCall(sigPlayerBalances, player)
	if err != nil {
		return nil, err
	}

	out, err := c.caller.CallContract(ctx, c.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call playerBalances: %w", err)
	}
	return evm.WordToUint256(out, 0)
}

// FlipResultEvent is a decoded FlipResult log.
type FlipResultEvent struct {
	Player evm.Address
	Heads  bool // side the coin revealed
	Won    bool
	Bet    *big.Int // wei
	Payout *big.Int // wei
}

// WithdrawalEvent is a decoded Withdrawal log.
type WithdrawalEvent struct {
	Player evm.Address
	Amount *big.Int // wei
}

// DecodeFlipResult decodes a FlipResult log. The player is indexed; side,
// outcome, bet and payout ride in the data words.
func DecodeFlipResult(log evm.Log) (*FlipResultEvent, error) {
	if len(log.Topics) < 2 || log.Topics[0] != FlipResultTopic {
		return nil, fmt.Errorf("log is not a FlipResult event")
	}

	player, err := evm.TopicToAddress(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("decode player topic: %w", err)
	}

	data, err := evm.DecodeHexData(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	heads, err := evm.WordToBool(data, 0)
	if err != nil {
		return nil, err
	}
	won, err := evm.WordToBool(data, 1)
	if err != nil {
		return nil, err
	}
	bet, err := evm.WordToUint256(data, 2)
	if err != nil {
		return nil, err
	}
	payout, err := evm.WordToUint256(data, 3)
	if err != nil {
		return nil, err
	}

	return &FlipResultEvent{
		Player: player,
		Heads:  heads,
		Won:    won,
		Bet:    bet,
		Payout: payout,
	}, nil
}

// DecodeWithdrawal decodes a Withdrawal log.
func DecodeWithdrawal(log evm.Log) (*WithdrawalEvent, error) {
	if len(log.Topics) < 2 || log.Topics[0] != WithdrawalTopic {
		return nil, fmt.Errorf("log is not a Withdrawal event")
	}

	player, err := evm.TopicToAddress(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("decode player topic: %w", err)
	}

	data, err := evm.DecodeHexData(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	amount, err := evm.WordToUint256(data, 0)
	if err != nil {
		return nil, err
	}

	return &WithdrawalEvent{Player: player, Amount: amount}, nil
}

// EventFilter selects both game events on the contract address, for
// subscriptions and historical queries alike.
func (c *Contract) EventFilter() evm.FilterQuery {
	return evm.FilterQuery{
		Address: c.addr,
		Topics:  [][]evm.Hash{{FlipResultTopic, WithdrawalTopic}},
	}
}
