package game

import (
	"context"
	"fmt"
	"math/big"

	"vinflip/internal/evm"
)

// Canonical ERC-20 signatures the game needs.
const (
	sigBalanceOf = "balanceOf(address)"
	sigAllowance = "allowance(address,address)"
	sigApprove   = "approve(address,uint256)"
)

// Token is a handle on the VIN ERC-20 token.
type Token struct {
	addr   evm.Address
	caller evm.Caller
}

// NewToken creates a token handle.
func NewToken(addr evm.Address, caller evm.Caller) *Token {
	return &Token{addr: addr, caller: caller}
}

// Address returns the token contract address.
func (t *Token) Address() evm.Address {
	return t.addr
}

// BalanceOf reads the token balance of owner, in wei.
func (t *Token) BalanceOf(ctx context.Context, owner evm.Address) (*big.Int, error) {
	data, err := evm.PackCall(sigBalanceOf, owner)
	if err != nil {
		return nil, err
	}

	out, err := t.caller.CallContract(ctx, t.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	return evm.WordToUint256(out, 0)
}

// Allowance reads the spend allowance granted by owner to spender, in wei.
func (t *Token) Allowance(ctx context.Context, owner, spender evm.Address) (*big.Int, error) {
	data, err := evm.PackCall(sigAllowance, owner, spender)
	if err != nil {
		return nil, err
	}

	out, err := t.caller.CallContract(ctx, t.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}
	return evm.WordToUint256(out, 0)
}

// ApproveCalldata encodes approve(spender, amount) for submission.
func (t *Token) ApproveCalldata(spender evm.Address, amountWei *big.Int) ([]byte, error) {
	return evm.PackCall(sigApprove, spender, amountWei)
}
