package game

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"vinflip/internal/evm"
)

const (
	player   = evm.Address("0x1111111111111111111111111111111111111111")
	gameAddr = evm.Address("0x2222222222222222222222222222222222222222")
)

// fakeCaller returns canned eth_call results and records the last call.
type fakeCaller struct {
	result []byte
	err    error

	lastTo   evm.Address
	lastData []byte
}

func (f *fakeCaller) CallContract(_ context.Context, to evm.Address, data []byte) ([]byte, error) {
	f.lastTo = to
	f.lastData = data
	return f.result, f.err
}

func uintWord(v int64) []byte {
	word := make([]byte, 32)
	big.NewInt(v).FillBytes(word)
	return word
}

func TestWithdrawalTopic_KnownHash(t *testing.T) {
	// keccak256("Withdrawal(address,uint256)") is a well-known constant.
	want := evm.Hash("0x7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65")
	if WithdrawalTopic != want {
		t.Errorf("WithdrawalTopic = %s, want %s", WithdrawalTopic, want)
	}
}

func TestContract_FlipCalldata(t *testing.T) {
	c := NewContract(gameAddr, &fakeCaller{})

	data, err := c.FlipCalldata(true, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("FlipCalldata failed: %v", err)
	}
	if len(data) != 4+32+32 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	if hex.EncodeToString(data[:4]) != hex.EncodeToString(evm.MethodID("flip(bool,uint256)")) {
		t.Error("wrong selector")
	}
	if data[35] != 1 {
		t.Error("heads=true should encode as 1 in the first word")
	}
	amount := new(big.Int).SetBytes(data[36:68])
	if amount.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("amount word = %s, want 1e18", amount)
	}
}

func TestContract_WithdrawCalldata(t *testing.T) {
	c := NewContract(gameAddr, &fakeCaller{})

	data := c.WithdrawCalldata()
	// withdraw() has the well-known selector 3ccfd60b.
	if hex.EncodeToString(data) != "3ccfd60b" {
		t.Errorf("withdraw calldata = %x, want 3ccfd60b", data)
	}
}

func TestContract_PlayerBalances(t *testing.T) {
	caller := &fakeCaller{result: uintWord(42)}
	c := NewContract(gameAddr, caller)

	got, err := c.PlayerBalances(context.Background(), player)
	if err != nil {
		t.Fatalf("PlayerBalances failed: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("got %s, want 42", got)
	}
	if caller.lastTo != gameAddr {
		t.Errorf("call went to %s, want %s", caller.lastTo, gameAddr)
	}
	// selector + padded player address
	if len(caller.lastData) != 4+32 {
		t.Errorf("calldata length = %d, want 36", len(caller.lastData))
	}
}

func playerTopic() evm.Hash {
	return evm.Hash("0x000000000000000000000000" + string(player)[2:])
}

func TestDecodeFlipResult(t *testing.T) {
	data := make([]byte, 0, 128)
	data = append(data, uintWord(1)...)  // heads
	data = append(data, uintWord(1)...)  // won
	data = append(data, uintWord(10)...) // bet
	data = append(data, uintWord(20)...) // payout

	log := evm.Log{
		Address:     gameAddr,
		Topics:      []evm.Hash{FlipResultTopic, playerTopic()},
		Data:        evm.EncodeHexData(data),
		BlockNumber: 100,
		TxHash:      "0xabc",
		LogIndex:    3,
	}

	ev, err := DecodeFlipResult(log)
	if err != nil {
		t.Fatalf("DecodeFlipResult failed: %v", err)
	}
	if !ev.Player.Equal(player) {
		t.Errorf("player = %s", ev.Player)
	}
	if !ev.Heads || !ev.Won {
		t.Errorf("heads/won = %v/%v, want true/true", ev.Heads, ev.Won)
	}
	if ev.Bet.Cmp(big.NewInt(10)) != 0 || ev.Payout.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("bet/payout = %s/%s", ev.Bet, ev.Payout)
	}
}

func TestDecodeFlipResult_WrongTopic(t *testing.T) {
	log := evm.Log{Topics: []evm.Hash{WithdrawalTopic, playerTopic()}}
	if _, err := DecodeFlipResult(log); err == nil {
		t.Error("expected error for non-FlipResult log")
	}
}

func TestDecodeWithdrawal(t *testing.T) {
	log := evm.Log{
		Topics: []evm.Hash{WithdrawalTopic, playerTopic()},
		Data:   evm.EncodeHexData(uintWord(77)),
	}

	ev, err := DecodeWithdrawal(log)
	if err != nil {
		t.Fatalf("DecodeWithdrawal failed: %v", err)
	}
	if !ev.Player.Equal(player) {
		t.Errorf("player = %s", ev.Player)
	}
	if ev.Amount.Cmp(big.NewInt(77)) != 0 {
		t.Errorf("amount = %s, want 77", ev.Amount)
	}
}

func TestDecodeWithdrawal_MissingPlayerTopic(t *testing.T) {
	log := evm.Log{Topics: []evm.Hash{WithdrawalTopic}}
	if _, err := DecodeWithdrawal(log); err == nil {
		t.Error("expected error for log without player topic")
	}
}

func TestContract_EventFilter(t *testing.T) {
	c := NewContract(gameAddr, &fakeCaller{})

	q := c.EventFilter()
	if q.Address != gameAddr {
		t.Errorf("filter address = %s", q.Address)
	}
	if len(q.Topics) != 1 || len(q.Topics[0]) != 2 {
		t.Fatalf("filter should OR both event topics: %+v", q.Topics)
	}
}
