package evm

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"
)

// Selectors and topics for the standard ERC-20 surface are well known; they
// pin the Keccak-256 and canonicalization logic.
func TestMethodID_KnownSelectors(t *testing.T) {
	cases := []struct {
		sig  string
		want string
	}{
		{"approve(address,uint256)", "095ea7b3"},
		{"balanceOf(address)", "70a08231"},
		{"allowance(address,address)", "dd62ed3e"},
		{"withdraw()", "3ccfd60b"},
	}
	for _, c := range cases {
		got := hex.EncodeToString(MethodID(c.sig))
		if got != c.want {
			t.Errorf("MethodID(%s): got %s, want %s", c.sig, got, c.want)
		}
	}
}

func TestEventTopic_Withdrawal(t *testing.T) {
	got := EventTopic("Withdrawal(address,uint256)")
	want := Hash("0x7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65")
	if got != want {
		t.Errorf("EventTopic: got %s, want %s", got, want)
	}
}

func TestPackCall(t *testing.T) {
	spender := Address("0x00000000000000000000000000000000000000aa")
	amount := big.NewInt(1000)

	data, err := PackCall("approve(address,uint256)", spender, amount)
	if err != nil {
		t.Fatalf("PackCall: %v", err)
	}

	if len(data) != 4+64 {
		t.Fatalf("expected 68 bytes, got %d", len(data))
	}
	if hex.EncodeToString(data[:4]) != "095ea7b3" {
		t.Errorf("wrong selector: %x", data[:4])
	}

	// address word: 12 zero bytes then the address
	if !bytes.Equal(data[4:16], make([]byte, 12)) {
		t.Error("address word not left-padded")
	}
	if hex.EncodeToString(data[16:36]) != "00000000000000000000000000000000000000aa" {
		t.Errorf("wrong address bytes: %x", data[16:36])
	}

	// uint256 word
	v := new(big.Int).SetBytes(data[36:68])
	if v.Cmp(amount) != 0 {
		t.Errorf("wrong amount word: %s", v)
	}
}

func TestPackCall_Bool(t *testing.T) {
	data, err := PackCall("flip(bool,uint256)", true, big.NewInt(1))
	if err != nil {
		t.Fatalf("PackCall: %v", err)
	}
	if data[4+31] != 1 {
		t.Error("true should encode as 1 in the last byte of the word")
	}

	data, err = PackCall("flip(bool,uint256)", false, big.NewInt(1))
	if err != nil {
		t.Fatalf("PackCall: %v", err)
	}
	if !bytes.Equal(data[4:36], make([]byte, 32)) {
		t.Error("false should encode as a zero word")
	}
}

func TestPackCall_Errors(t *testing.T) {
	if _, err := PackCall("approve(address,uint256)", Address("0xshort"), big.NewInt(1)); err == nil {
		t.Error("expected error for malformed address")
	}
	if _, err := PackCall("flip(bool,uint256)", true, big.NewInt(-1)); err == nil {
		t.Error("expected error for negative uint256")
	}
	if _, err := PackCall("flip(bool,uint256)", "notsupported"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestWordDecoding(t *testing.T) {
	data := make([]byte, 64)
	data[31] = 1 // word 0 = 1
	big.NewInt(500).FillBytes(data[32:64])

	b, err := WordToBool(data, 0)
	if err != nil || !b {
		t.Errorf("WordToBool: got %v, %v", b, err)
	}

	v, err := WordToUint256(data, 1)
	if err != nil || v.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("WordToUint256: got %v, %v", v, err)
	}

	if _, err := WordToUint256(data, 2); err == nil {
		t.Error("expected error for out-of-range word")
	}
}

func TestTopicToAddress(t *testing.T) {
	topic := Hash("0x000000000000000000000000abcdef0123456789abcdef0123456789abcdef01")
	addr, err := TopicToAddress(topic)
	if err != nil {
		t.Fatalf("TopicToAddress: %v", err)
	}
	if addr != Address("0xabcdef0123456789abcdef0123456789abcdef01") {
		t.Errorf("got %s", addr)
	}

	if _, err := TopicToAddress(Hash("0x1234")); err == nil {
		t.Error("expected error for short topic")
	}
}
