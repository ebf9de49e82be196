package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// The contract surface is fixed (three game calls, three token calls, two
// events), so there is no general-purpose ABI parser here — only packing for
// address/uint256/bool arguments and word-level decoding of returns and logs.

// Keccak256 computes the legacy Keccak-256 digest used by EVM ABIs.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// MethodID returns the 4-byte selector for a canonical signature like
// "approve(address,uint256)".
func MethodID(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

// EventTopic returns the 32-byte topic hash for a canonical event signature
// like "Withdrawal(address,uint256)".
func EventTopic(signature string) Hash {
	return Hash("0x" + hex.EncodeToString(Keccak256([]byte(signature))))
}

// PackCall ABI-encodes a call to the given signature with the given arguments.
// Supported argument types: Address, *big.Int, bool.
func PackCall(signature string, args ...interface{}) ([]byte, error) {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, MethodID(signature)...)
	for i, arg := range args {
		word, err := packWord(arg)
		if err != nil {
			return nil, fmt.Errorf("pack arg %d of %s: %w", i, signature, err)
		}
		data = append(data, word...)
	}
	return data, nil
}

// packWord encodes a single static argument as a 32-byte word.
func packWord(arg interface{}) ([]byte, error) {
	word := make([]byte, 32)
	switch v := arg.(type) {
	case Address:
		b, err := hexBytes(string(v))
		if err != nil {
			return nil, err
		}
		if len(b) != 20 {
			return nil, fmt.Errorf("address %q is not 20 bytes", v)
		}
		copy(word[12:], b)
	case *big.Int:
		if v == nil || v.Sign() < 0 {
			return nil, fmt.Errorf("uint256 must be non-negative, got %v", v)
		}
		if v.BitLen() > 256 {
			return nil, fmt.Errorf("uint256 overflow: %s", v)
		}
		v.FillBytes(word)
	case bool:
		if v {
			word[31] = 1
		}
	default:
		return nil, fmt.Errorf("unsupported argument type %T", arg)
	}
	return word, nil
}

// WordToUint256 decodes a 32-byte word at offset i of data as uint256.
func WordToUint256(data []byte, i int) (*big.Int, error) {
	start := i * 32
	if len(data) < start+32 {
		return nil, fmt.Errorf("data too short for word %d: %d bytes", i, len(data))
	}
	return new(big.Int).SetBytes(data[start : start+32]), nil
}

// WordToBool decodes a 32-byte word at offset i of data as bool.
func WordToBool(data []byte, i int) (bool, error) {
	v, err := WordToUint256(data, i)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// TopicToAddress extracts an indexed address parameter from a log topic.
func TopicToAddress(topic Hash) (Address, error) {
	b, err := hexBytes(string(topic))
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", fmt.Errorf("topic %q is not 32 bytes", topic)
	}
	return Address("0x" + hex.EncodeToString(b[12:])), nil
}

// DecodeHexData parses 0x-prefixed log/return data into raw bytes.
func DecodeHexData(s string) ([]byte, error) {
	return hexBytes(s)
}

// EncodeHexData renders raw calldata as a 0x-prefixed hex string.
func EncodeHexData(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex %q: %w", s, err)
	}
	return b, nil
}
