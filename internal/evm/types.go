package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the decimal precision of both the native currency and the
// VIN token (standard 18).
const TokenDecimals = 18

// Address is a 0x-prefixed, lowercase EVM address.
type Address string

// Hash is a 0x-prefixed transaction or topic hash.
type Hash string

// NormalizeAddress lowercases an address so comparisons are case-insensitive.
// Wallet providers return checksummed (mixed-case) addresses.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// Equal compares two addresses ignoring checksum casing.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// IsValidAddress reports whether s looks like a 20-byte hex address.
func IsValidAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !isHexDigit(byte(c)) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// EncodeQuantity encodes a big integer as a JSON-RPC hex quantity ("0x0",
// "0x1b4" — no leading zeros).
func EncodeQuantity(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// EncodeUint64 encodes a uint64 as a JSON-RPC hex quantity.
func EncodeUint64(v uint64) string {
	return "0x" + new(big.Int).SetUint64(v).Text(16)
}

// DecodeQuantity parses a JSON-RPC hex quantity into a big integer.
func DecodeQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("quantity %q missing 0x prefix", s)
	}
	digits := s[2:]
	if digits == "" {
		return nil, fmt.Errorf("quantity %q has no digits", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}

// DecodeUint64 parses a JSON-RPC hex quantity into a uint64.
func DecodeUint64(s string) (uint64, error) {
	v, err := DecodeQuantity(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

// ParseVIN converts a decimal token amount ("10", "0.1") to wei (18 decimals).
func ParseVIN(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}
	return d.Shift(TokenDecimals).BigInt(), nil
}

// FormatVIN converts wei to a decimal token string. Whole numbers keep a
// trailing ".0" ("20.0"), matching how balances are displayed everywhere else.
func FormatVIN(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	s := decimal.NewFromBigInt(wei, -TokenDecimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Gwei returns n gwei as wei.
func Gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}
