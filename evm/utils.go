package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IsValidAddress reports whether s is a 20-byte hex address
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress returns the EIP-55 checksummed form of an address
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// HexToBytes decodes a hex string with or without the 0x prefix
func HexToBytes(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// BytesToHex encodes bytes as a 0x-prefixed hex string
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// MaxUint256 returns 2^256 - 1
func MaxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// ToBigInt coerces a ReadContract result into a *big.Int
func ToBigInt(v interface{}) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, fmt.Errorf("nil integer result")
		}
		return new(big.Int).Set(val), nil
	case big.Int:
		return new(big.Int).Set(&val), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case int64:
		return big.NewInt(val), nil
	case int:
		return big.NewInt(int64(val)), nil
	case string:
		n, ok := new(big.Int).SetString(val, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer: %s", val)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unexpected integer type: %T", v)
	}
}

// ParseAmount converts a decimal string such as "1.5" into the token's
// smallest unit. Digits beyond decimals are truncated.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals: %d", decimals)
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	return result, nil
}

// FormatAmount renders a smallest-unit amount as a decimal string with
// trailing zeros removed
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	neg := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
