package fees

import (
	"fmt"
	"math/big"
)

// Error codes
const (
	ErrCodeInsufficientAmount       = "insufficient_amount_for_fee"
	ErrCodeUnsupportedQuotingMethod = "unsupported_quoting_method"
	ErrCodeInvalidPrice             = "invalid_token_price"
	ErrCodeArithmeticOverflow       = "fee_arithmetic_overflow"
)

// InsufficientAmountError means the fee consumes the whole input amount
type InsufficientAmountError struct {
	AmountIn *big.Int
	Fee      *big.Int
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("%s: amount in %s does not exceed fee %s", ErrCodeInsufficientAmount, e.AmountIn, e.Fee)
}

// UnsupportedQuotingMethodError is returned for a method with no registered quoter
type UnsupportedQuotingMethodError struct {
	Method string
}

func (e *UnsupportedQuotingMethodError) Error() string {
	return fmt.Sprintf("%s: %q", ErrCodeUnsupportedQuotingMethod, e.Method)
}

// FeeError reports a conversion that cannot be computed exactly
type FeeError struct {
	Code    string
	Message string
}

func (e *FeeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
