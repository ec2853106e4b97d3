package permit2

import "fmt"

// NonceExhaustionError means no free nonce was found within the attempt limit.
// It is fatal for the current swap attempt.
type NonceExhaustionError struct {
	Owner    string
	Attempts int
}

func (e *NonceExhaustionError) Error() string {
	return fmt.Sprintf("%s: no free nonce for %s after %d attempts", ErrCodeNonceExhausted, e.Owner, e.Attempts)
}

// PermitError reports a permit or transfer-detail list that cannot be signed or redeemed
type PermitError struct {
	Code    string
	Message string
}

func (e *PermitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPermitError creates a new permit error
func NewPermitError(code, format string, args ...interface{}) *PermitError {
	return &PermitError{Code: code, Message: fmt.Sprintf(format, args...)}
}
