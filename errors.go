package relayer

import (
	"errors"
	"fmt"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/router"
)

// Phase names the step of a swap attempt that failed
type Phase string

const (
	PhaseValidation    Phase = "validation"
	PhaseAllowance     Phase = "allowance"
	PhaseAllocation    Phase = "allocation"
	PhaseSigning       Phase = "signing"
	PhaseFeeResolution Phase = "fee_resolution"
	PhaseSubmission    Phase = "submission"
	PhaseConfirmation  Phase = "confirmation"
)

// Error codes reported to API clients
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeSwapAborted        = "swap_aborted"
	ErrCodeApprovalRequired   = "approval_required"
	ErrCodeNonceExhausted     = permit2.ErrCodeNonceExhausted
	ErrCodeInsufficientAmount = fees.ErrCodeInsufficientAmount
	ErrCodeUnsupportedQuoting = fees.ErrCodeUnsupportedQuotingMethod
	ErrCodeNodeRPC            = "node_rpc_error"
	ErrCodeTransactionFailed  = "transaction_reverted"
	ErrCodeInternal           = "internal_error"
)

// SwapError reports which phase of an attempt failed. The attempt is over;
// retrying means starting a new one with a fresh nonce.
type SwapError struct {
	ID    string
	Phase Phase
	Err   error
}

func (e *SwapError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("swap failed during %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("swap %s failed during %s: %v", e.ID, e.Phase, e.Err)
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

// Code classifies the underlying cause
func (e *SwapError) Code() string {
	return ErrorCode(e.Err)
}

// RequestError rejects a malformed swap request before anything is sent
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCodeInvalidRequest, e.Field, e.Message)
}

// AbortedError is returned when a before-swap hook vetoes the attempt
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeSwapAborted, e.Reason)
}

// ErrApprovalRequired means allowance is short and the owner cannot send approve itself
var ErrApprovalRequired = errors.New(ErrCodeApprovalRequired + ": owner must approve Permit2")

// ErrorCode maps an error to a stable code
func ErrorCode(err error) string {
	var (
		reqErr      *RequestError
		abortErr    *AbortedError
		nonceErr    *permit2.NonceExhaustionError
		permitErr   *permit2.PermitError
		amountErr   *fees.InsufficientAmountError
		quotingErr  *fees.UnsupportedQuotingMethodError
		feeErr      *fees.FeeError
		encodeErr   *router.EncodeError
		revertedErr *evm.TransactionRevertedError
		rpcErr      *evm.NodeRPCError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &reqErr):
		return ErrCodeInvalidRequest
	case errors.As(err, &abortErr):
		return ErrCodeSwapAborted
	case errors.Is(err, ErrApprovalRequired):
		return ErrCodeApprovalRequired
	case errors.As(err, &nonceErr):
		return ErrCodeNonceExhausted
	case errors.As(err, &amountErr):
		return ErrCodeInsufficientAmount
	case errors.As(err, &quotingErr):
		return ErrCodeUnsupportedQuoting
	case errors.As(err, &permitErr):
		return permitErr.Code
	case errors.As(err, &feeErr):
		return feeErr.Code
	case errors.As(err, &encodeErr):
		return encodeErr.Code
	case errors.As(err, &revertedErr):
		if revertedErr.Reason != "" {
			return router.ParseRevertReason(revertedErr.Reason)
		}
		return ErrCodeTransactionFailed
	case errors.As(err, &rpcErr):
		return ErrCodeNodeRPC
	default:
		return ErrCodeInternal
	}
}
