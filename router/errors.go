package router

import (
	"fmt"
	"strings"

	"github.com/universalswapper/relayer/permit2"
)

// Error codes
const (
	ErrCodeInvalidPath        = "router_invalid_path"
	ErrCodeInvalidFeeBips     = "router_invalid_fee_bips"
	ErrCodeInvalidAddress     = "router_invalid_address"
	ErrCodeLengthMismatch     = "router_length_mismatch"
	ErrCodeInvalidAmount      = "router_invalid_amount"
	ErrCodeTooLittleReceived  = "router_too_little_received"
	ErrCodeDeadlinePassed     = "router_deadline_passed"
	ErrCodeInvalidSender      = "router_invalid_sender"
	ErrCodeInsufficientToken  = "router_insufficient_token"
	ErrCodeExecutionFailed    = "router_execution_failed"
	ErrCodeInvalidCommandType = "router_invalid_command_type"
)

// EncodeError reports input the encoder refuses to encode
type EncodeError struct {
	Code    string
	Message string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newEncodeError(code, format string, args ...interface{}) *EncodeError {
	return &EncodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseExecuteError maps a failed execute call onto a stable code. Registry
// reverts raised while pulling funds map to permit2 codes.
func ParseExecuteError(err error) string {
	if err == nil {
		return ""
	}
	return parseRevert(err.Error())
}

// ParseRevertReason is ParseExecuteError for a receipt revert reason
func ParseRevertReason(reason string) string {
	if reason == "" {
		return ErrCodeExecutionFailed
	}
	return parseRevert(reason)
}

func parseRevert(msg string) string {
	switch {
	case strings.Contains(msg, "V3TooLittleReceived"), strings.Contains(msg, "V2TooLittleReceived"):
		return ErrCodeTooLittleReceived
	case strings.Contains(msg, "TransactionDeadlinePassed"), strings.Contains(msg, "DeadlinePassed"):
		return ErrCodeDeadlinePassed
	case strings.Contains(msg, "InvalidSender"), strings.Contains(msg, "NotValidSender"), strings.Contains(msg, "Unauthorized"):
		return ErrCodeInvalidSender
	case strings.Contains(msg, "InsufficientToken"), strings.Contains(msg, "InsufficientETH"):
		return ErrCodeInsufficientToken
	case strings.Contains(msg, "InvalidCommandType"):
		return ErrCodeInvalidCommandType
	case strings.Contains(msg, "LengthMismatch"):
		return ErrCodeLengthMismatch
	}
	if code := permit2.ParseError(fmt.Errorf("%s", msg)); code != permit2.ErrCodeTransferFailed {
		return code
	}
	return ErrCodeExecutionFailed
}
