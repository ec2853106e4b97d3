package evm

import (
	"fmt"
	"strings"
)

// NodeRPCError wraps any failure returned by the node or a contract call.
// It is never retried by the relayer.
type NodeRPCError struct {
	Method string
	Err    error
}

// NewNodeRPCError wraps err, returning nil when err is nil
func NewNodeRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	return &NodeRPCError{Method: method, Err: err}
}

func (e *NodeRPCError) Error() string {
	return fmt.Sprintf("node rpc %s failed: %v", e.Method, e.Err)
}

func (e *NodeRPCError) Unwrap() error {
	return e.Err
}

// TransactionRevertedError reports a mined transaction whose receipt status
// indicates failure.
type TransactionRevertedError struct {
	TxHash string
	Reason string
}

func (e *TransactionRevertedError) Error() string {
	if strings.TrimSpace(e.Reason) == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash)
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash, e.Reason)
}
