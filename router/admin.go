package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/universalswapper/relayer/evm"
)

// Admin manages the UniversalSwapper's single authorized relayer
type Admin struct {
	node    evm.NodeClient
	swapper string
	logger  *slog.Logger
}

// NewAdmin creates an admin client for the swapper at address swapper
func NewAdmin(node evm.NodeClient, swapper string, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{node: node, swapper: evm.NormalizeAddress(swapper), logger: logger}
}

// GetValidSender returns the account currently allowed to call execute
func (a *Admin) GetValidSender(ctx context.Context) (string, error) {
	result, err := a.node.ReadContract(ctx, a.swapper, UniversalSwapperAdminABI, FunctionGetValidSender)
	if err != nil {
		return "", evm.NewNodeRPCError(FunctionGetValidSender, err)
	}
	sender, ok := result.(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected %s result type %T", FunctionGetValidSender, result)
	}
	return sender.Hex(), nil
}

// SetValidSender authorizes sender and waits for the transaction to be mined
func (a *Admin) SetValidSender(ctx context.Context, sender string) (*evm.TransactionReceipt, error) {
	if !evm.IsValidAddress(sender) {
		return nil, newEncodeError(ErrCodeInvalidAddress, "invalid sender %q", sender)
	}

	txHash, err := a.node.WriteContract(ctx, a.swapper, UniversalSwapperAdminABI, FunctionSetValidSender,
		common.HexToAddress(sender))
	if err != nil {
		return nil, evm.NewNodeRPCError(FunctionSetValidSender, err)
	}
	a.logger.Info("setValidSender submitted", "tx_hash", txHash, "sender", sender)

	receipt, err := a.node.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, evm.NewNodeRPCError("eth_getTransactionReceipt", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return receipt, &evm.TransactionRevertedError{TxHash: txHash, Reason: receipt.RevertReason}
	}
	return receipt, nil
}
