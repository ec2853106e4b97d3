package permit2

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/universalswapper/relayer/evm"
)

// Client redeems signed permits directly against the registry, with the
// relayer account as spender.
type Client struct {
	node     evm.NodeClient
	registry string
	logger   *slog.Logger
}

// NewClient creates a registry client. An empty registry selects PERMIT2Address.
func NewClient(node evm.NodeClient, registry string, logger *slog.Logger) *Client {
	if registry == "" {
		registry = PERMIT2Address
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{node: node, registry: evm.NormalizeAddress(registry), logger: logger}
}

// PermitTransferFrom redeems a single-token permit and waits for one receipt
func (c *Client) PermitTransferFrom(
	ctx context.Context,
	signed *SignedPermit,
	details SignatureTransferDetails,
) (*evm.TransactionReceipt, error) {
	if !strings.EqualFold(signed.Permit.Spender, c.node.Address()) {
		return nil, NewPermitError(ErrCodeInvalidPermit,
			"permit spender %s is not the relayer %s", signed.Permit.Spender, c.node.Address())
	}
	if err := ValidateTransferDetails([]TokenPermissions{signed.Permit.Permitted}, []SignatureTransferDetails{details}); err != nil {
		return nil, err
	}
	if err := CheckDeadline(signed.Permit.Deadline, time.Now()); err != nil {
		return nil, err
	}

	txHash, err := c.node.WriteContract(ctx, c.registry, PermitTransferFromABI, FunctionPermitTransferFrom,
		signed.Permit.ToArg(),
		details.ToArg(),
		common.HexToAddress(signed.Owner),
		signed.Signature,
	)
	if err != nil {
		return nil, NewPermitError(ParseError(err), "permitTransferFrom: %v", err)
	}
	return c.wait(ctx, txHash)
}

// BatchPermitTransferFrom redeems a batch permit and waits for one receipt
func (c *Client) BatchPermitTransferFrom(
	ctx context.Context,
	signed *SignedBatchPermit,
	details []SignatureTransferDetails,
) (*evm.TransactionReceipt, error) {
	if !strings.EqualFold(signed.Permit.Spender, c.node.Address()) {
		return nil, NewPermitError(ErrCodeInvalidPermit,
			"permit spender %s is not the relayer %s", signed.Permit.Spender, c.node.Address())
	}
	if err := ValidateTransferDetails(signed.Permit.Permitted, details); err != nil {
		return nil, err
	}
	if err := CheckDeadline(signed.Permit.Deadline, time.Now()); err != nil {
		return nil, err
	}

	txHash, err := c.node.WriteContract(ctx, c.registry, PermitBatchTransferFromABI, FunctionPermitTransferFrom,
		signed.Permit.ToArg(),
		TransferDetailsToArgs(details),
		common.HexToAddress(signed.Owner),
		signed.Signature,
	)
	if err != nil {
		return nil, NewPermitError(ParseError(err), "permitTransferFrom: %v", err)
	}
	return c.wait(ctx, txHash)
}

func (c *Client) wait(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	c.logger.Info("permit transfer submitted", "tx_hash", txHash)

	receipt, err := c.node.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, evm.NewNodeRPCError("eth_getTransactionReceipt", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return receipt, &evm.TransactionRevertedError{TxHash: txHash, Reason: receipt.RevertReason}
	}
	return receipt, nil
}

// ParseError maps registry revert messages onto stable error codes
func ParseError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "InvalidAmount"), strings.Contains(msg, "AmountExceedsPermitted"):
		return ErrCodeAmountExceedsPermit
	case strings.Contains(msg, "InvalidNonce"):
		return ErrCodeInvalidNonce
	case strings.Contains(msg, "SignatureExpired"):
		return ErrCodeSignatureExpired
	case strings.Contains(msg, "InvalidSigner"), strings.Contains(msg, "InvalidSignature"):
		return ErrCodeInvalidSigner
	case strings.Contains(msg, "LengthMismatch"):
		return ErrCodeTransferMismatch
	default:
		return ErrCodeTransferFailed
	}
}

// String renders a permit entry for logs
func (t TokenPermissions) String() string {
	return fmt.Sprintf("%s:%s", t.Token, t.Amount)
}
