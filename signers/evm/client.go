// Package evm provides key-backed implementations of the relayer's chain
// interfaces: an owner signer for EIP-712 permits and an ethclient-backed
// node client that signs and sends the relayer's transactions.
package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	relayerevm "github.com/universalswapper/relayer/evm"
)

const (
	// DefaultPollInterval is how often receipts are polled
	DefaultPollInterval = time.Second
	// DefaultReceiptTimeout bounds WaitForTransactionReceipt when ctx has no deadline
	DefaultReceiptTimeout = 2 * time.Minute
)

// Backend is the subset of *ethclient.Client the node client uses
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// ParsePrivateKey parses a hex-encoded secp256k1 key with or without "0x"
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// ============================================================================
// Owner signer
// ============================================================================

// ClientSigner signs permits for a token owner. When created with a node it
// also implements relayerevm.Transactor, so the owner can approve Permit2.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	account    *NodeClient
}

// NewClientSignerFromPrivateKey creates a signing-only owner.
//
// Example:
//
//	owner, err := evm.NewClientSignerFromPrivateKey(os.Getenv("OWNER_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	signed, err := permitSigner.SignBatch(ctx, owner, permitted, router, nonce, 30*time.Minute)
func NewClientSignerFromPrivateKey(privateKeyHex string) (*ClientSigner, error) {
	privateKey, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewClientSignerWithNode creates an owner that sends its own transactions
// through node's backend. Gas is paid by the owner, not the relayer.
func NewClientSignerWithNode(privateKeyHex string, node *NodeClient) (*ClientSigner, error) {
	signer, err := NewClientSignerFromPrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if node != nil {
		signer.account = node.withKey(signer.privateKey)
	}
	return signer, nil
}

// Address returns the owner's checksummed address
func (s *ClientSigner) Address() string {
	return s.address.Hex()
}

// SignTypedData signs EIP-712 typed data, returning r||s||v with v in {27, 28}
func (s *ClientSigner) SignTypedData(
	ctx context.Context,
	domain relayerevm.TypedDataDomain,
	types map[string][]relayerevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := relayerevm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// WriteContract sends a contract call from the owner's account
func (s *ClientSigner) WriteContract(ctx context.Context, address string, abiBytes []byte, functionName string, args ...interface{}) (string, error) {
	if s.account == nil {
		return "", errors.New("WriteContract requires a node; use NewClientSignerWithNode")
	}
	return s.account.WriteContract(ctx, address, abiBytes, functionName, args...)
}

// WaitForTransactionReceipt waits for a transaction sent by the owner
func (s *ClientSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*relayerevm.TransactionReceipt, error) {
	if s.account == nil {
		return nil, errors.New("WaitForTransactionReceipt requires a node; use NewClientSignerWithNode")
	}
	return s.account.WaitForTransactionReceipt(ctx, txHash)
}

// ============================================================================
// Node client
// ============================================================================

// NodeClient implements relayerevm.NodeClient over an RPC backend. Every
// transaction it sends is signed by the relayer key and pays gas from it.
type NodeClient struct {
	backend      Backend
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// NodeOption configures a NodeClient
type NodeOption func(*NodeClient)

// WithPollInterval sets the receipt polling interval
func WithPollInterval(d time.Duration) NodeOption {
	return func(c *NodeClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithReceiptTimeout bounds receipt polling
func WithReceiptTimeout(d time.Duration) NodeOption {
	return func(c *NodeClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithChainID skips the eth_chainId lookup
func WithChainID(chainID *big.Int) NodeOption {
	return func(c *NodeClient) {
		if chainID != nil && chainID.Sign() > 0 {
			c.chainID = new(big.Int).Set(chainID)
		}
	}
}

// WithLogger sets the node client logger
func WithLogger(logger *slog.Logger) NodeOption {
	return func(c *NodeClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Dial connects to rpcURL and returns a node client for the relayer key
func Dial(ctx context.Context, rpcURL string, relayerKeyHex string, opts ...NodeOption) (*NodeClient, error) {
	privateKey, err := ParsePrivateKey(relayerKeyHex)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewNodeClient(client, privateKey, opts...), nil
}

// NewNodeClient wraps backend. The chain id is read lazily unless WithChainID is given.
func NewNodeClient(backend Backend, privateKey *ecdsa.PrivateKey, opts ...NodeOption) *NodeClient {
	c := &NodeClient{
		backend:      backend,
		privateKey:   privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		pollInterval: DefaultPollInterval,
		timeout:      DefaultReceiptTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NodeClient) withKey(privateKey *ecdsa.PrivateKey) *NodeClient {
	clone := *c
	clone.privateKey = privateKey
	clone.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	return &clone
}

// Address returns the relayer account
func (c *NodeClient) Address() string {
	return c.address.Hex()
}

// ChainID returns the chain id of the connected network
func (c *NodeClient) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// EstimateFee estimates gas for call and returns the suggested gas price
func (c *NodeClient) EstimateFee(ctx context.Context, call relayerevm.CallRequest) (*relayerevm.FeeEstimate, error) {
	msg := c.callMsg(call.From, call.To, call.Data)
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, withRevertData(fmt.Errorf("failed to estimate gas: %w", err), err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return &relayerevm.FeeEstimate{GasUnits: gas, GasPrice: gasPrice}, nil
}

// ReadContract calls a view function and returns its single output, or all
// outputs as a slice when there are several
func (c *NodeClient) ReadContract(ctx context.Context, contractAddress string, abiBytes []byte, functionName string, args ...interface{}) (interface{}, error) {
	contractABI, err := abi.JSON(bytes.NewReader(abiBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, withRevertData(fmt.Errorf("contract call failed: %w", err), err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty result from %s at %s", functionName, contractAddress)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}

// WriteContract packs and sends a contract call from the relayer account
func (c *NodeClient) WriteContract(ctx context.Context, contractAddress string, abiBytes []byte, functionName string, args ...interface{}) (string, error) {
	contractABI, err := abi.JSON(bytes.NewReader(abiBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}
	return c.SendTransaction(ctx, contractAddress, data)
}

// SendTransaction signs and broadcasts a legacy transaction carrying data
func (c *NodeClient) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	fee, err := c.EstimateFee(ctx, relayerevm.CallRequest{To: to, Data: data})
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       ptr(common.HexToAddress(to)),
		Value:    big.NewInt(0),
		Gas:      fee.GasUnits,
		GasPrice: fee.GasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Debug("transaction sent",
		"tx_hash", signedTx.Hash().Hex(),
		"from", c.address.Hex(),
		"to", to,
		"nonce", nonce,
		"gas", fee.GasUnits)
	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined. A failed
// receipt carries the revert reason when replaying the call yields one.
func (c *NodeClient) WaitForTransactionReceipt(ctx context.Context, txHash string) (*relayerevm.TransactionReceipt, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return c.convertReceipt(ctx, receipt), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt poll failed", "tx_hash", txHash, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance returns the native balance when tokenAddress is empty or the
// zero address, otherwise the ERC-20 balance
func (c *NodeClient) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if tokenAddress == "" || strings.EqualFold(tokenAddress, relayerevm.ZeroAddress) {
		balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	result, err := c.ReadContract(ctx, tokenAddress, relayerevm.ERC20BalanceOfABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return relayerevm.ToBigInt(result)
}

func (c *NodeClient) callMsg(from, to string, data []byte) ethereum.CallMsg {
	sender := c.address
	if from != "" {
		sender = common.HexToAddress(from)
	}
	target := common.HexToAddress(to)
	return ethereum.CallMsg{From: sender, To: &target, Data: data}
}

func (c *NodeClient) convertReceipt(ctx context.Context, receipt *types.Receipt) *relayerevm.TransactionReceipt {
	out := &relayerevm.TransactionReceipt{
		Status:            receipt.Status,
		TxHash:            receipt.TxHash.Hex(),
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if out.EffectiveGasPrice == nil {
		out.EffectiveGasPrice = big.NewInt(0)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.RevertReason = c.revertReason(ctx, receipt)
	}
	return out
}

// revertReason replays the failed transaction at its block
func (c *NodeClient) revertReason(ctx context.Context, receipt *types.Receipt) string {
	tx, _, err := c.backend.TransactionByHash(ctx, receipt.TxHash)
	if err != nil || tx == nil || tx.To() == nil {
		return ""
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	msg := ethereum.CallMsg{From: from, To: tx.To(), Gas: tx.Gas(), GasPrice: tx.GasPrice(), Value: tx.Value(), Data: tx.Data()}
	_, err = c.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	if reason := decodeRevertData(err); reason != "" {
		return reason
	}
	return err.Error()
}

// dataError is implemented by RPC errors that carry revert data
type dataError interface {
	ErrorData() interface{}
}

func decodeRevertData(err error) string {
	var de dataError
	if !errors.As(err, &de) {
		return ""
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return ""
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return reason
	}
	if len(data) >= 4 {
		return fmt.Sprintf("custom error %s", hexutil.Encode(data[:4]))
	}
	return ""
}

// withRevertData appends a decoded revert reason to wrapped when cause has one
func withRevertData(wrapped, cause error) error {
	if reason := decodeRevertData(cause); reason != "" {
		return fmt.Errorf("%w: execution reverted: %s", wrapped, reason)
	}
	return wrapped
}

func ptr[T any](v T) *T {
	return &v
}

var (
	_ relayerevm.NodeClient   = (*NodeClient)(nil)
	_ relayerevm.ClientSigner = (*ClientSigner)(nil)
	_ relayerevm.Transactor   = (*ClientSigner)(nil)
)
