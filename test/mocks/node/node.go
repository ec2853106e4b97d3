// Package node provides an in-memory evm.NodeClient and owner signer for tests.
package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/universalswapper/relayer/evm"
)

// ============================================================================
// Recorded calls
// ============================================================================

// SentTx is a raw transaction passed to SendTransaction
type SentTx struct {
	Hash string
	To   string
	Data []byte
}

// Write is a contract write passed to WriteContract
type Write struct {
	Hash     string
	From     string
	Address  string
	Function string
	Args     []interface{}
}

// TokenInfo is the metadata served for decimals/symbol/name reads
type TokenInfo struct {
	Decimals uint8
	Symbol   string
	Name     string
}

// ============================================================================
// Client
// ============================================================================

// Client is a fake node. Zero values are usable; configure fields before use.
type Client struct {
	mu sync.Mutex

	address string
	chainID *big.Int
	txCount int

	GasUnits    uint64
	GasPrice    *big.Int
	EstimateErr error
	ReadErr     error
	SendErr     error
	ChainIDErr  error

	// ReceiptStatus is applied to every mined transaction unless FailFunctions matches
	ReceiptStatus     uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	RevertReason      string
	FailFunctions     map[string]bool

	allowances map[string]*big.Int
	balances   map[string]*big.Int
	bitmaps    map[string]*big.Int
	tokens     map[string]TokenInfo
	receipts   map[string]*evm.TransactionReceipt

	ValidSender common.Address

	Sent          []SentTx
	Writes        []Write
	Estimates     []evm.CallRequest
	ChainIDCalls  int
	ReadCalls     map[string]int
	BitmapQueries int
}

// NewClient creates a fake node whose relayer account is address
func NewClient(address string, chainID int64) *Client {
	return &Client{
		address:           evm.NormalizeAddress(address),
		chainID:           big.NewInt(chainID),
		GasUnits:          200000,
		GasPrice:          big.NewInt(1_000_000_000),
		ReceiptStatus:     evm.TxStatusSuccess,
		GasUsed:           180000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		FailFunctions:     make(map[string]bool),
		allowances:        make(map[string]*big.Int),
		balances:          make(map[string]*big.Int),
		bitmaps:           make(map[string]*big.Int),
		tokens:            make(map[string]TokenInfo),
		receipts:          make(map[string]*evm.TransactionReceipt),
		ReadCalls:         make(map[string]int),
	}
}

func key(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, "|")
}

// SetAllowance sets token.allowance(owner, spender)
func (c *Client) SetAllowance(token, owner, spender string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[key(token, owner, spender)] = new(big.Int).Set(amount)
}

// Allowance returns token.allowance(owner, spender)
func (c *Client) Allowance(token, owner, spender string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.allowances[key(token, owner, spender)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// SetBalance sets the balance of account for token; an empty token is native
func (c *Client) SetBalance(account, token string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[key(account, nativeKey(token))] = new(big.Int).Set(amount)
}

// SetToken registers ERC-20 metadata
func (c *Client) SetToken(address string, info TokenInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key(address)] = info
}

// MarkNonceUsed flips the bitmap bit for nonce
func (c *Client) MarkNonceUsed(owner string, nonce *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wordPos := new(big.Int).Rsh(nonce, 8)
	bitPos := int(new(big.Int).And(nonce, big.NewInt(0xff)).Int64())
	k := key(owner, wordPos.String())
	bitmap, ok := c.bitmaps[k]
	if !ok {
		bitmap = new(big.Int)
	}
	c.bitmaps[k] = new(big.Int).SetBit(bitmap, bitPos, 1)
}

// SetBitmap replaces a whole bitmap word
func (c *Client) SetBitmap(owner string, wordPos *big.Int, bitmap *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bitmaps[key(owner, wordPos.String())] = new(big.Int).Set(bitmap)
}

// WritesTo returns recorded writes for a function name
func (c *Client) WritesTo(function string) []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Write
	for _, w := range c.Writes {
		if w.Function == function {
			out = append(out, w)
		}
	}
	return out
}

// Address returns the relayer account
func (c *Client) Address() string {
	return c.address
}

// ChainID returns the configured chain id
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChainIDCalls++
	if c.ChainIDErr != nil {
		return nil, c.ChainIDErr
	}
	return new(big.Int).Set(c.chainID), nil
}

// EstimateFee records the call and returns the configured gas units and price
func (c *Client) EstimateFee(ctx context.Context, call evm.CallRequest) (*evm.FeeEstimate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Estimates = append(c.Estimates, call)
	if c.EstimateErr != nil {
		return nil, c.EstimateErr
	}
	return &evm.FeeEstimate{GasUnits: c.GasUnits, GasPrice: new(big.Int).Set(c.GasPrice)}, nil
}

// ReadContract serves the view functions the relayer uses
func (c *Client) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCalls[functionName]++
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}

	switch functionName {
	case "nonceBitmap":
		c.BitmapQueries++
		owner, wordPos, err := addressAndInt(args)
		if err != nil {
			return nil, err
		}
		if bitmap, ok := c.bitmaps[key(owner, wordPos.String())]; ok {
			return new(big.Int).Set(bitmap), nil
		}
		return big.NewInt(0), nil
	case "allowance":
		if len(args) != 2 {
			return nil, fmt.Errorf("allowance: want 2 args, got %d", len(args))
		}
		owner, _ := args[0].(common.Address)
		spender, _ := args[1].(common.Address)
		if v, ok := c.allowances[key(address, owner.Hex(), spender.Hex())]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil
	case "balanceOf":
		account, _ := args[0].(common.Address)
		return c.balanceLocked(account.Hex(), address), nil
	case "decimals", "symbol", "name":
		info, ok := c.tokens[key(address)]
		if !ok {
			return nil, fmt.Errorf("execution reverted: no token at %s", address)
		}
		switch functionName {
		case "decimals":
			return info.Decimals, nil
		case "symbol":
			return info.Symbol, nil
		default:
			return info.Name, nil
		}
	case "getValidSender":
		return c.ValidSender, nil
	}
	return nil, fmt.Errorf("unsupported read %s", functionName)
}

// WriteContract records a write from the relayer account
func (c *Client) WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error) {
	return c.write(c.address, address, functionName, args)
}

// SendTransaction records raw calldata sent by the relayer account
func (c *Client) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	hash := c.mineLocked("execute")
	c.Sent = append(c.Sent, SentTx{Hash: hash, To: to, Data: append([]byte(nil), data...)})
	return hash, nil
}

// WaitForTransactionReceipt returns the receipt recorded at send time
func (c *Client) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txHash)
	}
	r := *receipt
	return &r, nil
}

// GetBalance returns the configured balance
func (c *Client) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(address, tokenAddress), nil
}

func (c *Client) write(from, address, functionName string, args []interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}

	hash := c.mineLocked(functionName)
	c.Writes = append(c.Writes, Write{Hash: hash, From: from, Address: address, Function: functionName, Args: args})

	if c.receipts[hash].Status != evm.TxStatusSuccess {
		return hash, nil
	}
	switch functionName {
	case "approve":
		if len(args) == 2 {
			spender, _ := args[0].(common.Address)
			amount, _ := args[1].(*big.Int)
			if amount != nil {
				c.allowances[key(address, from, spender.Hex())] = new(big.Int).Set(amount)
			}
		}
	case "setValidSender":
		if len(args) == 1 {
			c.ValidSender, _ = args[0].(common.Address)
		}
	}
	return hash, nil
}

func (c *Client) mineLocked(functionName string) string {
	c.txCount++
	hash := fmt.Sprintf("0x%064x", c.txCount)
	status := c.ReceiptStatus
	reason := ""
	if c.FailFunctions[functionName] {
		status = evm.TxStatusFailed
	}
	if status != evm.TxStatusSuccess {
		reason = c.RevertReason
	}
	c.receipts[hash] = &evm.TransactionReceipt{
		Status:            status,
		BlockNumber:       uint64(c.txCount),
		TxHash:            hash,
		GasUsed:           c.GasUsed,
		EffectiveGasPrice: new(big.Int).Set(c.EffectiveGasPrice),
		RevertReason:      reason,
	}
	return hash
}

func (c *Client) balanceLocked(account, token string) *big.Int {
	if v, ok := c.balances[key(account, nativeKey(token))]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func nativeKey(token string) string {
	if token == "" || strings.EqualFold(token, evm.ZeroAddress) {
		return "native"
	}
	return token
}

func addressAndInt(args []interface{}) (string, *big.Int, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("want 2 args, got %d", len(args))
	}
	addr, ok := args[0].(common.Address)
	if !ok {
		return "", nil, fmt.Errorf("arg 0: want common.Address, got %T", args[0])
	}
	n, ok := args[1].(*big.Int)
	if !ok {
		return "", nil, fmt.Errorf("arg 1: want *big.Int, got %T", args[1])
	}
	return addr.Hex(), n, nil
}

// ============================================================================
// Owner
// ============================================================================

// Owner is a token owner with a real secp256k1 key. Approvals go through the
// shared Client so allowance reads observe them.
type Owner struct {
	key  *ecdsa.PrivateKey
	node *Client

	mu        sync.Mutex
	SignCalls int
	SignErr   error
}

// NewOwner creates an owner with a fresh key
func NewOwner(node *Client) (*Owner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Owner{key: key, node: node}, nil
}

// Address returns the owner's checksummed address
func (o *Owner) Address() string {
	return crypto.PubkeyToAddress(o.key.PublicKey).Hex()
}

// SignTypedData signs the EIP-712 digest with v in {27, 28}
func (o *Owner) SignTypedData(ctx context.Context, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error) {
	o.mu.Lock()
	o.SignCalls++
	signErr := o.SignErr
	o.mu.Unlock()
	if signErr != nil {
		return nil, signErr
	}

	digest, err := evm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, o.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Calls returns how many times SignTypedData was invoked
func (o *Owner) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.SignCalls
}

// WriteContract sends a write from the owner account
func (o *Owner) WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error) {
	if o.node == nil {
		return "", errors.New("owner has no node")
	}
	return o.node.write(o.Address(), address, functionName, args)
}

// WaitForTransactionReceipt delegates to the shared node
func (o *Owner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	if o.node == nil {
		return nil, errors.New("owner has no node")
	}
	return o.node.WaitForTransactionReceipt(ctx, txHash)
}
