// Package evm holds the chain vocabulary shared by the permit, fee and router
// packages: node and signer interfaces, EIP-712 hashing and ERC-20 helpers.
package evm

import (
	"context"
	"math/big"
)

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version,omitempty"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CallRequest is an unsigned call against a contract. From is optional; node
// clients fill in their own account when it is empty.
type CallRequest struct {
	From string
	To   string
	Data []byte
}

// FeeEstimate is the node's view of what a transaction will cost.
type FeeEstimate struct {
	GasUnits uint64
	GasPrice *big.Int
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status            uint64   `json:"status"`
	BlockNumber       uint64   `json:"blockNumber"`
	TxHash            string   `json:"transactionHash"`
	GasUsed           uint64   `json:"gasUsed"`
	EffectiveGasPrice *big.Int `json:"effectiveGasPrice"`
	RevertReason      string   `json:"revertReason,omitempty"`
}

// Token describes an ERC-20 token as the price oracle and reports need it.
type Token struct {
	Address  string `json:"address" yaml:"address"`
	Decimals int    `json:"decimals" yaml:"decimals"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
}

// ClientSigner signs EIP-712 payloads on behalf of a token owner.
type ClientSigner interface {
	// Address returns the signer's Ethereum address
	Address() string

	// SignTypedData signs EIP-712 typed data and returns a 65-byte r||s||v signature
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// Transactor sends contract writes from its own account.
type Transactor interface {
	// WriteContract packs and sends a contract call, returning the tx hash
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// WaitForTransactionReceipt waits for a transaction to be mined
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
}

// NodeClient is everything the relayer needs from an RPC node. Writes are
// signed by the relayer account returned from Address.
type NodeClient interface {
	Transactor

	// Address returns the account that pays gas for SendTransaction/WriteContract
	Address() string

	// ChainID returns the chain ID of the connected network
	ChainID(ctx context.Context) (*big.Int, error)

	// EstimateFee estimates gas units for the call and returns the current gas price
	EstimateFee(ctx context.Context, call CallRequest) (*FeeEstimate, error)

	// ReadContract reads data from a smart contract
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// SendTransaction sends a transaction with pre-encoded calldata
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	// GetBalance gets the balance of an address for a token; an empty token
	// address means the native currency
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
}
