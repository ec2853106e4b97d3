package permit2

import (
	"time"

	"github.com/universalswapper/relayer/evm"
)

const (
	// PERMIT2Address is the canonical Uniswap Permit2 contract address.
	// Same address on all EVM chains via CREATE2 deployment.
	PERMIT2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	// DomainName is the EIP-712 domain name used by the registry
	DomainName = "Permit2"

	// DefaultDeadlineOffset is how long a signed permit stays redeemable
	DefaultDeadlineOffset = 30 * time.Minute

	// DefaultMaxNonceAttempts bounds the nonce search
	DefaultMaxNonceAttempts = 50

	// WordBits is the number of nonces tracked by one bitmap word
	WordBits = 256

	FunctionNonceBitmap        = "nonceBitmap"
	FunctionPermitTransferFrom = "permitTransferFrom"

	PrimaryTypePermit      = "PermitTransferFrom"
	PrimaryTypeBatchPermit = "PermitBatchTransferFrom"
)

// Error codes
const (
	ErrCodeNonceExhausted      = "permit2_nonce_exhausted"
	ErrCodeInvalidPermit       = "permit2_invalid_permit"
	ErrCodeTransferMismatch    = "permit2_transfer_details_mismatch"
	ErrCodeAmountExceedsPermit = "permit2_amount_exceeds_permitted"
	ErrCodeInvalidNonce        = "permit2_invalid_nonce"
	ErrCodeSignatureExpired    = "permit2_signature_expired"
	ErrCodeInvalidSigner       = "permit2_invalid_signer"
	ErrCodeTransferFailed      = "permit2_transfer_failed"
)

var (
	// NonceBitmapABI reads the used-nonce bitmap for (owner, wordPos)
	NonceBitmapABI = []byte(`[
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "wordPos", "type": "uint256"}
			],
			"name": "nonceBitmap",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// PermitTransferFromABI redeems a single-token permit
	PermitTransferFromABI = []byte(`[
		{
			"type": "function",
			"name": "permitTransferFrom",
			"inputs": [
				{
					"name": "permit",
					"type": "tuple",
					"components": [
						{
							"name": "permitted",
							"type": "tuple",
							"components": [
								{"name": "token", "type": "address"},
								{"name": "amount", "type": "uint256"}
							]
						},
						{"name": "nonce", "type": "uint256"},
						{"name": "deadline", "type": "uint256"}
					]
				},
				{
					"name": "transferDetails",
					"type": "tuple",
					"components": [
						{"name": "to", "type": "address"},
						{"name": "requestedAmount", "type": "uint256"}
					]
				},
				{"name": "owner", "type": "address"},
				{"name": "signature", "type": "bytes"}
			],
			"outputs": [],
			"stateMutability": "nonpayable"
		}
	]`)

	// PermitBatchTransferFromABI redeems a batch permit
	PermitBatchTransferFromABI = []byte(`[
		{
			"type": "function",
			"name": "permitTransferFrom",
			"inputs": [
				{
					"name": "permit",
					"type": "tuple",
					"components": [
						{
							"name": "permitted",
							"type": "tuple[]",
							"components": [
								{"name": "token", "type": "address"},
								{"name": "amount", "type": "uint256"}
							]
						},
						{"name": "nonce", "type": "uint256"},
						{"name": "deadline", "type": "uint256"}
					]
				},
				{
					"name": "transferDetails",
					"type": "tuple[]",
					"components": [
						{"name": "to", "type": "address"},
						{"name": "requestedAmount", "type": "uint256"}
					]
				},
				{"name": "owner", "type": "address"},
				{"name": "signature", "type": "bytes"}
			],
			"outputs": [],
			"stateMutability": "nonpayable"
		}
	]`)

	// EIP712DomainTypes is the registry domain: name + chainId + verifyingContract (no version field).
	EIP712DomainTypes = []evm.TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// TokenPermissionsTypes is shared by the single and batch permits
	TokenPermissionsTypes = []evm.TypedDataField{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	}

	// Field order must match the on-chain registry.
	PermitTransferFromTypes = []evm.TypedDataField{
		{Name: "permitted", Type: "TokenPermissions"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}

	PermitBatchTransferFromTypes = []evm.TypedDataField{
		{Name: "permitted", Type: "TokenPermissions[]"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}
)

// GetPermitEIP712Types returns the complete types map for a single-token permit
func GetPermitEIP712Types() map[string][]evm.TypedDataField {
	return map[string][]evm.TypedDataField{
		"EIP712Domain":     EIP712DomainTypes,
		PrimaryTypePermit:  PermitTransferFromTypes,
		"TokenPermissions": TokenPermissionsTypes,
	}
}

// GetBatchPermitEIP712Types returns the complete types map for a batch permit
func GetBatchPermitEIP712Types() map[string][]evm.TypedDataField {
	return map[string][]evm.TypedDataField{
		"EIP712Domain":         EIP712DomainTypes,
		PrimaryTypeBatchPermit: PermitBatchTransferFromTypes,
		"TokenPermissions":     TokenPermissionsTypes,
	}
}
