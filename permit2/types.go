// Package permit2 allocates nonces, signs and verifies SignatureTransfer
// permits, and redeems them against the Permit2 registry.
package permit2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPermissions is a (token, amount) pair the owner allows the spender to pull
type TokenPermissions struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// PermitTransferFrom is a single-token SignatureTransfer permit
type PermitTransferFrom struct {
	Permitted TokenPermissions `json:"permitted"`
	Spender   string           `json:"spender"`
	Nonce     *big.Int         `json:"nonce"`
	Deadline  *big.Int         `json:"deadline"`
}

// PermitBatchTransferFrom is a multi-entry SignatureTransfer permit.
// The order of Permitted is significant: transfer details align with it by index.
type PermitBatchTransferFrom struct {
	Permitted []TokenPermissions `json:"permitted"`
	Spender   string             `json:"spender"`
	Nonce     *big.Int           `json:"nonce"`
	Deadline  *big.Int           `json:"deadline"`
}

// SignatureTransferDetails names the recipient and amount for one permitted entry
type SignatureTransferDetails struct {
	To              string   `json:"to"`
	RequestedAmount *big.Int `json:"requestedAmount"`
}

// SignedPermit is a single-token permit together with its owner signature
type SignedPermit struct {
	Owner     string             `json:"owner"`
	Permit    PermitTransferFrom `json:"permit"`
	Signature []byte             `json:"signature"`
}

// SignedBatchPermit is a batch permit together with its owner signature
type SignedBatchPermit struct {
	Owner     string                  `json:"owner"`
	Permit    PermitBatchTransferFrom `json:"permit"`
	Signature []byte                  `json:"signature"`
}

// NonceStatus is the result of checking one nonce against the registry bitmap
type NonceStatus struct {
	Free    bool
	WordPos *big.Int
	BitPos  uint
	Bitmap  *big.Int
}

// TokenPermissionsArg is the ABI tuple form of TokenPermissions
type TokenPermissionsArg struct {
	Token  common.Address
	Amount *big.Int
}

// PermitArg is the on-chain ISignatureTransfer.PermitTransferFrom tuple.
// The spender is implied by msg.sender and is not part of the struct.
type PermitArg struct {
	Permitted TokenPermissionsArg
	Nonce     *big.Int
	Deadline  *big.Int
}

// BatchPermitArg is the on-chain ISignatureTransfer.PermitBatchTransferFrom tuple
type BatchPermitArg struct {
	Permitted []TokenPermissionsArg
	Nonce     *big.Int
	Deadline  *big.Int
}

// TransferDetailsArg is the on-chain SignatureTransferDetails tuple
type TransferDetailsArg struct {
	To              common.Address
	RequestedAmount *big.Int
}

func (t TokenPermissions) toArg() TokenPermissionsArg {
	return TokenPermissionsArg{Token: common.HexToAddress(t.Token), Amount: t.Amount}
}

// ToArg converts the permit into its ABI tuple form
func (p PermitTransferFrom) ToArg() PermitArg {
	return PermitArg{
		Permitted: p.Permitted.toArg(),
		Nonce:     p.Nonce,
		Deadline:  p.Deadline,
	}
}

// ToArg converts the permit into its ABI tuple form
func (p PermitBatchTransferFrom) ToArg() BatchPermitArg {
	permitted := make([]TokenPermissionsArg, len(p.Permitted))
	for i, entry := range p.Permitted {
		permitted[i] = entry.toArg()
	}
	return BatchPermitArg{
		Permitted: permitted,
		Nonce:     p.Nonce,
		Deadline:  p.Deadline,
	}
}

// ToArg converts the detail into its ABI tuple form
func (d SignatureTransferDetails) ToArg() TransferDetailsArg {
	return TransferDetailsArg{To: common.HexToAddress(d.To), RequestedAmount: d.RequestedAmount}
}

// TransferDetailsToArgs converts a detail list into ABI tuples, preserving order
func TransferDetailsToArgs(details []SignatureTransferDetails) []TransferDetailsArg {
	args := make([]TransferDetailsArg, len(details))
	for i, d := range details {
		args[i] = d.ToArg()
	}
	return args
}
