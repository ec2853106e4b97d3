package permit2

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/universalswapper/relayer/evm"
)

// Domain builds the registry EIP-712 domain. Permit2 uses a fixed name and no version.
func Domain(chainID *big.Int, registry string) evm.TypedDataDomain {
	return evm.TypedDataDomain{
		Name:              DomainName,
		ChainID:           chainID,
		VerifyingContract: evm.NormalizeAddress(registry),
	}
}

func tokenPermissionsMessage(t TokenPermissions) map[string]interface{} {
	return map[string]interface{}{
		"token":  evm.NormalizeAddress(t.Token),
		"amount": new(big.Int).Set(t.Amount),
	}
}

// PermitMessage returns the typed-data message for a single-token permit
func PermitMessage(p PermitTransferFrom) map[string]interface{} {
	return map[string]interface{}{
		"permitted": tokenPermissionsMessage(p.Permitted),
		"spender":   evm.NormalizeAddress(p.Spender),
		"nonce":     p.Nonce,
		"deadline":  p.Deadline,
	}
}

// BatchPermitMessage returns the typed-data message for a batch permit
func BatchPermitMessage(p PermitBatchTransferFrom) map[string]interface{} {
	permitted := make([]interface{}, len(p.Permitted))
	for i, entry := range p.Permitted {
		permitted[i] = tokenPermissionsMessage(entry)
	}
	return map[string]interface{}{
		"permitted": permitted,
		"spender":   evm.NormalizeAddress(p.Spender),
		"nonce":     p.Nonce,
		"deadline":  p.Deadline,
	}
}

// HashPermit computes the EIP-712 digest of a single-token permit
func HashPermit(p PermitTransferFrom, domain evm.TypedDataDomain) ([]byte, error) {
	if err := validatePermitted([]TokenPermissions{p.Permitted}); err != nil {
		return nil, err
	}
	if err := validateNonceDeadline(p.Nonce, p.Deadline); err != nil {
		return nil, err
	}
	return evm.HashTypedData(domain, GetPermitEIP712Types(), PrimaryTypePermit, PermitMessage(p))
}

// HashBatchPermit computes the EIP-712 digest of a batch permit
func HashBatchPermit(p PermitBatchTransferFrom, domain evm.TypedDataDomain) ([]byte, error) {
	if err := validatePermitted(p.Permitted); err != nil {
		return nil, err
	}
	if err := validateNonceDeadline(p.Nonce, p.Deadline); err != nil {
		return nil, err
	}
	return evm.HashTypedData(domain, GetBatchPermitEIP712Types(), PrimaryTypeBatchPermit, BatchPermitMessage(p))
}

// RecoverPermitSigner returns the checksummed address that signed digest
func RecoverPermitSigner(digest, signature []byte) (string, error) {
	addr, err := evm.RecoverAddress(digest, signature)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// VerifyBatchPermitSignature reports whether signature was produced by owner
// over the permit under exactly this domain.
func VerifyBatchPermitSignature(p PermitBatchTransferFrom, domain evm.TypedDataDomain, owner string, signature []byte) (bool, error) {
	digest, err := HashBatchPermit(p, domain)
	if err != nil {
		return false, err
	}
	return signerMatches(digest, owner, signature)
}

// VerifyPermitSignature is VerifyBatchPermitSignature for single-token permits
func VerifyPermitSignature(p PermitTransferFrom, domain evm.TypedDataDomain, owner string, signature []byte) (bool, error) {
	digest, err := HashPermit(p, domain)
	if err != nil {
		return false, err
	}
	return signerMatches(digest, owner, signature)
}

func signerMatches(digest []byte, owner string, signature []byte) (bool, error) {
	recovered, err := RecoverPermitSigner(digest, signature)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, owner), nil
}

func validatePermitted(permitted []TokenPermissions) error {
	if len(permitted) == 0 {
		return NewPermitError(ErrCodeInvalidPermit, "permitted list is empty")
	}
	for i, entry := range permitted {
		if !evm.IsValidAddress(entry.Token) {
			return NewPermitError(ErrCodeInvalidPermit, "permitted[%d]: invalid token address %q", i, entry.Token)
		}
		if entry.Amount == nil || entry.Amount.Sign() < 0 {
			return NewPermitError(ErrCodeInvalidPermit, "permitted[%d]: amount must be non-negative", i)
		}
	}
	return nil
}

func validateNonceDeadline(nonce, deadline *big.Int) error {
	if nonce == nil || nonce.Sign() < 0 {
		return NewPermitError(ErrCodeInvalidPermit, "nonce must be non-negative")
	}
	if deadline == nil || deadline.Sign() <= 0 {
		return NewPermitError(ErrCodeInvalidPermit, "deadline must be positive")
	}
	if nonce.BitLen() > 256 || deadline.BitLen() > 256 {
		return fmt.Errorf("%s: value exceeds uint256", ErrCodeInvalidPermit)
	}
	return nil
}
