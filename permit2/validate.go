package permit2

import (
	"math/big"
	"strings"
	"time"

	"github.com/universalswapper/relayer/evm"
)

// ValidateTransferDetails checks that details align 1:1 with permitted: same
// length, each requested amount at most its permitted amount, and per-token
// requested sums within per-token permitted sums.
func ValidateTransferDetails(permitted []TokenPermissions, details []SignatureTransferDetails) error {
	if len(permitted) != len(details) {
		return NewPermitError(ErrCodeTransferMismatch,
			"%d transfer details for %d permitted entries", len(details), len(permitted))
	}

	permittedSums := make(map[string]*big.Int)
	requestedSums := make(map[string]*big.Int)

	for i, detail := range details {
		if !evm.IsValidAddress(detail.To) {
			return NewPermitError(ErrCodeTransferMismatch, "transferDetails[%d]: invalid recipient %q", i, detail.To)
		}
		if detail.RequestedAmount == nil || detail.RequestedAmount.Sign() < 0 {
			return NewPermitError(ErrCodeTransferMismatch, "transferDetails[%d]: requested amount must be non-negative", i)
		}
		if permitted[i].Amount == nil {
			return NewPermitError(ErrCodeInvalidPermit, "permitted[%d]: missing amount", i)
		}
		if detail.RequestedAmount.Cmp(permitted[i].Amount) > 0 {
			return NewPermitError(ErrCodeAmountExceedsPermit,
				"transferDetails[%d]: requested %s exceeds permitted %s", i, detail.RequestedAmount, permitted[i].Amount)
		}

		token := strings.ToLower(permitted[i].Token)
		if permittedSums[token] == nil {
			permittedSums[token] = new(big.Int)
			requestedSums[token] = new(big.Int)
		}
		permittedSums[token].Add(permittedSums[token], permitted[i].Amount)
		requestedSums[token].Add(requestedSums[token], detail.RequestedAmount)
	}

	for token, requested := range requestedSums {
		if requested.Cmp(permittedSums[token]) > 0 {
			return NewPermitError(ErrCodeAmountExceedsPermit,
				"token %s: requested %s exceeds permitted %s", token, requested, permittedSums[token])
		}
	}
	return nil
}

// CheckDeadline rejects permits whose deadline is not after now
func CheckDeadline(deadline *big.Int, now time.Time) error {
	if deadline == nil || deadline.Cmp(big.NewInt(now.Unix())) <= 0 {
		return NewPermitError(ErrCodeSignatureExpired, "deadline %v is not in the future", deadline)
	}
	return nil
}
