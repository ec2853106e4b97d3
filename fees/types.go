// Package fees converts the estimated gas cost of a swap into the input token
// and deducts it from the amount the owner provides.
package fees

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/universalswapper/relayer/evm"
)

// QuotingMethod selects the price source
type QuotingMethod string

const (
	// QuotingOnchain asks the oracle for an on-chain pool quote
	QuotingOnchain QuotingMethod = "onchain"
	// QuotingGraph asks the oracle for a subgraph-derived quote
	QuotingGraph QuotingMethod = "graph"
)

// DefaultPlaceholderFee is the provisional fee signed for estimation, in token units
const DefaultPlaceholderFee = 100000

// ParseQuotingMethod accepts "onchain" or "graph", case-insensitively
func ParseQuotingMethod(s string) (QuotingMethod, error) {
	switch m := QuotingMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case QuotingOnchain, QuotingGraph:
		return m, nil
	default:
		return "", &UnsupportedQuotingMethodError{Method: s}
	}
}

// PriceQuoter returns the native-currency price of one whole token, in wei
type PriceQuoter interface {
	QuoteNative(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error)
}

// PriceQuoterFunc adapts a function to PriceQuoter
type PriceQuoterFunc func(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error)

// QuoteNative calls f
func (f PriceQuoterFunc) QuoteNative(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error) {
	return f(ctx, token, chainID)
}

// GasEstimate is the estimated cost of one transaction
type GasEstimate struct {
	GasUnits uint64   `json:"gasUnits"`
	GasPrice *big.Int `json:"gasPrice"`
	CostWei  *big.Int `json:"costWei"`
}

// ResolveRequest holds everything Resolve needs for one attempt
type ResolveRequest struct {
	Tx       evm.CallRequest
	Token    evm.Token
	ChainID  int64
	AmountIn *big.Int
	Method   QuotingMethod
}

// Resolution is the outcome of both passes
type Resolution struct {
	Estimate   *GasEstimate `json:"estimate"`
	PriceWei   *big.Int     `json:"priceWei"`
	FeeInToken *big.Int     `json:"feeInToken"`
	SwapAmount *big.Int     `json:"swapAmount"`
}

// Reconciliation compares the estimated fee with what the transaction actually cost
type Reconciliation struct {
	EstimatedWei      *big.Int `json:"estimatedWei"`
	ActualWei         *big.Int `json:"actualWei"`
	ChargedInToken    *big.Int `json:"chargedInToken"`
	ActualInToken     *big.Int `json:"actualInToken"`
	OverchargeInToken *big.Int `json:"overchargeInToken"`
}

func (r *Reconciliation) String() string {
	return fmt.Sprintf("estimated=%s actual=%s charged=%s actualToken=%s",
		r.EstimatedWei, r.ActualWei, r.ChargedInToken, r.ActualInToken)
}
