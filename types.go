// Package relayer submits gas-sponsored swaps: the owner signs a Permit2 batch
// permit, the relayer pays gas for one UniversalSwapper.execute call, and the
// gas is charged back in the input token.
package relayer

import (
	"math/big"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/router"
)

// State is a step of the swap state machine
type State string

const (
	StateInit             State = "init"
	StateAllowanceChecked State = "allowance_checked"
	StatePermitSigned     State = "permit_signed"
	StateFeeResolved      State = "fee_resolved"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateFailed           State = "failed"
)

// SwapRequest is one swap the owner wants the relayer to execute
type SwapRequest struct {
	// ID identifies the attempt in logs and hooks; a UUID is assigned when empty
	ID string

	// Owner signs the permit. It must also implement evm.Transactor when the
	// Permit2 allowance is short.
	Owner evm.ClientSigner

	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	AmountOutMin *big.Int

	// Hops overrides the single TokenIn -> TokenOut pool route
	Hops []router.Hop

	// QuotingMethod overrides the configured method
	QuotingMethod fees.QuotingMethod
}

// SwapResult describes a confirmed swap
type SwapResult struct {
	ID              string                             `json:"id"`
	State           State                              `json:"state"`
	Owner           string                             `json:"owner"`
	TokenIn         evm.Token                          `json:"tokenIn"`
	TokenOut        string                             `json:"tokenOut"`
	AmountIn        *big.Int                           `json:"amountIn"`
	Nonce           *big.Int                           `json:"nonce"`
	ApprovalTxHash  string                             `json:"approvalTxHash,omitempty"`
	TxHash          string                             `json:"txHash"`
	Resolution      *fees.Resolution                   `json:"resolution"`
	TransferDetails []permit2.SignatureTransferDetails `json:"transferDetails"`
	Receipt         *evm.TransactionReceipt            `json:"receipt"`
	Reconciliation  *fees.Reconciliation               `json:"reconciliation,omitempty"`
}

// QuoteResult is a fee quote computed without submitting anything
type QuoteResult struct {
	ID                  string             `json:"id"`
	Owner               string             `json:"owner"`
	TokenIn             evm.Token          `json:"tokenIn"`
	AmountIn            *big.Int           `json:"amountIn"`
	Method              fees.QuotingMethod `json:"method"`
	Resolution          *fees.Resolution   `json:"resolution"`
	Allowance           *big.Int           `json:"allowance"`
	AllowanceSufficient bool               `json:"allowanceSufficient"`
}
