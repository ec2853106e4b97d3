package fees

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/universalswapper/relayer/evm"
)

// Resolver is the two-pass gas fee pipeline: estimate the provisional
// transaction, price it in the input token, then deduct it from amountIn.
type Resolver struct {
	node    evm.NodeClient
	quoters map[QuotingMethod]PriceQuoter
	logger  *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithQuoter registers the price source for a quoting method
func WithQuoter(method QuotingMethod, quoter PriceQuoter) Option {
	return func(r *Resolver) {
		r.quoters[method] = quoter
	}
}

// WithLogger sets the resolver logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver estimating through node
func NewResolver(node evm.NodeClient, opts ...Option) *Resolver {
	r := &Resolver{
		node:    node,
		quoters: make(map[QuotingMethod]PriceQuoter),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Estimate asks the node for gas units and price and multiplies them
func (r *Resolver) Estimate(ctx context.Context, tx evm.CallRequest) (*GasEstimate, error) {
	fee, err := r.node.EstimateFee(ctx, tx)
	if err != nil {
		return nil, evm.NewNodeRPCError("eth_estimateGas", err)
	}

	price, err := toUint256(fee.GasPrice, "gas price")
	if err != nil {
		return nil, err
	}
	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(fee.GasUnits), price)
	if overflow {
		return nil, &FeeError{Code: ErrCodeArithmeticOverflow, Message: "gas units x gas price overflows uint256"}
	}

	estimate := &GasEstimate{
		GasUnits: fee.GasUnits,
		GasPrice: new(big.Int).Set(fee.GasPrice),
		CostWei:  cost.ToBig(),
	}
	r.logger.Debug("gas estimated",
		"gas_units", estimate.GasUnits,
		"gas_price_wei", estimate.GasPrice.String(),
		"cost_native", evm.FormatAmount(estimate.CostWei, evm.NativeDecimals))
	return estimate, nil
}

// Quote returns the price of one whole token in wei using the quoter for method
func (r *Resolver) Quote(ctx context.Context, token evm.Token, chainID int64, method QuotingMethod) (*big.Int, error) {
	quoter, ok := r.quoters[method]
	if !ok {
		return nil, &UnsupportedQuotingMethodError{Method: string(method)}
	}
	price, err := quoter.QuoteNative(ctx, token, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to quote %s via %s: %w", token.Symbol, method, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, &FeeError{Code: ErrCodeInvalidPrice, Message: fmt.Sprintf("price of %s must be positive", token.Address)}
	}
	r.logger.Debug("token priced", "token", token.Address, "method", string(method), "price_wei", price.String())
	return price, nil
}

// Resolve runs Estimate, Quote, FeeInToken and Finalize in order
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, &InsufficientAmountError{AmountIn: req.AmountIn, Fee: big.NewInt(0)}
	}

	estimate, err := r.Estimate(ctx, req.Tx)
	if err != nil {
		return nil, err
	}
	price, err := r.Quote(ctx, req.Token, req.ChainID, req.Method)
	if err != nil {
		return nil, err
	}
	fee, err := FeeInToken(estimate.CostWei, price, req.Token.Decimals)
	if err != nil {
		return nil, err
	}
	swapAmount, err := Finalize(req.AmountIn, fee)
	if err != nil {
		return nil, err
	}

	r.logger.Info("fee resolved",
		"token", req.Token.Symbol,
		"fee", evm.FormatAmount(fee, req.Token.Decimals),
		"swap_amount", evm.FormatAmount(swapAmount, req.Token.Decimals))

	return &Resolution{
		Estimate:   estimate,
		PriceWei:   price,
		FeeInToken: fee,
		SwapAmount: swapAmount,
	}, nil
}

// FeeInToken converts a wei cost into token units: costWei * 10^decimals / priceWei, truncating
func FeeInToken(costWei, priceWei *big.Int, decimals int) (*big.Int, error) {
	cost, err := toUint256(costWei, "cost")
	if err != nil {
		return nil, err
	}
	price, err := toUint256(priceWei, "price")
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, &FeeError{Code: ErrCodeInvalidPrice, Message: "price must be non-zero"}
	}
	if decimals < 0 || decimals > 77 {
		return nil, &FeeError{Code: ErrCodeArithmeticOverflow, Message: fmt.Sprintf("unsupported decimals %d", decimals)}
	}

	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	scaled, overflow := new(uint256.Int).MulOverflow(cost, scale)
	if overflow {
		return nil, &FeeError{Code: ErrCodeArithmeticOverflow, Message: "cost x 10^decimals overflows uint256"}
	}
	return new(uint256.Int).Div(scaled, price).ToBig(), nil
}

// Finalize returns amountIn - fee, or InsufficientAmountError when fee >= amountIn
func Finalize(amountIn, fee *big.Int) (*big.Int, error) {
	if amountIn == nil || fee == nil || fee.Sign() < 0 {
		return nil, &FeeError{Code: ErrCodeInsufficientAmount, Message: "amount and fee are required"}
	}
	if fee.Cmp(amountIn) >= 0 {
		return nil, &InsufficientAmountError{AmountIn: new(big.Int).Set(amountIn), Fee: new(big.Int).Set(fee)}
	}
	return new(big.Int).Sub(amountIn, fee), nil
}

// ActualFeeInToken prices the gas a mined transaction really consumed
func ActualFeeInToken(receipt *evm.TransactionReceipt, priceWei *big.Int, decimals int) (*big.Int, *big.Int, error) {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return nil, nil, fmt.Errorf("receipt has no effective gas price")
	}
	price, err := toUint256(receipt.EffectiveGasPrice, "effective gas price")
	if err != nil {
		return nil, nil, err
	}
	actual, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(receipt.GasUsed), price)
	if overflow {
		return nil, nil, &FeeError{Code: ErrCodeArithmeticOverflow, Message: "gas used x effective price overflows uint256"}
	}
	actualWei := actual.ToBig()
	inToken, err := FeeInToken(actualWei, priceWei, decimals)
	if err != nil {
		return nil, nil, err
	}
	return actualWei, inToken, nil
}

// Reconcile compares a resolution with the receipt of the submitted transaction
func Reconcile(resolution *Resolution, receipt *evm.TransactionReceipt, decimals int) (*Reconciliation, error) {
	actualWei, actualInToken, err := ActualFeeInToken(receipt, resolution.PriceWei, decimals)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{
		EstimatedWei:      new(big.Int).Set(resolution.Estimate.CostWei),
		ActualWei:         actualWei,
		ChargedInToken:    new(big.Int).Set(resolution.FeeInToken),
		ActualInToken:     actualInToken,
		OverchargeInToken: new(big.Int).Sub(resolution.FeeInToken, actualInToken),
	}, nil
}

func toUint256(v *big.Int, what string) (*uint256.Int, error) {
	if v == nil {
		return nil, &FeeError{Code: ErrCodeInvalidPrice, Message: what + " is missing"}
	}
	if v.Sign() < 0 {
		return nil, &FeeError{Code: ErrCodeInvalidPrice, Message: what + " is negative"}
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, &FeeError{Code: ErrCodeArithmeticOverflow, Message: what + " exceeds uint256"}
	}
	return u, nil
}
