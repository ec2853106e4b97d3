package relayer

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/router"
)

// Recorder receives swap outcomes and fee figures. The metrics package
// provides the Prometheus implementation.
type Recorder interface {
	SwapFinished(state string, phase string, duration time.Duration)
	FeeResolved(token string, resolution *fees.Resolution)
	Reconciled(token string, reconciliation *fees.Reconciliation)
}

type nopRecorder struct{}

func (nopRecorder) SwapFinished(string, string, time.Duration) {}
func (nopRecorder) FeeResolved(string, *fees.Resolution)       {}
func (nopRecorder) Reconciled(string, *fees.Reconciliation)    {}

// Orchestrator drives one swap attempt at a time through
// init -> allowance_checked -> permit_signed -> fee_resolved -> submitted -> confirmed.
//
// It keeps no per-owner state. Two concurrent attempts for the same owner may
// pick the same free nonce bit; only the first execute to land succeeds. Use
// OwnerQueue to serialize attempts per owner.
type Orchestrator struct {
	cfg       Config
	node      evm.NodeClient
	allocator *permit2.NonceAllocator
	signer    *permit2.PermitSigner
	resolver  *fees.Resolver
	encoder   *router.Encoder
	recorder  Recorder
	now       func() time.Time
	logger    *slog.Logger

	beforeSwapHooks    []BeforeSwapHook
	afterSwapHooks     []AfterSwapHook
	onSwapFailureHooks []OnSwapFailureHook
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger; it is shared with the nonce allocator and permit signer
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides time.Now for deadlines and nonce candidates
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder sets where outcomes are reported
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// NewOrchestrator creates an orchestrator. cfg is copied and defaulted; the
// resolver must have a quoter for every method callers will request.
func NewOrchestrator(cfg Config, node evm.NodeClient, resolver *fees.Resolver, opts ...Option) *Orchestrator {
	cfg.ApplyDefaults()
	o := &Orchestrator{
		cfg:      cfg,
		node:     node,
		resolver: resolver,
		encoder:  router.NewEncoder(),
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.allocator = permit2.NewNonceAllocator(node, cfg.Permit2Address,
		permit2.WithClock(o.now),
		permit2.WithMaxAttempts(cfg.NonceAttempts),
		permit2.WithNonceLogger(o.logger))

	signerOpts := []permit2.SignerOption{
		permit2.WithSignerClock(o.now),
		permit2.WithSignerLogger(o.logger),
	}
	if cfg.ChainID > 0 {
		signerOpts = append(signerOpts, permit2.WithChainID(big.NewInt(cfg.ChainID)))
	}
	o.signer = permit2.NewPermitSigner(node, cfg.Permit2Address, signerOpts...)
	return o
}

// Config returns the orchestrator's configuration
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// attempt is the per-call working set. It never outlives Swap or Quote.
type attempt struct {
	id          string
	req         SwapRequest
	owner       string
	token       evm.Token
	tokenOut    string
	hops        []router.Hop
	method      fees.QuotingMethod
	chainID     int64
	nonce       *big.Int
	provisional *permit2.SignedBatchPermit
	state       State
	started     time.Time
	logger      *slog.Logger
}

// Swap executes req and waits for one confirmation. Every failure is a
// *SwapError naming the phase; nothing is retried.
func (o *Orchestrator) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	a := o.newAttempt(req)
	hookCtx := o.hookContext(ctx, a)

	if err := o.runBeforeHooks(hookCtx); err != nil {
		return nil, o.fail(hookCtx, a, PhaseValidation, err)
	}
	if phase, err := o.prepare(ctx, a); err != nil {
		return nil, o.fail(hookCtx, a, phase, err)
	}

	result := &SwapResult{
		ID:       a.id,
		Owner:    a.owner,
		TokenIn:  a.token,
		TokenOut: a.tokenOut,
		AmountIn: new(big.Int).Set(req.AmountIn),
	}

	// init -> allowance_checked
	approvalHash, err := o.ensureAllowance(ctx, a)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseAllowance, err)
	}
	result.ApprovalTxHash = approvalHash
	a.state = StateAllowanceChecked

	// allowance_checked -> permit_signed
	if phase, err := o.allocateAndSign(ctx, a); err != nil {
		return nil, o.fail(hookCtx, a, phase, err)
	}
	result.Nonce = new(big.Int).Set(a.nonce)

	// permit_signed -> fee_resolved
	resolution, err := o.resolveFee(ctx, a)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseFeeResolution, err)
	}
	result.Resolution = resolution
	a.state = StateFeeResolved

	// fee_resolved -> submitted
	final, err := o.signPermit(ctx, a, resolution.FeeInToken, resolution.SwapAmount)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseSigning, err)
	}
	plan, err := o.buildPlan(a, final)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseSubmission, err)
	}
	calldata, err := plan.Calldata()
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseSubmission, err)
	}
	txHash, err := o.node.SendTransaction(ctx, o.cfg.RouterAddress, calldata)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseSubmission, evm.NewNodeRPCError(router.FunctionExecute, err))
	}
	result.TxHash = txHash
	result.TransferDetails = plan.Permit2.TransferDetails
	a.state = StateSubmitted
	a.logger.Info("swap submitted",
		"tx_hash", txHash,
		"fee_in_token", resolution.FeeInToken.String(),
		"swap_amount", resolution.SwapAmount.String())

	// submitted -> confirmed
	receipt, err := o.node.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, o.fail(hookCtx, a, PhaseConfirmation, evm.NewNodeRPCError("eth_getTransactionReceipt", err))
	}
	result.Receipt = receipt
	if receipt.Status != evm.TxStatusSuccess {
		return nil, o.fail(hookCtx, a, PhaseConfirmation,
			&evm.TransactionRevertedError{TxHash: txHash, Reason: receipt.RevertReason})
	}
	a.state = StateConfirmed
	result.State = StateConfirmed

	result.Reconciliation = o.reconcile(a, resolution, receipt)

	duration := o.now().Sub(a.started)
	o.recorder.SwapFinished(string(StateConfirmed), "", duration)
	a.logger.Info("swap confirmed",
		"tx_hash", txHash,
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
		"duration_ms", duration.Milliseconds())

	o.runAfterHooks(SwapResultContext{SwapContext: hookCtx, Result: *result, Duration: duration})
	return result, nil
}

// Quote runs both fee passes against a provisional permit without sending
// anything. The allowance is read and reported but never fixed.
func (o *Orchestrator) Quote(ctx context.Context, req SwapRequest) (*QuoteResult, error) {
	a := o.newAttempt(req)

	if phase, err := o.prepare(ctx, a); err != nil {
		return nil, o.quoteFail(a, phase, err)
	}

	allowance, err := evm.ReadAllowance(ctx, o.node, a.token.Address, a.owner, o.cfg.Permit2Address)
	if err != nil {
		return nil, o.quoteFail(a, PhaseAllowance, err)
	}
	a.state = StateAllowanceChecked

	if phase, err := o.allocateAndSign(ctx, a); err != nil {
		return nil, o.quoteFail(a, phase, err)
	}

	resolution, err := o.resolveFee(ctx, a)
	if err != nil {
		return nil, o.quoteFail(a, PhaseFeeResolution, err)
	}

	return &QuoteResult{
		ID:                  a.id,
		Owner:               a.owner,
		TokenIn:             a.token,
		AmountIn:            new(big.Int).Set(req.AmountIn),
		Method:              a.method,
		Resolution:          resolution,
		Allowance:           allowance,
		AllowanceSufficient: allowance.Cmp(req.AmountIn) >= 0,
	}, nil
}

func (o *Orchestrator) newAttempt(req SwapRequest) *attempt {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	a := &attempt{
		id:      id,
		req:     req,
		state:   StateInit,
		started: o.now(),
	}
	if req.Owner != nil {
		a.owner = evm.NormalizeAddress(req.Owner.Address())
	}
	a.logger = o.logger.With("swap_id", id, "owner", a.owner)
	return a
}

func (o *Orchestrator) hookContext(ctx context.Context, a *attempt) SwapContext {
	return SwapContext{Ctx: ctx, ID: a.id, Owner: a.owner, Request: a.req, Timestamp: a.started}
}

// prepare validates the request and loads token metadata
func (o *Orchestrator) prepare(ctx context.Context, a *attempt) (Phase, error) {
	req := a.req
	switch {
	case req.Owner == nil:
		return PhaseValidation, &RequestError{Field: "owner", Message: "signer is required"}
	case !evm.IsValidAddress(a.owner):
		return PhaseValidation, &RequestError{Field: "owner", Message: "invalid address"}
	case !evm.IsValidAddress(req.TokenIn):
		return PhaseValidation, &RequestError{Field: "tokenIn", Message: "invalid address"}
	case req.AmountIn == nil || req.AmountIn.Sign() <= 0:
		return PhaseValidation, &RequestError{Field: "amountIn", Message: "must be positive"}
	case req.AmountOutMin != nil && req.AmountOutMin.Sign() < 0:
		return PhaseValidation, &RequestError{Field: "amountOutMin", Message: "must not be negative"}
	}

	a.hops = req.Hops
	if len(a.hops) == 0 {
		if !evm.IsValidAddress(req.TokenOut) {
			return PhaseValidation, &RequestError{Field: "tokenOut", Message: "invalid address"}
		}
		a.hops = []router.Hop{{Fee: o.cfg.PoolFee, Token: req.TokenOut}}
	}
	a.tokenOut = evm.NormalizeAddress(a.hops[len(a.hops)-1].Token)
	if req.TokenOut != "" && !sameAddress(req.TokenOut, a.tokenOut) {
		return PhaseValidation, &RequestError{Field: "hops", Message: "route does not end in tokenOut"}
	}

	a.method = req.QuotingMethod
	if a.method == "" {
		a.method = fees.QuotingMethod(o.cfg.Quoting.Method)
	}
	method, err := fees.ParseQuotingMethod(string(a.method))
	if err != nil {
		return PhaseValidation, err
	}
	a.method = method

	token, err := evm.ReadTokenInfo(ctx, o.node, req.TokenIn)
	if err != nil {
		return PhaseValidation, err
	}
	a.token = token
	a.logger = a.logger.With("token_in", token.Symbol)
	return "", nil
}

// ensureAllowance makes sure Permit2 can pull AmountIn, approving the maximum
// from the owner's account when it cannot. It returns the approval tx hash, if any.
func (o *Orchestrator) ensureAllowance(ctx context.Context, a *attempt) (string, error) {
	allowance, err := evm.ReadAllowance(ctx, o.node, a.token.Address, a.owner, o.cfg.Permit2Address)
	if err != nil {
		return "", err
	}
	if allowance.Cmp(a.req.AmountIn) >= 0 {
		return "", nil
	}

	transactor, ok := a.req.Owner.(evm.Transactor)
	if !ok {
		return "", ErrApprovalRequired
	}
	txHash, err := transactor.WriteContract(ctx, a.token.Address, evm.ERC20ApproveABI, "approve",
		common.HexToAddress(o.cfg.Permit2Address), evm.MaxUint256())
	if err != nil {
		return "", evm.NewNodeRPCError("approve", err)
	}
	a.logger.Info("permit2 approval submitted", "tx_hash", txHash, "allowance", allowance.String())

	receipt, err := transactor.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return txHash, evm.NewNodeRPCError("eth_getTransactionReceipt", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return txHash, &evm.TransactionRevertedError{TxHash: txHash, Reason: receipt.RevertReason}
	}
	return txHash, nil
}

// allocateAndSign picks a free nonce and signs the provisional permit
func (o *Orchestrator) allocateAndSign(ctx context.Context, a *attempt) (Phase, error) {
	nonce, err := o.allocator.Allocate(ctx, a.owner)
	if err != nil {
		return PhaseAllocation, err
	}
	a.nonce = nonce

	// Signed only so estimation simulates a realistic execute; it is never submitted.
	fee := provisionalFee(a.req.AmountIn, o.cfg.PlaceholderFee)
	provisional, err := o.signPermit(ctx, a, fee, new(big.Int).Sub(a.req.AmountIn, fee))
	if err != nil {
		return PhaseSigning, err
	}
	a.provisional = provisional
	a.state = StatePermitSigned
	return "", nil
}

// provisionalFee is the fee entry of the estimation permit: the placeholder,
// capped at half of amountIn so small swaps still split into [fee, rest].
// Whether the real fee fits is decided by fees.Finalize.
func provisionalFee(amountIn *big.Int, placeholder int64) *big.Int {
	fee := big.NewInt(placeholder)
	half := new(big.Int).Rsh(amountIn, 1)
	if half.Cmp(fee) < 0 {
		fee = half
	}
	if fee.Sign() <= 0 && amountIn.Sign() > 0 {
		fee = big.NewInt(1)
	}
	return fee
}

// signPermit signs [fee, swapAmount] of tokenIn for the router under the attempt's nonce
func (o *Orchestrator) signPermit(ctx context.Context, a *attempt, fee, swapAmount *big.Int) (*permit2.SignedBatchPermit, error) {
	permitted := []permit2.TokenPermissions{
		{Token: a.token.Address, Amount: fee},
		{Token: a.token.Address, Amount: swapAmount},
	}
	return o.signer.SignBatch(ctx, a.req.Owner, permitted, o.cfg.RouterAddress, a.nonce, o.cfg.PermitDeadline.Duration)
}

// resolveFee builds the provisional execute call and prices it in tokenIn
func (o *Orchestrator) resolveFee(ctx context.Context, a *attempt) (*fees.Resolution, error) {
	domain, err := o.signer.Domain(ctx)
	if err != nil {
		return nil, err
	}
	a.chainID = domain.ChainID.Int64()

	plan, err := o.buildPlan(a, a.provisional)
	if err != nil {
		return nil, err
	}
	calldata, err := plan.Calldata()
	if err != nil {
		return nil, err
	}

	resolution, err := o.resolver.Resolve(ctx, fees.ResolveRequest{
		Tx:       evm.CallRequest{From: o.node.Address(), To: o.cfg.RouterAddress, Data: calldata},
		Token:    a.token,
		ChainID:  a.chainID,
		AmountIn: a.req.AmountIn,
		Method:   a.method,
	})
	if err != nil {
		return nil, err
	}
	o.recorder.FeeResolved(a.token.Symbol, resolution)
	return resolution, nil
}

// buildPlan pairs the permit with [gas fee recipient, router] transfer details
// and checks they line up before anything is encoded
func (o *Orchestrator) buildPlan(a *attempt, signed *permit2.SignedBatchPermit) (router.SwapPlan, error) {
	permitted := signed.Permit.Permitted
	if len(permitted) != 2 {
		return router.SwapPlan{}, permit2.NewPermitError(permit2.ErrCodeTransferMismatch,
			"expected fee and swap entries, got %d", len(permitted))
	}
	details := []permit2.SignatureTransferDetails{
		{To: o.cfg.GasFeeRecipient, RequestedAmount: new(big.Int).Set(permitted[0].Amount)},
		{To: o.cfg.RouterAddress, RequestedAmount: new(big.Int).Set(permitted[1].Amount)},
	}
	if err := permit2.ValidateTransferDetails(permitted, details); err != nil {
		return router.SwapPlan{}, err
	}

	commands, err := o.encoder.Encode(o.cfg.SwapFeeRecipient, big.NewInt(o.cfg.FeeBips), router.SwapInput{
		TokenIn:      a.token.Address,
		Hops:         a.hops,
		AmountOutMin: a.req.AmountOutMin,
		Recipient:    a.owner,
	})
	if err != nil {
		return router.SwapPlan{}, err
	}

	deadline := big.NewInt(o.now().Add(o.cfg.RouterDeadline.Duration).Unix())
	return router.SwapPlan{
		Swap: router.SwapParams{
			TokenOut:     a.tokenOut,
			AmountOutMin: a.req.AmountOutMin,
			Swapper:      a.owner,
		},
		Permit2: router.Permit2Params{
			Permit:          signed.Permit,
			TransferDetails: details,
			Signature:       signed.Signature,
		},
		Universal: router.NewUniversalParams(commands, deadline),
	}, nil
}

// reconcile compares the charged fee with the receipt. Diagnostic only.
func (o *Orchestrator) reconcile(a *attempt, resolution *fees.Resolution, receipt *evm.TransactionReceipt) *fees.Reconciliation {
	rec, err := fees.Reconcile(resolution, receipt, a.token.Decimals)
	if err != nil {
		a.logger.Warn("fee reconciliation skipped", "error", err)
		return nil
	}
	o.recorder.Reconciled(a.token.Symbol, rec)
	a.logger.Info("fee reconciled",
		"estimated_native", evm.FormatAmount(rec.EstimatedWei, evm.NativeDecimals),
		"actual_native", evm.FormatAmount(rec.ActualWei, evm.NativeDecimals),
		"charged", evm.FormatAmount(rec.ChargedInToken, a.token.Decimals),
		"actual", evm.FormatAmount(rec.ActualInToken, a.token.Decimals),
		"overcharge", evm.FormatAmount(rec.OverchargeInToken, a.token.Decimals))
	return rec
}

func (o *Orchestrator) fail(hookCtx SwapContext, a *attempt, phase Phase, err error) *SwapError {
	swapErr := &SwapError{ID: a.id, Phase: phase, Err: err}
	previous := a.state
	a.state = StateFailed

	duration := o.now().Sub(a.started)
	o.recorder.SwapFinished(string(StateFailed), string(phase), duration)
	a.logger.Error("swap failed",
		"phase", phase,
		"state", previous,
		"code", swapErr.Code(),
		"error", err)

	o.runFailureHooks(SwapFailureContext{SwapContext: hookCtx, Error: swapErr, State: previous, Duration: duration})
	return swapErr
}

func (o *Orchestrator) quoteFail(a *attempt, phase Phase, err error) *SwapError {
	a.logger.Warn("quote failed", "phase", phase, "error", err)
	return &SwapError{ID: a.id, Phase: phase, Err: err}
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
