package permit2

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/universalswapper/relayer/evm"
)

// PermitSigner builds and signs SignatureTransfer permits for a token owner.
// The only chain access is reading the chain id, which is cached after the first read.
type PermitSigner struct {
	node     evm.NodeClient
	registry string
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// SignerOption configures a PermitSigner
type SignerOption func(*PermitSigner)

// WithChainID pins the domain chain id instead of asking the node
func WithChainID(chainID *big.Int) SignerOption {
	return func(s *PermitSigner) {
		if chainID != nil && chainID.Sign() > 0 {
			s.chainID = new(big.Int).Set(chainID)
		}
	}
}

// WithSignerClock replaces the clock used to compute deadlines
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *PermitSigner) {
		s.now = now
	}
}

// WithSignerLogger sets the signer logger
func WithSignerLogger(logger *slog.Logger) SignerOption {
	return func(s *PermitSigner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPermitSigner creates a signer whose domain verifies against registry
func NewPermitSigner(node evm.NodeClient, registry string, opts ...SignerOption) *PermitSigner {
	s := &PermitSigner{
		node:     node,
		registry: evm.NormalizeAddress(registry),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Domain returns the EIP-712 domain the signer uses
func (s *PermitSigner) Domain(ctx context.Context) (evm.TypedDataDomain, error) {
	chainID, err := s.getChainID(ctx)
	if err != nil {
		return evm.TypedDataDomain{}, err
	}
	return Domain(chainID, s.registry), nil
}

func (s *PermitSigner) getChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chainID != nil {
		return s.chainID, nil
	}
	chainID, err := s.node.ChainID(ctx)
	if err != nil {
		return nil, evm.NewNodeRPCError("eth_chainId", err)
	}
	s.chainID = new(big.Int).Set(chainID)
	return s.chainID, nil
}

func (s *PermitSigner) deadline(offset time.Duration) (*big.Int, error) {
	if offset <= 0 {
		return nil, NewPermitError(ErrCodeInvalidPermit, "deadline offset must be positive, got %s", offset)
	}
	return big.NewInt(s.now().Add(offset).Unix()), nil
}

// SignBatch signs a PermitBatchTransferFrom over permitted, in order, for spender.
// The deadline is now + deadlineOffset.
func (s *PermitSigner) SignBatch(
	ctx context.Context,
	owner evm.ClientSigner,
	permitted []TokenPermissions,
	spender string,
	nonce *big.Int,
	deadlineOffset time.Duration,
) (*SignedBatchPermit, error) {
	if err := validatePermitted(permitted); err != nil {
		return nil, err
	}
	if !evm.IsValidAddress(spender) {
		return nil, NewPermitError(ErrCodeInvalidPermit, "invalid spender address %q", spender)
	}
	deadline, err := s.deadline(deadlineOffset)
	if err != nil {
		return nil, err
	}
	if err := validateNonceDeadline(nonce, deadline); err != nil {
		return nil, err
	}

	domain, err := s.Domain(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]TokenPermissions, len(permitted))
	for i, entry := range permitted {
		entries[i] = TokenPermissions{
			Token:  evm.NormalizeAddress(entry.Token),
			Amount: new(big.Int).Set(entry.Amount),
		}
	}
	permit := PermitBatchTransferFrom{
		Permitted: entries,
		Spender:   evm.NormalizeAddress(spender),
		Nonce:     new(big.Int).Set(nonce),
		Deadline:  deadline,
	}

	signature, err := owner.SignTypedData(ctx, domain, GetBatchPermitEIP712Types(), PrimaryTypeBatchPermit, BatchPermitMessage(permit))
	if err != nil {
		return nil, fmt.Errorf("failed to sign batch permit: %w", err)
	}
	if len(signature) != evm.SignatureLength {
		return nil, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	s.logger.Debug("batch permit signed",
		"owner", owner.Address(),
		"spender", permit.Spender,
		"entries", len(entries),
		"deadline", deadline.String())

	return &SignedBatchPermit{
		Owner:     evm.NormalizeAddress(owner.Address()),
		Permit:    permit,
		Signature: signature,
	}, nil
}

// SignSingle signs a PermitTransferFrom for one token
func (s *PermitSigner) SignSingle(
	ctx context.Context,
	owner evm.ClientSigner,
	permitted TokenPermissions,
	spender string,
	nonce *big.Int,
	deadlineOffset time.Duration,
) (*SignedPermit, error) {
	if err := validatePermitted([]TokenPermissions{permitted}); err != nil {
		return nil, err
	}
	if !evm.IsValidAddress(spender) {
		return nil, NewPermitError(ErrCodeInvalidPermit, "invalid spender address %q", spender)
	}
	deadline, err := s.deadline(deadlineOffset)
	if err != nil {
		return nil, err
	}
	if err := validateNonceDeadline(nonce, deadline); err != nil {
		return nil, err
	}

	domain, err := s.Domain(ctx)
	if err != nil {
		return nil, err
	}

	permit := PermitTransferFrom{
		Permitted: TokenPermissions{
			Token:  evm.NormalizeAddress(permitted.Token),
			Amount: new(big.Int).Set(permitted.Amount),
		},
		Spender:  evm.NormalizeAddress(spender),
		Nonce:    new(big.Int).Set(nonce),
		Deadline: deadline,
	}

	signature, err := owner.SignTypedData(ctx, domain, GetPermitEIP712Types(), PrimaryTypePermit, PermitMessage(permit))
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit: %w", err)
	}
	if len(signature) != evm.SignatureLength {
		return nil, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	return &SignedPermit{
		Owner:     evm.NormalizeAddress(owner.Address()),
		Permit:    permit,
		Signature: signature,
	}, nil
}
