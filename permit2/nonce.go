package permit2

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/universalswapper/relayer/evm"
)

var candidateArgs = mustArguments("uint256", "address")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %s: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// NonceAllocator finds a nonce whose bit is still clear in the registry bitmap.
//
// Allocation is check-then-use: two callers may observe the same free bit
// before either redeems it. The loser's transaction reverts with InvalidNonce.
// Use OwnerQueue to serialize attempts per owner where that matters.
type NonceAllocator struct {
	node        evm.NodeClient
	registry    string
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

// NonceOption configures a NonceAllocator
type NonceOption func(*NonceAllocator)

// WithClock replaces the wall clock used to derive candidates
func WithClock(now func() time.Time) NonceOption {
	return func(a *NonceAllocator) {
		a.now = now
	}
}

// WithMaxAttempts overrides DefaultMaxNonceAttempts
func WithMaxAttempts(n int) NonceOption {
	return func(a *NonceAllocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithNonceLogger sets the allocator logger
func WithNonceLogger(logger *slog.Logger) NonceOption {
	return func(a *NonceAllocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewNonceAllocator creates an allocator reading the bitmap of registry through node
func NewNonceAllocator(node evm.NodeClient, registry string, opts ...NonceOption) *NonceAllocator {
	a := &NonceAllocator{
		node:        node,
		registry:    evm.NormalizeAddress(registry),
		maxAttempts: DefaultMaxNonceAttempts,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns a nonce that is unused for owner at the time of the check.
// Candidate i is derived from the current unix time plus i, so retries within
// the same second still differ.
func (a *NonceAllocator) Allocate(ctx context.Context, owner string) (*big.Int, error) {
	base := a.now().Unix()
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := CandidateNonce(base+int64(attempt), owner)
		if err != nil {
			return nil, err
		}

		status, err := a.CheckNonce(ctx, owner, candidate)
		if err != nil {
			return nil, err
		}
		if status.Free {
			a.logger.Debug("nonce allocated",
				"owner", owner,
				"word_pos", status.WordPos.String(),
				"bit_pos", status.BitPos,
				"attempts", attempt+1)
			return candidate, nil
		}
	}

	a.logger.Warn("nonce search exhausted", "owner", owner, "attempts", a.maxAttempts)
	return nil, &NonceExhaustionError{Owner: owner, Attempts: a.maxAttempts}
}

// CheckNonce reads the bitmap word holding nonce and reports whether its bit is clear
func (a *NonceAllocator) CheckNonce(ctx context.Context, owner string, nonce *big.Int) (NonceStatus, error) {
	wordPos, bitPos := SplitNonce(nonce)

	result, err := a.node.ReadContract(ctx, a.registry, NonceBitmapABI, FunctionNonceBitmap,
		common.HexToAddress(owner), wordPos)
	if err != nil {
		return NonceStatus{}, evm.NewNodeRPCError(FunctionNonceBitmap, err)
	}
	bitmap, err := evm.ToBigInt(result)
	if err != nil {
		return NonceStatus{}, evm.NewNodeRPCError(FunctionNonceBitmap, err)
	}

	return NonceStatus{
		Free:    !IsBitSet(bitmap, bitPos),
		WordPos: wordPos,
		BitPos:  bitPos,
		Bitmap:  bitmap,
	}, nil
}

// CandidateNonce computes keccak256(abi.encode(uint256 unixSeconds, address owner))
func CandidateNonce(unixSeconds int64, owner string) (*big.Int, error) {
	if unixSeconds < 0 {
		return nil, fmt.Errorf("negative timestamp: %d", unixSeconds)
	}
	packed, err := candidateArgs.Pack(big.NewInt(unixSeconds), common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to encode nonce seed: %w", err)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed)), nil
}

// SplitNonce returns the bitmap word position (nonce >> 8) and bit position (nonce & 0xff)
func SplitNonce(nonce *big.Int) (*big.Int, uint) {
	wordPos := new(big.Int).Rsh(nonce, 8)
	bitPos := uint(new(big.Int).And(nonce, big.NewInt(0xff)).Uint64())
	return wordPos, bitPos
}

// IsBitSet reports whether bit bitPos of bitmap is 1
func IsBitSet(bitmap *big.Int, bitPos uint) bool {
	if bitmap == nil {
		return false
	}
	return bitmap.Bit(int(bitPos)) == 1
}

// ComposeNonce is the inverse of SplitNonce
func ComposeNonce(wordPos *big.Int, bitPos uint) *big.Int {
	nonce := new(big.Int).Lsh(wordPos, 8)
	return nonce.Or(nonce, big.NewInt(int64(bitPos&0xff)))
}
