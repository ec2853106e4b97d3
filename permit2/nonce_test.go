package permit2

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/test/mocks/node"
)

const (
	testRelayer = "0x1111111111111111111111111111111111111111"
	testOwner   = "0x2222222222222222222222222222222222222222"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSplitNonce(t *testing.T) {
	tests := []struct {
		name    string
		nonce   *big.Int
		wordPos int64
		bitPos  uint
	}{
		{name: "zero", nonce: big.NewInt(0), wordPos: 0, bitPos: 0},
		{name: "last bit of first word", nonce: big.NewInt(255), wordPos: 0, bitPos: 255},
		{name: "first bit of second word", nonce: big.NewInt(256), wordPos: 1, bitPos: 0},
		{name: "arbitrary", nonce: big.NewInt(0x1234), wordPos: 0x12, bitPos: 0x34},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wordPos, bitPos := SplitNonce(tt.nonce)
			assert.Equal(t, tt.wordPos, wordPos.Int64())
			assert.Equal(t, tt.bitPos, bitPos)
			assert.Equal(t, 0, ComposeNonce(wordPos, bitPos).Cmp(tt.nonce))
		})
	}
}

func TestIsBitSet(t *testing.T) {
	bitmap := new(big.Int).SetBit(new(big.Int), 7, 1)
	assert.True(t, IsBitSet(bitmap, 7))
	assert.False(t, IsBitSet(bitmap, 6))
	assert.False(t, IsBitSet(nil, 0))
	assert.True(t, IsBitSet(evm.MaxUint256(), 255))
}

func TestCandidateNonce(t *testing.T) {
	a, err := CandidateNonce(1700000000, testOwner)
	require.NoError(t, err)
	b, err := CandidateNonce(1700000000, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Cmp(b))

	c, err := CandidateNonce(1700000001, testOwner)
	require.NoError(t, err)
	assert.NotEqual(t, 0, a.Cmp(c))

	d, err := CandidateNonce(1700000000, testRelayer)
	require.NoError(t, err)
	assert.NotEqual(t, 0, a.Cmp(d))

	assert.LessOrEqual(t, a.BitLen(), 256)

	_, err = CandidateNonce(-1, testOwner)
	assert.Error(t, err)
}

func TestAllocate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ctx := context.Background()

	candidate := func(t *testing.T, i int64) *big.Int {
		n, err := CandidateNonce(now.Unix()+i, testOwner)
		require.NoError(t, err)
		return n
	}

	t.Run("first candidate when bitmap is empty", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)))

		nonce, err := alloc.Allocate(ctx, testOwner)
		require.NoError(t, err)
		assert.Equal(t, 0, nonce.Cmp(candidate(t, 0)))
		assert.Equal(t, 1, mock.BitmapQueries)
	})

	t.Run("skips used candidates", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		for i := int64(0); i < 10; i++ {
			mock.MarkNonceUsed(testOwner, candidate(t, i))
		}
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)))

		nonce, err := alloc.Allocate(ctx, testOwner)
		require.NoError(t, err)
		assert.Equal(t, 0, nonce.Cmp(candidate(t, 10)))
		assert.Equal(t, 11, mock.BitmapQueries)

		status, err := alloc.CheckNonce(ctx, testOwner, nonce)
		require.NoError(t, err)
		assert.True(t, status.Free)
	})

	t.Run("never returns a set bit in a full word", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		wordPos, _ := SplitNonce(candidate(t, 0))
		mock.SetBitmap(testOwner, wordPos, evm.MaxUint256())
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)))

		nonce, err := alloc.Allocate(ctx, testOwner)
		require.NoError(t, err)

		gotWord, _ := SplitNonce(nonce)
		assert.NotEqual(t, 0, gotWord.Cmp(wordPos))

		status, err := alloc.CheckNonce(ctx, testOwner, nonce)
		require.NoError(t, err)
		assert.True(t, status.Free)
		assert.False(t, IsBitSet(status.Bitmap, status.BitPos))
	})

	t.Run("exhaustion after max attempts", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		for i := int64(0); i < DefaultMaxNonceAttempts; i++ {
			mock.MarkNonceUsed(testOwner, candidate(t, i))
		}
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)))

		nonce, err := alloc.Allocate(ctx, testOwner)
		assert.Nil(t, nonce)

		var exhausted *NonceExhaustionError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, DefaultMaxNonceAttempts, exhausted.Attempts)
		assert.Equal(t, DefaultMaxNonceAttempts, mock.BitmapQueries)
		assert.Contains(t, err.Error(), ErrCodeNonceExhausted)
	})

	t.Run("custom attempt limit", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		for i := int64(0); i < 3; i++ {
			mock.MarkNonceUsed(testOwner, candidate(t, i))
		}
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)), WithMaxAttempts(3))

		_, err := alloc.Allocate(ctx, testOwner)
		var exhausted *NonceExhaustionError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
	})

	t.Run("registry read failure", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		mock.ReadErr = errors.New("connection refused")
		alloc := NewNonceAllocator(mock, PERMIT2Address, WithClock(fixedClock(now)))

		_, err := alloc.Allocate(ctx, testOwner)
		var rpcErr *evm.NodeRPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, FunctionNonceBitmap, rpcErr.Method)
	})

	t.Run("cancelled context", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		alloc := NewNonceAllocator(mock, PERMIT2Address)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := alloc.Allocate(cancelled, testOwner)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, mock.BitmapQueries)
	})
}
