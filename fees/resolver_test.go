package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/test/mocks/node"
)

const testRelayer = "0x1111111111111111111111111111111111111111"

var usdc = evm.Token{
	Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	Decimals: 6,
	Symbol:   "USDC",
	Name:     "USD Coin",
}

func fixedPrice(wei int64) PriceQuoter {
	return PriceQuoterFunc(func(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error) {
		return big.NewInt(wei), nil
	})
}

func newTestResolver(mock *node.Client) *Resolver {
	// 200000 gas at 1 gwei = 2e14 wei; one USDC priced at 2e14 wei makes the fee exactly 1 USDC
	return NewResolver(mock,
		WithQuoter(QuotingOnchain, fixedPrice(200_000_000_000_000)),
		WithQuoter(QuotingGraph, fixedPrice(400_000_000_000_000)),
	)
}

func TestFeeInToken(t *testing.T) {
	tests := []struct {
		name     string
		cost     *big.Int
		price    *big.Int
		decimals int
		want     *big.Int
		wantErr  bool
	}{
		{name: "exact", cost: big.NewInt(200_000_000_000_000), price: big.NewInt(200_000_000_000_000), decimals: 6, want: big.NewInt(1_000_000)},
		{name: "truncates", cost: big.NewInt(10), price: big.NewInt(3), decimals: 0, want: big.NewInt(3)},
		{name: "18 decimals", cost: big.NewInt(1_000_000_000_000_000), price: big.NewInt(2_000_000_000_000_000_000), decimals: 18, want: big.NewInt(500_000_000_000_000)},
		{name: "zero cost", cost: big.NewInt(0), price: big.NewInt(5), decimals: 6, want: big.NewInt(0)},
		{name: "zero price", cost: big.NewInt(1), price: big.NewInt(0), decimals: 6, wantErr: true},
		{name: "negative cost", cost: big.NewInt(-1), price: big.NewInt(1), decimals: 6, wantErr: true},
		{name: "overflow", cost: evm.MaxUint256(), price: big.NewInt(1), decimals: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FeeInToken(tt.cost, tt.price, tt.decimals)
			if tt.wantErr {
				var feeErr *FeeError
				assert.ErrorAs(t, err, &feeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, got.Cmp(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name         string
		amountIn     int64
		fee          int64
		want         int64
		insufficient bool
	}{
		{name: "fee deducted", amountIn: 100_000_000, fee: 1_000_000, want: 99_000_000},
		{name: "zero fee", amountIn: 5, fee: 0, want: 5},
		{name: "one unit left", amountIn: 1_000_001, fee: 1_000_000, want: 1},
		{name: "fee equals amount", amountIn: 1_000_000, fee: 1_000_000, insufficient: true},
		{name: "fee exceeds amount", amountIn: 999_999, fee: 1_000_000, insufficient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Finalize(big.NewInt(tt.amountIn), big.NewInt(tt.fee))
			if tt.insufficient {
				var insufficient *InsufficientAmountError
				require.ErrorAs(t, err, &insufficient)
				assert.Equal(t, tt.amountIn, insufficient.AmountIn.Int64())
				assert.Equal(t, tt.fee, insufficient.Fee.Int64())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
			assert.Equal(t, tt.amountIn, new(big.Int).Add(got, big.NewInt(tt.fee)).Int64())
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	tx := evm.CallRequest{To: "0x3333333333333333333333333333333333333333", Data: []byte{0x01}}

	t.Run("deducts fee from amount in", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		resolver := newTestResolver(mock)

		res, err := resolver.Resolve(ctx, ResolveRequest{
			Tx:       tx,
			Token:    usdc,
			ChainID:  1,
			AmountIn: big.NewInt(100_000_000),
			Method:   QuotingOnchain,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(200000), res.Estimate.GasUnits)
		assert.Equal(t, int64(200_000_000_000_000), res.Estimate.CostWei.Int64())
		assert.Equal(t, int64(1_000_000), res.FeeInToken.Int64())
		assert.Equal(t, int64(99_000_000), res.SwapAmount.Int64())

		require.Len(t, mock.Estimates, 1)
		assert.Equal(t, tx.Data, mock.Estimates[0].Data)
	})

	t.Run("graph quoting uses its own source", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		res, err := newTestResolver(mock).Resolve(ctx, ResolveRequest{
			Tx: tx, Token: usdc, ChainID: 1, AmountIn: big.NewInt(100_000_000), Method: QuotingGraph,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(500_000), res.FeeInToken.Int64())
	})

	t.Run("amount equal to fee", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		_, err := newTestResolver(mock).Resolve(ctx, ResolveRequest{
			Tx: tx, Token: usdc, ChainID: 1, AmountIn: big.NewInt(1_000_000), Method: QuotingOnchain,
		})
		var insufficient *InsufficientAmountError
		require.ErrorAs(t, err, &insufficient)
		assert.Empty(t, mock.Sent)
	})

	t.Run("unsupported method", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		_, err := newTestResolver(mock).Resolve(ctx, ResolveRequest{
			Tx: tx, Token: usdc, ChainID: 1, AmountIn: big.NewInt(100_000_000), Method: "oracle",
		})
		var unsupported *UnsupportedQuotingMethodError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "oracle", unsupported.Method)
	})

	t.Run("estimate failure is a node error", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		mock.EstimateErr = errors.New("execution reverted")
		_, err := newTestResolver(mock).Resolve(ctx, ResolveRequest{
			Tx: tx, Token: usdc, ChainID: 1, AmountIn: big.NewInt(100_000_000), Method: QuotingOnchain,
		})
		var rpcErr *evm.NodeRPCError
		require.ErrorAs(t, err, &rpcErr)
	})

	t.Run("quoter failure propagates", func(t *testing.T) {
		mock := node.NewClient(testRelayer, 1)
		resolver := NewResolver(mock, WithQuoter(QuotingOnchain, PriceQuoterFunc(
			func(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error) {
				return nil, errors.New("oracle down")
			})))
		_, err := resolver.Resolve(ctx, ResolveRequest{
			Tx: tx, Token: usdc, ChainID: 1, AmountIn: big.NewInt(100_000_000), Method: QuotingOnchain,
		})
		assert.ErrorContains(t, err, "oracle down")
	})
}

func TestParseQuotingMethod(t *testing.T) {
	m, err := ParseQuotingMethod("OnChain")
	require.NoError(t, err)
	assert.Equal(t, QuotingOnchain, m)

	m, err = ParseQuotingMethod("graph")
	require.NoError(t, err)
	assert.Equal(t, QuotingGraph, m)

	_, err = ParseQuotingMethod("twap")
	var unsupported *UnsupportedQuotingMethodError
	assert.ErrorAs(t, err, &unsupported)
}

func TestReconcile(t *testing.T) {
	res := &Resolution{
		Estimate:   &GasEstimate{GasUnits: 200000, GasPrice: big.NewInt(1_000_000_000), CostWei: big.NewInt(200_000_000_000_000)},
		PriceWei:   big.NewInt(200_000_000_000_000),
		FeeInToken: big.NewInt(1_000_000),
		SwapAmount: big.NewInt(99_000_000),
	}
	receipt := &evm.TransactionReceipt{
		Status:            evm.TxStatusSuccess,
		GasUsed:           180000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}

	rec, err := Reconcile(res, receipt, usdc.Decimals)
	require.NoError(t, err)
	assert.Equal(t, int64(180_000_000_000_000), rec.ActualWei.Int64())
	assert.Equal(t, int64(900_000), rec.ActualInToken.Int64())
	assert.Equal(t, int64(100_000), rec.OverchargeInToken.Int64())

	_, err = Reconcile(res, &evm.TransactionReceipt{GasUsed: 1}, usdc.Decimals)
	assert.Error(t, err)
}
