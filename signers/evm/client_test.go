package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerevm "github.com/universalswapper/relayer/evm"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

// fakeBackend mines every sent transaction after pendingPolls receipt queries
type fakeBackend struct {
	mu sync.Mutex

	chainID      *big.Int
	gas          uint64
	gasPrice     *big.Int
	callResult   []byte
	callErr      error
	estimateErr  error
	balance      *big.Int
	status       uint64
	pendingPolls int

	sent         []*types.Transaction
	calls        []ethereum.CallMsg
	polls        int
	chainIDCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(8453),
		gas:      210000,
		gasPrice: big.NewInt(2_000_000_000),
		balance:  big.NewInt(5e18),
		status:   types.ReceiptStatusSuccessful,
	}
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainIDCalls++
	return b.chainID, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	return b.callResult, b.callErr
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return b.gas, b.estimateErr
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.gasPrice, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.pendingPolls {
		return nil, ethereum.NotFound
	}
	for _, tx := range b.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:            b.status,
				TxHash:            txHash,
				GasUsed:           180000,
				EffectiveGasPrice: big.NewInt(1_500_000_000),
				BlockNumber:       big.NewInt(42),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return b.balance, nil
}

func newTestNode(t *testing.T, backend *fakeBackend) *NodeClient {
	t.Helper()
	key, err := ParsePrivateKey(testKey)
	require.NoError(t, err)
	return NewNodeClient(backend, key, WithPollInterval(time.Millisecond), WithReceiptTimeout(time.Second))
}

func TestClientSignerSignTypedData(t *testing.T) {
	signer, err := NewClientSignerFromPrivateKey(testKey)
	require.NoError(t, err)

	key, err := ParsePrivateKey(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), signer.Address())

	domain := relayerevm.TypedDataDomain{
		Name:              "Permit2",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0x000000000022D473030F116dDEE9F6B43aC78BA3",
	}
	typesTable := map[string][]relayerevm.TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Ping": {{Name: "value", Type: "uint256"}},
	}
	message := map[string]interface{}{"value": big.NewInt(7)}

	sig, err := signer.SignTypedData(context.Background(), domain, typesTable, "Ping", message)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	digest, err := relayerevm.HashTypedData(domain, typesTable, "Ping", message)
	require.NoError(t, err)
	recovered, err := relayerevm.RecoverAddress(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered.Hex())

	t.Run("writes need a node", func(t *testing.T) {
		_, err := signer.WriteContract(context.Background(), domain.VerifyingContract, relayerevm.ERC20ApproveABI, "approve")
		assert.Error(t, err)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := NewClientSignerFromPrivateKey("0x1234")
		assert.Error(t, err)
	})
}

func TestNodeClientSendAndWait(t *testing.T) {
	backend := newFakeBackend()
	backend.pendingPolls = 2
	node := newTestNode(t, backend)
	ctx := context.Background()

	hash, err := node.WriteContract(ctx, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", relayerevm.ERC20ApproveABI, "approve",
		common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"), relayerevm.MaxUint256())
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash().Hex())
	assert.Equal(t, uint64(210000), tx.Gas())
	assert.Equal(t, int64(2_000_000_000), tx.GasPrice().Int64())
	sender, err := types.Sender(types.LatestSignerForChainID(backend.chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, node.Address(), sender.Hex())

	receipt, err := node.WaitForTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(relayerevm.TxStatusSuccess), receipt.Status)
	assert.Equal(t, uint64(180000), receipt.GasUsed)
	assert.Equal(t, int64(1_500_000_000), receipt.EffectiveGasPrice.Int64())
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	assert.Equal(t, 3, backend.polls)
}

func TestNodeClientRevertReason(t *testing.T) {
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	encoded, err := abi.Arguments{{Type: stringType}}.Pack("V3TooLittleReceived")
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.status = types.ReceiptStatusFailed
	backend.callErr = &revertError{data: hexutil.Encode(append(append([]byte{}, selector...), encoded...))}
	node := newTestNode(t, backend)
	ctx := context.Background()

	hash, err := node.SendTransaction(ctx, "0x3333333333333333333333333333333333333333", []byte{0xde, 0xad})
	require.NoError(t, err)

	receipt, err := node.WaitForTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(relayerevm.TxStatusFailed), receipt.Status)
	assert.Equal(t, "V3TooLittleReceived", receipt.RevertReason)

	require.Len(t, backend.calls, 1)
	assert.Equal(t, []byte{0xde, 0xad}, backend.calls[0].Data)
	assert.Equal(t, node.Address(), backend.calls[0].From.Hex())
}

func TestNodeClientEstimateFee(t *testing.T) {
	backend := newFakeBackend()
	node := newTestNode(t, backend)

	fee, err := node.EstimateFee(context.Background(), relayerevm.CallRequest{To: "0x3333333333333333333333333333333333333333"})
	require.NoError(t, err)
	assert.Equal(t, uint64(210000), fee.GasUnits)
	assert.Equal(t, int64(2_000_000_000), fee.GasPrice.Int64())

	backend.estimateErr = errors.New("insufficient funds")
	_, err = node.EstimateFee(context.Background(), relayerevm.CallRequest{To: "0x3333333333333333333333333333333333333333"})
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestNodeClientReadsAndBalances(t *testing.T) {
	uintType, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	encoded, err := abi.Arguments{{Type: uintType}}.Pack(big.NewInt(99_000_000))
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.callResult = encoded
	node := newTestNode(t, backend)
	ctx := context.Background()

	result, err := node.ReadContract(ctx, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", relayerevm.ERC20BalanceOfABI, "balanceOf",
		common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	assert.Equal(t, int64(99_000_000), result.(*big.Int).Int64())

	tokenBalance, err := node.GetBalance(ctx, "0x2222222222222222222222222222222222222222", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.Equal(t, int64(99_000_000), tokenBalance.Int64())

	native, err := node.GetBalance(ctx, "0x2222222222222222222222222222222222222222", "")
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000000", native.String())

	backend.callResult = nil
	_, err = node.ReadContract(ctx, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", relayerevm.ERC20BalanceOfABI, "balanceOf",
		common.HexToAddress("0x2222222222222222222222222222222222222222"))
	assert.Error(t, err)
}

func TestNodeClientChainID(t *testing.T) {
	backend := newFakeBackend()
	node := newTestNode(t, backend)

	chainID, err := node.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8453), chainID.Int64())
	assert.Equal(t, 1, backend.chainIDCalls)

	key, err := ParsePrivateKey(testKey)
	require.NoError(t, err)
	pinned := NewNodeClient(backend, key, WithChainID(big.NewInt(1)))
	chainID, err = pinned.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), chainID.Int64())
	assert.Equal(t, 1, backend.chainIDCalls)
}

func TestOwnerSendsFromOwnKey(t *testing.T) {
	backend := newFakeBackend()
	relayer := newTestNode(t, backend)

	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner, err := NewClientSignerWithNode(hexutil.Encode(crypto.FromECDSA(ownerKey)), relayer)
	require.NoError(t, err)
	assert.NotEqual(t, relayer.Address(), owner.Address())

	hash, err := owner.WriteContract(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", relayerevm.ERC20ApproveABI, "approve",
		common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"), relayerevm.MaxUint256())
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(backend.chainID), backend.sent[0])
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), sender.Hex())

	receipt, err := owner.WaitForTransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(relayerevm.TxStatusSuccess), receipt.Status)
}
