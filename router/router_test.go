package router

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/test/mocks/node"
)

const (
	usdcAddr     = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	wethAddr     = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	linkAddr     = "0x514910771AF9Ca656af840dff83E8264EcF986CA"
	feeRecipient = "0x4444444444444444444444444444444444444444"
	ownerAddr    = "0x2222222222222222222222222222222222222222"
	relayerAddr  = "0x1111111111111111111111111111111111111111"
	swapperAddr  = "0x3333333333333333333333333333333333333333"
)

func TestEncodePath(t *testing.T) {
	t.Run("single hop matches solidityPack", func(t *testing.T) {
		path, err := EncodePath(usdcAddr, Hop{Fee: 500, Token: wethAddr})
		require.NoError(t, err)
		require.Len(t, path, 43)

		assert.Equal(t, common.HexToAddress(usdcAddr).Bytes(), path[:20])
		assert.Equal(t, []byte{0x00, 0x01, 0xf4}, path[20:23])
		assert.Equal(t, common.HexToAddress(wethAddr).Bytes(), path[23:])
	})

	t.Run("round trip is byte exact", func(t *testing.T) {
		hops := []Hop{{Fee: 500, Token: wethAddr}, {Fee: 3000, Token: linkAddr}}
		path, err := EncodePath(usdcAddr, hops...)
		require.NoError(t, err)
		assert.Len(t, path, 66)

		tokenIn, decoded, err := DecodePath(path)
		require.NoError(t, err)
		assert.Equal(t, usdcAddr, tokenIn)
		assert.Equal(t, hops, decoded)

		again, err := EncodePath(tokenIn, decoded...)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(path, again))
	})

	t.Run("max fee tier", func(t *testing.T) {
		path, err := EncodePath(usdcAddr, Hop{Fee: MaxPoolFee, Token: wethAddr})
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xff, 0xff}, path[20:23])
	})

	tests := []struct {
		name    string
		tokenIn string
		hops    []Hop
	}{
		{name: "no hops", tokenIn: usdcAddr},
		{name: "fee overflow", tokenIn: usdcAddr, hops: []Hop{{Fee: MaxPoolFee + 1, Token: wethAddr}}},
		{name: "bad token in", tokenIn: "usdc", hops: []Hop{{Fee: 500, Token: wethAddr}}},
		{name: "bad hop token", tokenIn: usdcAddr, hops: []Hop{{Fee: 500, Token: "weth"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodePath(tt.tokenIn, tt.hops...)
			var encErr *EncodeError
			assert.ErrorAs(t, err, &encErr)
		})
	}

	t.Run("decode rejects truncated path", func(t *testing.T) {
		path, err := EncodePath(usdcAddr, Hop{Fee: 500, Token: wethAddr})
		require.NoError(t, err)
		_, _, err = DecodePath(path[:42])
		assert.Error(t, err)
		_, _, err = DecodePath(path[:20])
		assert.Error(t, err)
	})
}

func TestEncoderEncode(t *testing.T) {
	enc := NewEncoder()
	swap := SingleHop(usdcAddr, wethAddr, DefaultPoolFee, big.NewInt(12345), ownerAddr)

	commands, err := enc.Encode(feeRecipient, big.NewInt(DefaultFeeBips), swap)
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, PayPortion, commands[0].Opcode)
	assert.Equal(t, V3SwapExactIn, commands[1].Opcode)

	opcodes, inputs := Split(commands)
	assert.Equal(t, []byte{0x06, 0x00}, opcodes)
	assert.Equal(t, len(opcodes), len(inputs))

	pay, err := DecodePayPortion(inputs[0])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(usdcAddr), pay.Token)
	assert.Equal(t, common.HexToAddress(feeRecipient), pay.Recipient)
	assert.Equal(t, int64(25), pay.Bips.Int64())
	assert.Len(t, inputs[0], 96)

	v3, err := DecodeV3SwapExactIn(inputs[1])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(ownerAddr), v3.Recipient)
	assert.Equal(t, 0, v3.AmountIn.Cmp(ContractBalance()))
	assert.Equal(t, int64(12345), v3.AmountOutMin.Int64())
	assert.False(t, v3.PayerIsUser)

	expectedPath, err := EncodePath(usdcAddr, Hop{Fee: 500, Token: wethAddr})
	require.NoError(t, err)
	assert.Equal(t, expectedPath, v3.Path)

	t.Run("fee bips above 100 percent", func(t *testing.T) {
		_, err := enc.Encode(feeRecipient, big.NewInt(MaxBips+1), swap)
		var encErr *EncodeError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, ErrCodeInvalidFeeBips, encErr.Code)
	})

	t.Run("bad recipient", func(t *testing.T) {
		bad := swap
		bad.Recipient = "me"
		_, err := enc.Encode(feeRecipient, big.NewInt(DefaultFeeBips), bad)
		assert.Error(t, err)
	})

	t.Run("nil amount out min encodes zero", func(t *testing.T) {
		loose := swap
		loose.AmountOutMin = nil
		commands, err := enc.Encode(feeRecipient, big.NewInt(DefaultFeeBips), loose)
		require.NoError(t, err)
		v3, err := DecodeV3SwapExactIn(commands[1].Input)
		require.NoError(t, err)
		assert.Equal(t, int64(0), v3.AmountOutMin.Int64())
	})
}

func TestContractBalance(t *testing.T) {
	cb := ContractBalance()
	assert.Equal(t, 256, cb.BitLen())
	assert.Equal(t, "0x8000000000000000000000000000000000000000000000000000000000000000", "0x"+cb.Text(16))
}

func TestJoin(t *testing.T) {
	commands, err := Join([]byte{PayPortion, V3SwapExactIn}, [][]byte{{1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, "PAY_PORTION[1 bytes]", commands[0].String())

	_, err = Join([]byte{PayPortion}, nil)
	assert.Error(t, err)

	assert.Equal(t, "UNKNOWN(0x7f)", CommandName(0x7f))
}

func testPlan(t *testing.T) SwapPlan {
	t.Helper()
	commands, err := NewEncoder().Encode(feeRecipient, big.NewInt(DefaultFeeBips),
		SingleHop(usdcAddr, wethAddr, DefaultPoolFee, big.NewInt(1), ownerAddr))
	require.NoError(t, err)

	return SwapPlan{
		Swap: SwapParams{TokenOut: wethAddr, AmountOutMin: big.NewInt(1), Swapper: ownerAddr},
		Permit2: Permit2Params{
			Permit: permit2.PermitBatchTransferFrom{
				Permitted: []permit2.TokenPermissions{
					{Token: usdcAddr, Amount: big.NewInt(1_000_000)},
					{Token: usdcAddr, Amount: big.NewInt(99_000_000)},
				},
				Spender:  swapperAddr,
				Nonce:    big.NewInt(77),
				Deadline: big.NewInt(1700001800),
			},
			TransferDetails: []permit2.SignatureTransferDetails{
				{To: feeRecipient, RequestedAmount: big.NewInt(1_000_000)},
				{To: swapperAddr, RequestedAmount: big.NewInt(99_000_000)},
			},
			Signature: bytes.Repeat([]byte{0xab}, 65),
		},
		Universal: NewUniversalParams(commands, big.NewInt(1700001800)),
	}
}

func TestSwapPlanCalldata(t *testing.T) {
	plan := testPlan(t)

	data, err := plan.Calldata()
	require.NoError(t, err)
	assert.Equal(t, executeABI.Methods[FunctionExecute].ID, data[:4])

	decoded, err := DecodeExecute(data)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(wethAddr), decoded.Swap.TokenOut)
	assert.Equal(t, common.HexToAddress(ownerAddr), decoded.Swap.SwapperAddress)
	require.Len(t, decoded.Permit2.Permit.Permitted, 2)
	assert.Equal(t, int64(1_000_000), decoded.Permit2.Permit.Permitted[0].Amount.Int64())
	assert.Equal(t, int64(77), decoded.Permit2.Permit.Nonce.Int64())
	require.Len(t, decoded.Permit2.TransferDetails, 2)
	assert.Equal(t, common.HexToAddress(feeRecipient), decoded.Permit2.TransferDetails[0].To)
	assert.Equal(t, plan.Permit2.Signature, decoded.Permit2.Signature)
	assert.Equal(t, []byte{PayPortion, V3SwapExactIn}, decoded.Universal.Commands)
	assert.Equal(t, plan.Universal.Inputs, decoded.Universal.Inputs)

	t.Run("mismatched universal params", func(t *testing.T) {
		broken := testPlan(t)
		broken.Universal.Inputs = broken.Universal.Inputs[:1]
		_, err := broken.Calldata()
		var encErr *EncodeError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, ErrCodeLengthMismatch, encErr.Code)
	})

	t.Run("not an execute call", func(t *testing.T) {
		_, err := DecodeExecute([]byte{1, 2, 3, 4, 5})
		assert.Error(t, err)
	})
}

func TestAdmin(t *testing.T) {
	ctx := context.Background()
	mock := node.NewClient(relayerAddr, 1)
	admin := NewAdmin(mock, swapperAddr, nil)

	sender, err := admin.GetValidSender(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}.Hex(), sender)

	receipt, err := admin.SetValidSender(ctx, relayerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Status)

	sender, err = admin.GetValidSender(ctx)
	require.NoError(t, err)
	assert.Equal(t, relayerAddr, sender)

	_, err = admin.SetValidSender(ctx, "relayer")
	assert.Error(t, err)

	mock.FailFunctions[FunctionSetValidSender] = true
	_, err = admin.SetValidSender(ctx, ownerAddr)
	assert.Error(t, err)
}

func TestParseExecuteError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{msg: "execution reverted: V3TooLittleReceived()", want: ErrCodeTooLittleReceived},
		{msg: "execution reverted: TransactionDeadlinePassed()", want: ErrCodeDeadlinePassed},
		{msg: "execution reverted: InvalidSender()", want: ErrCodeInvalidSender},
		{msg: "execution reverted: InsufficientToken()", want: ErrCodeInsufficientToken},
		{msg: "execution reverted: InvalidNonce()", want: permit2.ErrCodeInvalidNonce},
		{msg: "execution reverted: SignatureExpired(1)", want: permit2.ErrCodeSignatureExpired},
		{msg: "execution reverted", want: ErrCodeExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseExecuteError(errors.New(tt.msg)))
		})
	}
	assert.Equal(t, ErrCodeExecutionFailed, ParseRevertReason(""))
}
