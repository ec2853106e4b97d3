package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     *big.Int
		wantErr  bool
	}{
		{name: "whole number", amount: "100", decimals: 6, want: big.NewInt(100000000)},
		{name: "decimal amount", amount: "1.5", decimals: 6, want: big.NewInt(1500000)},
		{name: "small decimal", amount: "0.000001", decimals: 6, want: big.NewInt(1)},
		{name: "truncate extra decimals", amount: "1.1234567", decimals: 6, want: big.NewInt(1123456)},
		{name: "leading dot", amount: ".5", decimals: 2, want: big.NewInt(50)},
		{name: "ether precision", amount: "0.00025", decimals: 18, want: big.NewInt(250000000000000)},
		{name: "invalid format", amount: "1.2.3", decimals: 6, wantErr: true},
		{name: "not a number", amount: "abc", decimals: 6, wantErr: true},
		{name: "negative", amount: "-1", decimals: 6, wantErr: true},
		{name: "empty", amount: " ", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, got.Cmp(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals int
		want     string
	}{
		{name: "whole number", amount: big.NewInt(1000000), decimals: 6, want: "1"},
		{name: "with decimals", amount: big.NewInt(1500000), decimals: 6, want: "1.5"},
		{name: "small amount", amount: big.NewInt(1), decimals: 6, want: "0.000001"},
		{name: "zero", amount: big.NewInt(0), decimals: 6, want: "0"},
		{name: "nil amount", amount: nil, decimals: 6, want: "0"},
		{name: "no decimals", amount: big.NewInt(42), decimals: 0, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.amount, tt.decimals))
		})
	}
}

func TestMaxUint256(t *testing.T) {
	ceiling := MaxUint256()
	assert.Equal(t, 256, ceiling.BitLen())
	assert.Equal(t, 0, new(big.Int).Add(ceiling, big.NewInt(1)).Cmp(new(big.Int).Lsh(big.NewInt(1), 256)))
}

func TestToBigInt(t *testing.T) {
	v, err := ToBigInt(uint8(6))
	require.NoError(t, err)
	assert.Equal(t, int64(6), v.Int64())

	v, err = ToBigInt("0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())

	_, err = ToBigInt(struct{}{})
	assert.Error(t, err)
}

func TestHashTypedDataAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	domain := TypedDataDomain{
		Name:              "Mail",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC",
	}
	types := map[string][]TypedDataField{
		"Mail": {
			{Name: "to", Type: "address"},
			{Name: "contents", Type: "string"},
		},
	}
	message := map[string]interface{}{
		"to":       "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
		"contents": "Hello, Bob!",
	}

	digest1, err := HashTypedData(domain, types, "Mail", message)
	require.NoError(t, err)
	digest2, err := HashTypedData(domain, types, "Mail", message)
	require.NoError(t, err)
	assert.Len(t, digest1, 32)
	assert.Equal(t, digest1, digest2)

	sig, err := crypto.Sign(digest1, key)
	require.NoError(t, err)
	sig[64] += 27

	recovered, err := RecoverAddress(digest1, sig)
	require.NoError(t, err)
	assert.Equal(t, signer, recovered)

	t.Run("rejects short signature", func(t *testing.T) {
		_, err := RecoverAddress(digest1, sig[:64])
		assert.Error(t, err)
	})

	t.Run("different chain changes digest", func(t *testing.T) {
		other := domain
		other.ChainID = big.NewInt(2)
		digest3, err := HashTypedData(other, types, "Mail", message)
		require.NoError(t, err)
		assert.NotEqual(t, digest1, digest3)
	})
}

func TestErrors(t *testing.T) {
	assert.Nil(t, NewNodeRPCError("call", nil))

	err := NewNodeRPCError("estimateGas", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "estimateGas")

	reverted := &TransactionRevertedError{TxHash: "0xabc"}
	assert.Equal(t, "transaction 0xabc reverted", reverted.Error())
	reverted.Reason = "V3TooLittleReceived"
	assert.Contains(t, reverted.Error(), "V3TooLittleReceived")
}
