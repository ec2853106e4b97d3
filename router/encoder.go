package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/universalswapper/relayer/evm"
)

var (
	payPortionArgs = mustArguments("address", "address", "uint256")
	v3SwapArgs     = mustArguments("address", "uint256", "uint256", "bytes", "bool")
)

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

// SwapInput describes the exact-input swap the router performs with whatever
// balance remains after the fee portion is paid.
type SwapInput struct {
	TokenIn      string
	Hops         []Hop
	AmountOutMin *big.Int
	Recipient    string
}

// SingleHop is a SwapInput through one pool
func SingleHop(tokenIn, tokenOut string, poolFee uint32, amountOutMin *big.Int, recipient string) SwapInput {
	return SwapInput{
		TokenIn:      tokenIn,
		Hops:         []Hop{{Fee: poolFee, Token: tokenOut}},
		AmountOutMin: amountOutMin,
		Recipient:    recipient,
	}
}

// Encoder builds the PAY_PORTION + V3_SWAP_EXACT_IN program. It is stateless.
type Encoder struct{}

// NewEncoder creates an encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns exactly two commands: PAY_PORTION of feeBips of tokenIn to
// feeRecipient, then V3_SWAP_EXACT_IN of the router's remaining balance with
// payerIsUser=false.
func (e *Encoder) Encode(feeRecipient string, feeBips *big.Int, swap SwapInput) ([]Command, error) {
	payPortion, err := EncodePayPortion(swap.TokenIn, feeRecipient, feeBips)
	if err != nil {
		return nil, err
	}
	path, err := EncodePath(swap.TokenIn, swap.Hops...)
	if err != nil {
		return nil, err
	}
	swapInput, err := EncodeV3SwapExactIn(swap.Recipient, ContractBalance(), swap.AmountOutMin, path, false)
	if err != nil {
		return nil, err
	}
	return []Command{
		{Opcode: PayPortion, Input: payPortion},
		{Opcode: V3SwapExactIn, Input: swapInput},
	}, nil
}

// EncodePayPortion encodes abi.encode(address token, address recipient, uint256 bips)
func EncodePayPortion(token, recipient string, bips *big.Int) ([]byte, error) {
	if !evm.IsValidAddress(token) {
		return nil, newEncodeError(ErrCodeInvalidAddress, "invalid token %q", token)
	}
	if !evm.IsValidAddress(recipient) {
		return nil, newEncodeError(ErrCodeInvalidAddress, "invalid fee recipient %q", recipient)
	}
	if bips == nil || bips.Sign() < 0 || bips.Cmp(big.NewInt(MaxBips)) > 0 {
		return nil, newEncodeError(ErrCodeInvalidFeeBips, "fee bips must be within [0, %d], got %v", MaxBips, bips)
	}
	return payPortionArgs.Pack(common.HexToAddress(token), common.HexToAddress(recipient), bips)
}

// EncodeV3SwapExactIn encodes abi.encode(address recipient, uint256 amountIn,
// uint256 amountOutMin, bytes path, bool payerIsUser)
func EncodeV3SwapExactIn(recipient string, amountIn, amountOutMin *big.Int, path []byte, payerIsUser bool) ([]byte, error) {
	if !evm.IsValidAddress(recipient) {
		return nil, newEncodeError(ErrCodeInvalidAddress, "invalid swap recipient %q", recipient)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, newEncodeError(ErrCodeInvalidAmount, "amount in must be positive")
	}
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	if amountOutMin.Sign() < 0 {
		return nil, newEncodeError(ErrCodeInvalidAmount, "amount out min must be non-negative")
	}
	if _, _, err := DecodePath(path); err != nil {
		return nil, err
	}
	return v3SwapArgs.Pack(common.HexToAddress(recipient), amountIn, amountOutMin, path, payerIsUser)
}

// PayPortionParams is a decoded PAY_PORTION input
type PayPortionParams struct {
	Token     common.Address
	Recipient common.Address
	Bips      *big.Int
}

// DecodePayPortion reverses EncodePayPortion
func DecodePayPortion(input []byte) (*PayPortionParams, error) {
	values, err := payPortionArgs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PAY_PORTION: %w", err)
	}
	return &PayPortionParams{
		Token:     values[0].(common.Address),
		Recipient: values[1].(common.Address),
		Bips:      values[2].(*big.Int),
	}, nil
}

// V3SwapExactInParams is a decoded V3_SWAP_EXACT_IN input
type V3SwapExactInParams struct {
	Recipient    common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []byte
	PayerIsUser  bool
}

// DecodeV3SwapExactIn reverses EncodeV3SwapExactIn
func DecodeV3SwapExactIn(input []byte) (*V3SwapExactInParams, error) {
	values, err := v3SwapArgs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("failed to decode V3_SWAP_EXACT_IN: %w", err)
	}
	return &V3SwapExactInParams{
		Recipient:    values[0].(common.Address),
		AmountIn:     values[1].(*big.Int),
		AmountOutMin: values[2].(*big.Int),
		Path:         values[3].([]byte),
		PayerIsUser:  values[4].(bool),
	}, nil
}
