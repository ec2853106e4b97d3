package router

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/universalswapper/relayer/permit2"
)

const (
	FunctionExecute        = "execute"
	FunctionSetValidSender = "setValidSender"
	FunctionGetValidSender = "getValidSender"
)

var (
	// UniversalSwapperExecuteABI pulls funds with a batch permit and runs router commands
	UniversalSwapperExecuteABI = []byte(`[
		{
			"type": "function",
			"name": "execute",
			"inputs": [
				{
					"name": "swapParams",
					"type": "tuple",
					"components": [
						{"name": "tokenOut", "type": "address"},
						{"name": "amountOutMin", "type": "uint256"},
						{"name": "swapperAddress", "type": "address"}
					]
				},
				{
					"name": "permit2Params",
					"type": "tuple",
					"components": [
						{
							"name": "permit",
							"type": "tuple",
							"components": [
								{
									"name": "permitted",
									"type": "tuple[]",
									"components": [
										{"name": "token", "type": "address"},
										{"name": "amount", "type": "uint256"}
									]
								},
								{"name": "nonce", "type": "uint256"},
								{"name": "deadline", "type": "uint256"}
							]
						},
						{
							"name": "transferDetails",
							"type": "tuple[]",
							"components": [
								{"name": "to", "type": "address"},
								{"name": "requestedAmount", "type": "uint256"}
							]
						},
						{"name": "signature", "type": "bytes"}
					]
				},
				{
					"name": "universalParams",
					"type": "tuple",
					"components": [
						{"name": "commands", "type": "bytes"},
						{"name": "inputs", "type": "bytes[]"},
						{"name": "deadline", "type": "uint256"}
					]
				}
			],
			"outputs": [],
			"stateMutability": "payable"
		}
	]`)

	// UniversalSwapperAdminABI covers the relayer allow-list
	UniversalSwapperAdminABI = []byte(`[
		{
			"type": "function",
			"name": "setValidSender",
			"inputs": [{"name": "validSender", "type": "address"}],
			"outputs": [],
			"stateMutability": "nonpayable"
		},
		{
			"type": "function",
			"name": "getValidSender",
			"inputs": [],
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view"
		}
	]`)

	executeABI = mustParseABI(UniversalSwapperExecuteABI)
)

func mustParseABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}
	return parsed
}

// SwapParams tells the swapper what the owner receives
type SwapParams struct {
	TokenOut     string
	AmountOutMin *big.Int
	Swapper      string
}

// Permit2Params is the signed batch permit and how to split it
type Permit2Params struct {
	Permit          permit2.PermitBatchTransferFrom
	TransferDetails []permit2.SignatureTransferDetails
	Signature       []byte
}

// UniversalParams is the router program and its deadline
type UniversalParams struct {
	Commands []byte
	Inputs   [][]byte
	Deadline *big.Int
}

// SwapPlan is everything one execute call carries. Built fresh per attempt.
type SwapPlan struct {
	Swap      SwapParams
	Permit2   Permit2Params
	Universal UniversalParams
}

// SwapParamsArg is the ABI tuple form of SwapParams
type SwapParamsArg struct {
	TokenOut       common.Address
	AmountOutMin   *big.Int
	SwapperAddress common.Address
}

// Permit2ParamsArg is the ABI tuple form of Permit2Params
type Permit2ParamsArg struct {
	Permit          permit2.BatchPermitArg
	TransferDetails []permit2.TransferDetailsArg
	Signature       []byte
}

// UniversalParamsArg is the ABI tuple form of UniversalParams
type UniversalParamsArg struct {
	Commands []byte
	Inputs   [][]byte
	Deadline *big.Int
}

// ExecuteArgs are the three execute arguments in ABI form
type ExecuteArgs struct {
	Swap      SwapParamsArg
	Permit2   Permit2ParamsArg
	Universal UniversalParamsArg
}

// NewUniversalParams splits commands into execute's parallel arrays
func NewUniversalParams(commands []Command, deadline *big.Int) UniversalParams {
	opcodes, inputs := Split(commands)
	return UniversalParams{Commands: opcodes, Inputs: inputs, Deadline: deadline}
}

// Args converts the plan into ABI tuples
func (p SwapPlan) Args() ExecuteArgs {
	amountOutMin := p.Swap.AmountOutMin
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	return ExecuteArgs{
		Swap: SwapParamsArg{
			TokenOut:       common.HexToAddress(p.Swap.TokenOut),
			AmountOutMin:   amountOutMin,
			SwapperAddress: common.HexToAddress(p.Swap.Swapper),
		},
		Permit2: Permit2ParamsArg{
			Permit:          p.Permit2.Permit.ToArg(),
			TransferDetails: permit2.TransferDetailsToArgs(p.Permit2.TransferDetails),
			Signature:       p.Permit2.Signature,
		},
		Universal: UniversalParamsArg{
			Commands: p.Universal.Commands,
			Inputs:   p.Universal.Inputs,
			Deadline: p.Universal.Deadline,
		},
	}
}

// Calldata packs execute(swapParams, permit2Params, universalParams)
func (p SwapPlan) Calldata() ([]byte, error) {
	if len(p.Universal.Commands) != len(p.Universal.Inputs) {
		return nil, newEncodeError(ErrCodeLengthMismatch, "%d commands for %d inputs",
			len(p.Universal.Commands), len(p.Universal.Inputs))
	}
	if p.Universal.Deadline == nil {
		return nil, newEncodeError(ErrCodeInvalidAmount, "router deadline is required")
	}
	args := p.Args()
	data, err := executeABI.Pack(FunctionExecute, args.Swap, args.Permit2, args.Universal)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return data, nil
}

// DecodeExecute unpacks execute calldata produced by Calldata
func DecodeExecute(data []byte) (*ExecuteArgs, error) {
	method := executeABI.Methods[FunctionExecute]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("calldata is not an execute call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack execute: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("execute: want 3 arguments, got %d", len(values))
	}

	out := &ExecuteArgs{}
	if err := convertArg(values[0], &out.Swap); err != nil {
		return nil, err
	}
	if err := convertArg(values[1], &out.Permit2); err != nil {
		return nil, err
	}
	if err := convertArg(values[2], &out.Universal); err != nil {
		return nil, err
	}
	return out, nil
}

func convertArg(value interface{}, target interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to convert %T: %v", value, r)
		}
	}()
	abi.ConvertType(value, target)
	return nil
}
