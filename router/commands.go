// Package router encodes Universal Router commands and the UniversalSwapper
// execute call that runs them after pulling funds through Permit2.
package router

import (
	"fmt"
	"math/big"
)

// Opcodes from the Universal Router Commands library
const (
	V3SwapExactIn       byte = 0x00
	V3SwapExactOut      byte = 0x01
	Permit2TransferFrom byte = 0x02
	Permit2PermitBatch  byte = 0x03
	Sweep               byte = 0x04
	Transfer            byte = 0x05
	PayPortion          byte = 0x06
	V2SwapExactIn       byte = 0x08
	V2SwapExactOut      byte = 0x09
	Permit2Permit       byte = 0x0a
	WrapETH             byte = 0x0b
	UnwrapWETH          byte = 0x0c
)

// MaxBips is 100% in basis points
const MaxBips = 10000

// DefaultFeeBips is the swap fee taken by PAY_PORTION (0.25%)
const DefaultFeeBips = 25

// DefaultDeadlineSeconds is how long the router accepts an execute call after it is built
const DefaultDeadlineSeconds = 30 * 60

var commandNames = map[byte]string{
	V3SwapExactIn:       "V3_SWAP_EXACT_IN",
	V3SwapExactOut:      "V3_SWAP_EXACT_OUT",
	Permit2TransferFrom: "PERMIT2_TRANSFER_FROM",
	Permit2PermitBatch:  "PERMIT2_PERMIT_BATCH",
	Sweep:               "SWEEP",
	Transfer:            "TRANSFER",
	PayPortion:          "PAY_PORTION",
	V2SwapExactIn:       "V2_SWAP_EXACT_IN",
	V2SwapExactOut:      "V2_SWAP_EXACT_OUT",
	Permit2Permit:       "PERMIT2_PERMIT",
	WrapETH:             "WRAP_ETH",
	UnwrapWETH:          "UNWRAP_WETH",
}

// ContractBalance tells the router to spend its entire balance of a token (1 << 255)
func ContractBalance() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 255)
}

// Command is one router instruction. Order is execution order.
type Command struct {
	Opcode byte
	Input  []byte
}

// CommandName returns the Commands.sol name of an opcode
func CommandName(opcode byte) string {
	if name, ok := commandNames[opcode]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", opcode)
}

func (c Command) String() string {
	return fmt.Sprintf("%s[%d bytes]", CommandName(c.Opcode), len(c.Input))
}

// Split returns the opcode string and input list for execute. Both have
// len(commands) entries and keep the command order.
func Split(commands []Command) ([]byte, [][]byte) {
	opcodes := make([]byte, len(commands))
	inputs := make([][]byte, len(commands))
	for i, c := range commands {
		opcodes[i] = c.Opcode
		inputs[i] = c.Input
	}
	return opcodes, inputs
}

// Join is the inverse of Split
func Join(opcodes []byte, inputs [][]byte) ([]Command, error) {
	if len(opcodes) != len(inputs) {
		return nil, &EncodeError{Code: ErrCodeLengthMismatch, Message: fmt.Sprintf("%d opcodes for %d inputs", len(opcodes), len(inputs))}
	}
	commands := make([]Command, len(opcodes))
	for i := range opcodes {
		commands[i] = Command{Opcode: opcodes[i], Input: inputs[i]}
	}
	return commands, nil
}
