package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReadAllowance returns how much spender may pull from owner for token
func ReadAllowance(ctx context.Context, node NodeClient, token, owner, spender string) (*big.Int, error) {
	result, err := node.ReadContract(ctx, NormalizeAddress(token), ERC20AllowanceABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, NewNodeRPCError("allowance", err)
	}
	allowance, err := ToBigInt(result)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return allowance, nil
}

// ReadTokenInfo loads decimals, symbol and name from an ERC-20 contract
func ReadTokenInfo(ctx context.Context, node NodeClient, address string) (Token, error) {
	token := Token{Address: NormalizeAddress(address)}

	rawDecimals, err := node.ReadContract(ctx, token.Address, ERC20MetadataABI, "decimals")
	if err != nil {
		return token, NewNodeRPCError("decimals", err)
	}
	decimals, err := ToBigInt(rawDecimals)
	if err != nil {
		return token, fmt.Errorf("decimals: %w", err)
	}
	token.Decimals = int(decimals.Int64())

	rawSymbol, err := node.ReadContract(ctx, token.Address, ERC20MetadataABI, "symbol")
	if err != nil {
		return token, NewNodeRPCError("symbol", err)
	}
	if symbol, ok := rawSymbol.(string); ok {
		token.Symbol = symbol
	}

	rawName, err := node.ReadContract(ctx, token.Address, ERC20MetadataABI, "name")
	if err != nil {
		return token, NewNodeRPCError("name", err)
	}
	if name, ok := rawName.(string); ok {
		token.Name = name
	}

	return token, nil
}
