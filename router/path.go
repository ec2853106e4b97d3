package router

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/universalswapper/relayer/evm"
)

const (
	addressSize = common.AddressLength
	feeSize     = 3

	// MaxPoolFee is the largest fee tier a uint24 can carry
	MaxPoolFee = 1<<24 - 1

	// DefaultPoolFee is the 0.05% tier
	DefaultPoolFee = 500
)

// Hop is one pool in a V3 path: the fee tier and the token it swaps into
type Hop struct {
	Fee   uint32
	Token string
}

// EncodePath packs tokenIn || fee || token [|| fee || token ...] the way
// solidityPack(address, uint24, address, ...) does.
func EncodePath(tokenIn string, hops ...Hop) ([]byte, error) {
	if len(hops) == 0 {
		return nil, newEncodeError(ErrCodeInvalidPath, "path needs at least one hop")
	}
	if !evm.IsValidAddress(tokenIn) {
		return nil, newEncodeError(ErrCodeInvalidAddress, "invalid path token %q", tokenIn)
	}

	path := make([]byte, 0, addressSize+len(hops)*(feeSize+addressSize))
	path = append(path, common.HexToAddress(tokenIn).Bytes()...)
	for i, hop := range hops {
		if hop.Fee > MaxPoolFee {
			return nil, newEncodeError(ErrCodeInvalidPath, "hop %d: fee %d does not fit uint24", i, hop.Fee)
		}
		if !evm.IsValidAddress(hop.Token) {
			return nil, newEncodeError(ErrCodeInvalidAddress, "hop %d: invalid token %q", i, hop.Token)
		}
		path = append(path, byte(hop.Fee>>16), byte(hop.Fee>>8), byte(hop.Fee))
		path = append(path, common.HexToAddress(hop.Token).Bytes()...)
	}
	return path, nil
}

// DecodePath splits a packed path back into its input token and hops
func DecodePath(path []byte) (string, []Hop, error) {
	if len(path) < addressSize+feeSize+addressSize || (len(path)-addressSize)%(feeSize+addressSize) != 0 {
		return "", nil, newEncodeError(ErrCodeInvalidPath, "invalid path length %d", len(path))
	}

	tokenIn := common.BytesToAddress(path[:addressSize]).Hex()
	var hops []Hop
	for offset := addressSize; offset < len(path); offset += feeSize + addressSize {
		fee := uint32(path[offset])<<16 | uint32(path[offset+1])<<8 | uint32(path[offset+2])
		token := common.BytesToAddress(path[offset+feeSize : offset+feeSize+addressSize]).Hex()
		hops = append(hops, Hop{Fee: fee, Token: token})
	}
	return tokenIn, hops, nil
}
