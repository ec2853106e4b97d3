package main

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/router"
)

func TestParseHops(t *testing.T) {
	hops, err := parseHops("500:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2, 3000:0x6B175474E89094C44Da98b954EedeAC495271d0F")
	require.NoError(t, err)
	assert.Equal(t, []router.Hop{
		{Fee: 500, Token: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
		{Fee: 3000, Token: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
	}, hops)

	hops, err = parseHops("")
	require.NoError(t, err)
	assert.Empty(t, hops)

	for _, bad := range []string{"500", "x:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "500:"} {
		_, err := parseHops(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestDeltaString(t *testing.T) {
	assert.Equal(t, "+1.5", deltaString(big.NewInt(0), big.NewInt(1_500_000), 6))
	assert.Equal(t, "-0.25", deltaString(big.NewInt(1_000_000), big.NewInt(750_000), 6))
	assert.Equal(t, "0", deltaString(big.NewInt(7), big.NewInt(7), 6))
}

func TestBalanceReportPrint(t *testing.T) {
	usdc := evm.Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6}
	before := &balanceReport{
		accounts: []account{{"owner", "0x01"}},
		tokens:   []evm.Token{usdc},
		balances: [][]*big.Int{{big.NewInt(0), big.NewInt(100_000_000)}},
	}
	after := &balanceReport{
		accounts: before.accounts,
		tokens:   before.tokens,
		balances: [][]*big.Int{{big.NewInt(0), big.NewInt(0)}},
	}

	var out bytes.Buffer
	after.print(&out, "after")
	after.printDelta(&out, before)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "balances after", lines[0])
	assert.Contains(t, lines[1], "USDC")
	assert.Equal(t, "balance changes", lines[3])
	assert.Contains(t, lines[5], "-100")
}
