package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/router"
)

// swapFlags describe one swap on the command line. Amounts are decimal
// strings in whole tokens, e.g. --amount 100 for 100 USDC.
type swapFlags struct {
	tokenIn  *string
	tokenOut *string
	amount   *string
	minOut   *string
	method   *string
	via      *string
}

func addSwapFlags(fs *flag.FlagSet) swapFlags {
	return swapFlags{
		tokenIn:  fs.String("token-in", "", "address of the token the owner pays with"),
		tokenOut: fs.String("token-out", "", "address of the token the owner receives"),
		amount:   fs.String("amount", "", "amount of token-in, in whole tokens"),
		minOut:   fs.String("min-out", "0", "minimum token-out accepted, in whole tokens"),
		method:   fs.String("method", "", "fee quoting method: onchain or graph"),
		via:      fs.String("via", "", "multi-hop route as fee:token,fee:token ending in token-out"),
	}
}

// request resolves decimals for both tokens and builds the swap request
func (f swapFlags) request(ctx context.Context, node evm.NodeClient, owner evm.ClientSigner) (relayer.SwapRequest, error) {
	if *f.amount == "" {
		return relayer.SwapRequest{}, fmt.Errorf("--amount is required")
	}
	tokenIn, err := evm.ReadTokenInfo(ctx, node, *f.tokenIn)
	if err != nil {
		return relayer.SwapRequest{}, fmt.Errorf("token-in: %w", err)
	}
	tokenOut, err := evm.ReadTokenInfo(ctx, node, *f.tokenOut)
	if err != nil {
		return relayer.SwapRequest{}, fmt.Errorf("token-out: %w", err)
	}
	amountIn, err := evm.ParseAmount(*f.amount, tokenIn.Decimals)
	if err != nil {
		return relayer.SwapRequest{}, fmt.Errorf("--amount: %w", err)
	}
	minOut, err := evm.ParseAmount(*f.minOut, tokenOut.Decimals)
	if err != nil {
		return relayer.SwapRequest{}, fmt.Errorf("--min-out: %w", err)
	}
	hops, err := parseHops(*f.via)
	if err != nil {
		return relayer.SwapRequest{}, err
	}
	return relayer.SwapRequest{
		Owner:         owner,
		TokenIn:       tokenIn.Address,
		TokenOut:      tokenOut.Address,
		AmountIn:      amountIn,
		AmountOutMin:  minOut,
		Hops:          hops,
		QuotingMethod: fees.QuotingMethod(*f.method),
	}, nil
}

func parseHops(raw string) ([]router.Hop, error) {
	var hops []router.Hop
	for _, part := range splitList(raw) {
		fee, token, ok := strings.Cut(part, ":")
		if !ok || token == "" {
			return nil, fmt.Errorf("--via: hop %q is not fee:token", part)
		}
		n, err := strconv.ParseUint(fee, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("--via: hop %q: %w", part, err)
		}
		hops = append(hops, router.Hop{Fee: uint32(n), Token: token})
	}
	return hops, nil
}

func runSwap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("swap", flag.ExitOnError)
	common := addCommonFlags(fs)
	sf := addSwapFlags(fs)
	report := fs.Bool("report", false, "print balances before and after the swap")
	fs.Parse(args)

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}
	owner, err := e.owner()
	if err != nil {
		return err
	}
	req, err := sf.request(ctx, e.node, owner)
	if err != nil {
		return err
	}

	var snapshot *balanceReport
	if *report {
		snapshot, err = e.balanceReport(ctx, e.swapAccounts(owner.Address()), req.TokenIn, req.TokenOut)
		if err != nil {
			return err
		}
		snapshot.print(os.Stdout, "before")
	}

	result, err := e.orchestrator().Swap(ctx, req)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}

	if snapshot != nil {
		after, err := e.balanceReport(ctx, e.swapAccounts(owner.Address()), req.TokenIn, req.TokenOut)
		if err != nil {
			return err
		}
		after.print(os.Stdout, "after")
		after.printDelta(os.Stdout, snapshot)
	}
	return nil
}

func runQuote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	common := addCommonFlags(fs)
	sf := addSwapFlags(fs)
	fs.Parse(args)

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}
	owner, err := e.owner()
	if err != nil {
		return err
	}
	req, err := sf.request(ctx, e.node, owner)
	if err != nil {
		return err
	}
	quote, err := e.orchestrator().Quote(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(quote)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// deltaString formats after-before with an explicit sign
func deltaString(before, after *big.Int, decimals int) string {
	delta := new(big.Int).Sub(after, before)
	if delta.Sign() > 0 {
		return "+" + evm.FormatAmount(delta, decimals)
	}
	return evm.FormatAmount(delta, decimals)
}
