package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/logging"
)

// runEstimate quotes the same swap against several RPC endpoints. Nodes
// disagree on gas price and sometimes on gas units; the spread shows how
// much the charged fee depends on the endpoint.
func runEstimate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	common := addCommonFlags(fs)
	sf := addSwapFlags(fs)
	fs.Parse(args)

	cfg, logger, err := loadConfig(common)
	if err != nil {
		return err
	}
	endpoints := splitList(cfg.RPCURL)
	if len(endpoints) == 0 {
		return fmt.Errorf("no RPC URL: set rpc_url or pass --rpc a,b,c")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "rpc\tchain\tgas units\tgas price (gwei)\tcost (native)\tfee\tswap amount")
	failures := 0
	for _, rpcURL := range endpoints {
		label := logging.RedactURL(rpcURL)
		quote, chainID, err := estimateOn(ctx, cfg, rpcURL, sf)
		if err != nil {
			failures++
			logger.Warn("estimate failed", "rpc", label, "error", err)
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\terror: %s\n", label, relayer.ErrorCode(err))
			continue
		}
		res := quote.Resolution
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s %s\t%s\n",
			label,
			chainID,
			res.Estimate.GasUnits,
			evm.FormatAmount(res.Estimate.GasPrice, 9),
			evm.FormatAmount(res.Estimate.CostWei, evm.NativeDecimals),
			evm.FormatAmount(res.FeeInToken, quote.TokenIn.Decimals), quote.TokenIn.Symbol,
			evm.FormatAmount(res.SwapAmount, quote.TokenIn.Decimals))
	}
	w.Flush()

	if failures == len(endpoints) {
		return fmt.Errorf("all %d endpoints failed", failures)
	}
	return nil
}

func estimateOn(ctx context.Context, cfg relayer.Config, rpcURL string, sf swapFlags) (*relayer.QuoteResult, int64, error) {
	logger := logging.Discard()
	node, err := dial(ctx, cfg, rpcURL, logger)
	if err != nil {
		return nil, 0, err
	}
	chainID, err := node.ChainID(ctx)
	if err != nil {
		return nil, 0, evm.NewNodeRPCError("eth_chainId", err)
	}
	owner, err := ownerFor(cfg, node)
	if err != nil {
		return nil, 0, err
	}
	req, err := sf.request(ctx, node, owner)
	if err != nil {
		return nil, 0, err
	}
	orch := relayer.NewOrchestrator(cfg, node, newResolver(cfg, node, logger), relayer.WithLogger(logger))
	quote, err := orch.Quote(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return quote, chainID.Int64(), nil
}
