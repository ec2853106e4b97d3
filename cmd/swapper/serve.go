package main

import (
	"context"
	"flag"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/evm"
	swaphttp "github.com/universalswapper/relayer/http"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := addCommonFlags(fs)
	listen := fs.String("listen", "", "listen address; overrides http.listen from the config")
	fs.Parse(args)

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}
	owner, err := e.owner()
	if err != nil {
		return err
	}
	chainID, err := e.node.ChainID(ctx)
	if err != nil {
		return evm.NewNodeRPCError("eth_chainId", err)
	}

	orch := e.orchestrator()
	orch.OnAfterSwap(func(sc relayer.SwapResultContext) error {
		e.logger.Info("swap served", "swap_id", sc.ID, "tx_hash", sc.Result.TxHash)
		return nil
	})

	srv := swaphttp.NewServer(swaphttp.Config{
		Swapper: orch,
		Owners:  swaphttp.NewStaticOwners(owner),
		Relayer: e.node.Address(),
		ChainID: chainID.Int64(),
		Metrics: e.metrics.Handler(),
		Cache:   relayer.NewSwapCache(e.cfg.HTTP.SwapCacheTTL.Duration),
		Logger:  e.logger,
	})

	addr := e.cfg.HTTP.Listen
	if *listen != "" {
		addr = *listen
	}
	return srv.ListenAndServe(ctx, addr)
}
