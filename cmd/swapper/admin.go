package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/universalswapper/relayer/router"
)

func runValidSender(ctx context.Context, args []string) error {
	if len(args) == 0 || (args[0] != "get" && args[0] != "set") {
		return fmt.Errorf("usage: swapper valid-sender get|set [flags]")
	}
	action := args[0]

	fs := flag.NewFlagSet("valid-sender "+action, flag.ExitOnError)
	common := addCommonFlags(fs)
	sender := fs.String("sender", "", "account allowed to call execute; defaults to the relayer")
	fs.Parse(args[1:])

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}
	admin := router.NewAdmin(e.node, e.cfg.RouterAddress, e.logger)

	if action == "get" {
		current, err := admin.GetValidSender(ctx)
		if err != nil {
			return err
		}
		fmt.Println(current)
		return nil
	}

	target := *sender
	if target == "" {
		target = e.node.Address()
	}
	receipt, err := admin.SetValidSender(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("valid sender set to %s in tx %s (block %d)\n", target, receipt.TxHash, receipt.BlockNumber)
	return nil
}
