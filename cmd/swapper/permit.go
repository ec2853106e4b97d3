package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/permit2"
)

// runPermitTransfer has the owner sign a single-token permit for the relayer
// and redeems it straight against Permit2, without the router.
func runPermitTransfer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("permit-transfer", flag.ExitOnError)
	common := addCommonFlags(fs)
	tokenAddr := fs.String("token", "", "token to transfer")
	amount := fs.String("amount", "", "amount in whole tokens")
	to := fs.String("to", "", "recipient; defaults to the relayer")
	fs.Parse(args)

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}
	owner, err := e.owner()
	if err != nil {
		return err
	}
	token, err := evm.ReadTokenInfo(ctx, e.node, *tokenAddr)
	if err != nil {
		return err
	}
	value, err := evm.ParseAmount(*amount, token.Decimals)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}
	recipient := *to
	if recipient == "" {
		recipient = e.node.Address()
	}

	allowance, err := evm.ReadAllowance(ctx, e.node, token.Address, owner.Address(), e.cfg.Permit2Address)
	if err != nil {
		return err
	}
	if allowance.Cmp(value) < 0 {
		return fmt.Errorf("owner allowance for Permit2 is %s %s; approve Permit2 first",
			evm.FormatAmount(allowance, token.Decimals), token.Symbol)
	}

	allocator := permit2.NewNonceAllocator(e.node, e.cfg.Permit2Address,
		permit2.WithMaxAttempts(e.cfg.NonceAttempts),
		permit2.WithNonceLogger(e.logger))
	nonce, err := allocator.Allocate(ctx, owner.Address())
	if err != nil {
		return err
	}

	signer := permit2.NewPermitSigner(e.node, e.cfg.Permit2Address, permit2.WithSignerLogger(e.logger))
	signed, err := signer.SignSingle(ctx, owner,
		permit2.TokenPermissions{Token: token.Address, Amount: value},
		e.node.Address(), nonce, e.cfg.PermitDeadline.Duration)
	if err != nil {
		return err
	}

	client := permit2.NewClient(e.node, e.cfg.Permit2Address, e.logger)
	receipt, err := client.PermitTransferFrom(ctx, signed, permit2.SignatureTransferDetails{
		To:              recipient,
		RequestedAmount: new(big.Int).Set(value),
	})
	if err != nil {
		return err
	}
	fmt.Printf("transferred %s %s to %s in tx %s (gas used %d)\n",
		evm.FormatAmount(value, token.Decimals), token.Symbol, recipient, receipt.TxHash, receipt.GasUsed)
	return nil
}
