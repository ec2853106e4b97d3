package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/universalswapper/relayer/evm"
)

type account struct {
	label   string
	address string
}

// balanceReport holds native and token balances per account, in report order
type balanceReport struct {
	accounts []account
	tokens   []evm.Token
	// balances[i][0] is native, balances[i][j+1] is tokens[j]
	balances [][]*big.Int
}

func (e *env) swapAccounts(owner string) []account {
	return []account{
		{"owner", owner},
		{"relayer", e.node.Address()},
		{"gas fee recipient", e.cfg.GasFeeRecipient},
		{"swap fee recipient", e.cfg.SwapFeeRecipient},
	}
}

func (e *env) balanceReport(ctx context.Context, accounts []account, tokenAddresses ...string) (*balanceReport, error) {
	report := &balanceReport{accounts: accounts}
	for _, addr := range tokenAddresses {
		token, err := evm.ReadTokenInfo(ctx, e.node, addr)
		if err != nil {
			return nil, err
		}
		report.tokens = append(report.tokens, token)
	}

	for _, acct := range accounts {
		native, err := e.node.GetBalance(ctx, acct.address, "")
		if err != nil {
			return nil, fmt.Errorf("native balance of %s: %w", acct.label, err)
		}
		row := []*big.Int{native}
		for _, token := range report.tokens {
			bal, err := e.node.GetBalance(ctx, acct.address, token.Address)
			if err != nil {
				return nil, fmt.Errorf("%s balance of %s: %w", token.Symbol, acct.label, err)
			}
			row = append(row, bal)
		}
		report.balances = append(report.balances, row)
	}
	return report, nil
}

func (r *balanceReport) header(w io.Writer) {
	fmt.Fprint(w, "account\taddress\tnative")
	for _, token := range r.tokens {
		fmt.Fprintf(w, "\t%s", token.Symbol)
	}
	fmt.Fprintln(w)
}

func (r *balanceReport) print(out io.Writer, title string) {
	fmt.Fprintf(out, "balances %s\n", title)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	r.header(w)
	for i, acct := range r.accounts {
		fmt.Fprintf(w, "%s\t%s\t%s", acct.label, acct.address, evm.FormatAmount(r.balances[i][0], evm.NativeDecimals))
		for j, token := range r.tokens {
			fmt.Fprintf(w, "\t%s", evm.FormatAmount(r.balances[i][j+1], token.Decimals))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func (r *balanceReport) printDelta(out io.Writer, before *balanceReport) {
	fmt.Fprintln(out, "balance changes")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	r.header(w)
	for i, acct := range r.accounts {
		fmt.Fprintf(w, "%s\t%s\t%s", acct.label, acct.address,
			deltaString(before.balances[i][0], r.balances[i][0], evm.NativeDecimals))
		for j, token := range r.tokens {
			fmt.Fprintf(w, "\t%s", deltaString(before.balances[i][j+1], r.balances[i][j+1], token.Decimals))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func runBalances(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balances", flag.ExitOnError)
	common := addCommonFlags(fs)
	tokens := fs.String("tokens", "", "comma separated token addresses")
	extra := fs.String("accounts", "", "comma separated extra accounts to include")
	fs.Parse(args)

	e, err := setup(ctx, common)
	if err != nil {
		return err
	}

	accounts := []account{
		{"relayer", e.node.Address()},
		{"gas fee recipient", e.cfg.GasFeeRecipient},
		{"swap fee recipient", e.cfg.SwapFeeRecipient},
	}
	if owner, err := e.owner(); err == nil {
		accounts = append([]account{{"owner", owner.Address()}}, accounts...)
	}
	for i, addr := range splitList(*extra) {
		if !evm.IsValidAddress(addr) {
			return fmt.Errorf("--accounts: invalid address %q", addr)
		}
		accounts = append(accounts, account{fmt.Sprintf("account %d", i+1), evm.NormalizeAddress(addr)})
	}

	report, err := e.balanceReport(ctx, accounts, splitList(*tokens)...)
	if err != nil {
		return err
	}
	report.print(os.Stdout, "now")
	return nil
}
