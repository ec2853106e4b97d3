// Command swapper submits gas-sponsored Permit2 swaps through the UniversalSwapper.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/logging"
	"github.com/universalswapper/relayer/metrics"
	"github.com/universalswapper/relayer/pkg/pricequote"
	evmsigner "github.com/universalswapper/relayer/signers/evm"
)

const defaultConfig = "./swapper.yaml"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"swap", "sign, price and submit one swap", runSwap},
	{"quote", "price a swap without submitting it", runQuote},
	{"serve", "run the HTTP swap service", runServe},
	{"estimate", "compare gas fee quotes across RPC endpoints", runEstimate},
	{"valid-sender", "get or set the router's valid sender", runValidSender},
	{"balances", "print native and token balances", runBalances},
	{"permit-transfer", "redeem a single-token permit directly with the relayer as spender", runPermitTransfer},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, cmd := range commands {
		if cmd.name != os.Args[1] {
			continue
		}
		if err := cmd.run(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: swapper <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", cmd.name, cmd.usage)
	}
}

// commonFlags are shared by every subcommand
type commonFlags struct {
	config   *string
	logLevel *string
	rpc      *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", defaultConfig, "path to the YAML config"),
		logLevel: fs.String("log-level", "info", "debug, info, warn or error"),
		rpc:      fs.String("rpc", "", "RPC URL; overrides rpc_url from the config"),
	}
}

// env is what a subcommand needs after config, logging and the node are set up
type env struct {
	cfg     relayer.Config
	logger  *slog.Logger
	node    *evmsigner.NodeClient
	metrics *metrics.SwapMetrics
}

func setup(ctx context.Context, flags commonFlags) (*env, error) {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	node, err := dial(ctx, cfg, cfg.RPCURL, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, node: node, metrics: metrics.New()}, nil
}

func loadConfig(flags commonFlags) (relayer.Config, *slog.Logger, error) {
	cfg, err := relayer.LoadConfig(*flags.config)
	if err != nil {
		return cfg, nil, err
	}
	if *flags.rpc != "" {
		cfg.RPCURL = *flags.rpc
	}
	logger, err := logging.Setup(cfg.Service, cfg.Environment, logging.Options{Level: *flags.logLevel, Output: os.Stderr})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func dial(ctx context.Context, cfg relayer.Config, rpcURL string, logger *slog.Logger) (*evmsigner.NodeClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL: set rpc_url or pass --rpc")
	}
	relayerKey, err := cfg.RelayerKey()
	if err != nil {
		return nil, err
	}
	opts := []evmsigner.NodeOption{
		evmsigner.WithPollInterval(cfg.Receipt.PollInterval.Duration),
		evmsigner.WithReceiptTimeout(cfg.Receipt.Timeout.Duration),
		evmsigner.WithLogger(logger),
	}
	node, err := evmsigner.Dial(ctx, rpcURL, relayerKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", logging.RedactURL(rpcURL), err)
	}
	logger.Info("connected to node", "rpc", logging.RedactURL(rpcURL), "relayer", node.Address())
	return node, nil
}

// owner loads the owner signer from the environment and binds it to node
func (e *env) owner() (*evmsigner.ClientSigner, error) {
	return ownerFor(e.cfg, e.node)
}

func ownerFor(cfg relayer.Config, node *evmsigner.NodeClient) (*evmsigner.ClientSigner, error) {
	key, err := cfg.OwnerKey()
	if err != nil {
		return nil, err
	}
	return evmsigner.NewClientSignerWithNode(key, node)
}

// newResolver registers a price oracle client for both quoting methods
func newResolver(cfg relayer.Config, node *evmsigner.NodeClient, logger *slog.Logger) *fees.Resolver {
	oracle := func(strategy pricequote.Strategy, url string) *pricequote.Client {
		return pricequote.NewClient(strategy, pricequote.Config{
			URL:               url,
			Timeout:           cfg.Quoting.Timeout.Duration,
			RequestsPerSecond: cfg.Quoting.RequestsPerSecond,
		})
	}
	return fees.NewResolver(node,
		fees.WithQuoter(fees.QuotingOnchain, oracle(pricequote.Onchain, orDefault(cfg.Quoting.OnchainURL, pricequote.DefaultOnchainURL))),
		fees.WithQuoter(fees.QuotingGraph, oracle(pricequote.Graph, orDefault(cfg.Quoting.GraphURL, pricequote.DefaultGraphURL))),
		fees.WithLogger(logger))
}

func (e *env) orchestrator() *relayer.Orchestrator {
	return relayer.NewOrchestrator(e.cfg, e.node, newResolver(e.cfg, e.node, e.logger),
		relayer.WithLogger(e.logger),
		relayer.WithRecorder(e.metrics))
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
