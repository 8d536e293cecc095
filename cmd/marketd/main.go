// Command marketd runs the royalty marketplace node and talks to it as a
// client.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/internal/logging"
)

var (
	flagConfig = &cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to config file"}
	flagKey    = &cli.StringFlag{Name: "key", Value: "market.key", Usage: "path to keystore file"}
	flagEnv    = &cli.StringFlag{Name: "env", Value: ".env", Usage: "dotenv file with MARKET_* variables"}
	flagRPC    = &cli.StringFlag{Name: "rpc", Value: "http://127.0.0.1:8545", Usage: "node RPC endpoint", EnvVars: []string{"MARKET_RPC_URL"}}
)

func main() {
	app := &cli.App{
		Name:  "marketd",
		Usage: "royalty marketplace ledger",
		Flags: []cli.Flag{flagConfig, flagKey, flagEnv, flagRPC},
		Commands: []*cli.Command{
			{
				Name:   "genkey",
				Usage:  "generate a key and store it in the keystore",
				Action: genKey,
			},
			{
				Name:   "start",
				Usage:  "run the node: sequencer and RPC server",
				Action: startNode,
			},
			{
				Name:      "buy",
				Usage:     "purchase a listed asset at its asking price",
				ArgsUsage: "<asset-id>",
				Action:    buy,
			},
			{
				Name:      "resell",
				Usage:     "relist a held asset, paying the relist fee",
				ArgsUsage: "<asset-id> <price>",
				Action:    resell,
			},
			{
				Name:      "give",
				Usage:     "hand a held asset to another principal",
				ArgsUsage: "<asset-id> <address>",
				Action:    give,
			},
			{
				Name:      "transfer",
				Usage:     "send balance to another principal",
				ArgsUsage: "<address> <amount>",
				Action:    transfer,
			},
			{
				Name:      "set-royalty-rate",
				Usage:     "replace the per-sale royalty rate (admin)",
				ArgsUsage: "<rate>",
				Action:    setRoyaltyRate,
			},
			{
				Name:      "set-relist-fee",
				Usage:     "replace the relist fee (admin)",
				ArgsUsage: "<amount>",
				Action:    setRelistFee,
			},
			{
				Name:      "listing",
				Usage:     "show one listing",
				ArgsUsage: "<asset-id>",
				Action:    showListing,
			},
			{
				Name:   "unsold",
				Usage:  "list assets for sale",
				Action: showUnsold,
			},
			{
				Name:      "holdings",
				Usage:     "list assets held outside the marketplace",
				ArgsUsage: "[address]",
				Action:    showHoldings,
			},
			{
				Name:      "balance",
				Usage:     "show balance and nonce",
				ArgsUsage: "[address]",
				Action:    showBalance,
			},
			{
				Name:      "receipt",
				Usage:     "show the outcome of a transaction",
				ArgsUsage: "<tx-id>",
				Action:    showReceipt,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the config and environment and installs the logger.
func setup(c *cli.Context) (*config.Config, func(), error) {
	cfg, err := config.Load(c.String(flagConfig.Name))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		cfg = config.DefaultConfig()
	}
	if err := config.LoadEnv(cfg, c.String(flagEnv.Name)); err != nil {
		return nil, nil, err
	}
	logFile := ""
	if c.Command.Name == "start" {
		logFile = cfg.LogFile
	}
	flush, err := logging.Init(logFile, cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flush, nil
}
