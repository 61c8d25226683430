// Package cmd implements the ledgerctl commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/microtrade/ledger-engine/internal/app"
	"github.com/microtrade/ledger-engine/internal/config"
	"github.com/microtrade/ledger-engine/internal/logger"
)

// options are the global flags shared by every command.
type options struct {
	configPath string
	statePath  string
	logLevel   string
}

// open builds a ledger from the global flags. Without a config file the CLI
// keeps its log in a local state file instead of memory.
func (o *options) open(ctx context.Context) (*app.App, error) {
	level, err := logger.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	logger.InitWriter(os.Stderr, "ledgerctl", level)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.statePath != "" {
		cfg.Store.Driver = config.DriverBlob
		cfg.Store.BlobBackend = config.BlobFile
		cfg.Store.StateFile = o.statePath
	} else if cfg.Store.Driver == config.DriverMemory {
		cfg.Store.Driver = config.DriverBlob
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	slog.Debug("opening ledger", "driver", cfg.Store.Driver, "state", cfg.Store.StateFile)
	return app.Build(ctx, cfg)
}

// NewRootCmd returns the ledgerctl command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Paper-trading ledger: record simulated fills and value the portfolio",
		Long: `ledgerctl records simulated buy and sell fills in an append-only trade log
and derives positions, weighted-average cost and unrealized P&L from it.

Examples:
  ledgerctl buy AAPL 2.5
  ledgerctl sell BTC 0.01 --kind limit --price 65000
  ledgerctl portfolio --price AAPL=195.20
  ledgerctl report`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVarP(&o.statePath, "state", "s", "", "trade log state file (overrides config store)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newOrderCmd(o, "buy"),
		newOrderCmd(o, "sell"),
		newQuoteCmd(o),
		newTradesCmd(o),
		newPositionsCmd(o),
		newPortfolioCmd(o),
		newEquityCmd(o),
		newClearCmd(o),
		newExportCmd(o),
		newImportCmd(o),
		newReportCmd(o),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
