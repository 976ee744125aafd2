// Package cmd provides CLI commands for ledger-bridge.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/engine"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/orchestrator"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/rates"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledger-bridge",
	Short: "Reconcile personal and company budget ledgers",
	Long: `ledger-bridge keeps money movements consistent across a personal
budget and one or more company budgets hosted on the same budgeting
service.

It supports:
- Mirroring transactions between linked accounts with currency conversion
- Deduplicating against genuine transfers entered on both sides
- Propagating source edits and restoring hand-edited mirrors
- An append-only decision log for every sync run

Example:
  ledger-bridge sync
  ledger-bridge sync --dry-run
  ledger-bridge stats
  ledger-bridge serve --addr :8090`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setupOrchestrator wires the full stack from configuration. The caller owns
// the returned store and must close it.
func setupOrchestrator() (*orchestrator.Orchestrator, *store.Store) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	err = cfg.Validate("ledger.apiUrl", "ledger.accessToken", "dbPath", "rates", "topology")
	exitOnError(err, "invalid configuration")

	slog.Debug("Opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	exitOnError(err, "failed to open database")

	client := ledger.NewClient(ledger.ClientConfig{
		APIURL:      cfg.Ledger.APIURL,
		AccessToken: cfg.Ledger.AccessToken,
		Timeout:     time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second,
	})

	table, err := rates.Load(cfg.Rates)
	exitOnError(err, "failed to load rate table")

	topo, err := config.LoadTopology(cfg.Topology)
	exitOnError(err, "failed to load topology")

	eng := engine.New(client, table, st, engine.Options{
		MatchWindowDays:     topo.MatchWindowDays,
		MatchAmountSlackPct: topo.MatchAmountSlackPct,
		Logger:              slog.Default(),
	})

	orch := orchestrator.New(orchestrator.NewCycleLock(), eng, st, topo, slog.Default())
	return orch, st
}
