package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display sync statistics",
	Long: `Display statistics about mapped transactions and sync runs.

Shows:
- Active transaction mappings
- Recorded genuine-transfer links
- Decision log size
- Per-budget watermarks and last run status

Example:
  ledger-bridge stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	err = cfg.Validate("dbPath")
	exitOnError(err, "invalid configuration")

	slog.Debug("Opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	exitOnError(err, "failed to open database")
	defer st.Close()

	stats, err := st.GetStats()
	exitOnError(err, "failed to get statistics")

	watermarks, err := st.Watermarks()
	exitOnError(err, "failed to get watermarks")

	fmt.Println("\n=== Sync Statistics ===")
	fmt.Printf("Active mappings:     %d\n", stats.ActiveMappings)
	fmt.Printf("Linked transfers:    %d\n", stats.LinkedTransactions)
	fmt.Printf("Decision log size:   %d\n", stats.LogEntries)

	if stats.LastRunAt.Valid {
		fmt.Printf("Last run:            %s\n", stats.LastRunAt.String)
	} else {
		fmt.Printf("Last run:            (never)\n")
	}

	if len(watermarks) > 0 {
		fmt.Println("\n=== Watermarks ===")
		for _, wm := range watermarks {
			fmt.Printf("%-24s %-10s synced=%d cursor=%s\n",
				wm.BudgetID, wm.LastStatus, wm.TotalSynced, wm.LastWatermark)
			if wm.LastError != "" {
				fmt.Printf("  last error: %s\n", wm.LastError)
			}
		}
	}

	fmt.Println()
}
