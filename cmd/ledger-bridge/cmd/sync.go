package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var dryRun bool

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full reconciliation cycle",
	Long: `Run one full reconciliation cycle across all configured budgets.

This command:
1. Syncs every company-to-company link, both directions
2. Syncs personal-to-company links for each company, both directions
3. Records every decision in the SQLite audit log
4. Advances each budget's delta watermark on success

Example:
  ledger-bridge sync
  ledger-bridge sync --dry-run`,
	Run: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify the pending delta without writing anything")
}

func runSync(cmd *cobra.Command, args []string) {
	slog.Info("Starting sync", "dry_run", dryRun)

	orch, st := setupOrchestrator()
	defer st.Close()

	ctx := context.Background()

	if dryRun {
		plans, err := orch.PlanCycle(ctx)
		exitOnError(err, "failed to plan cycle")

		total := 0
		for _, plan := range plans {
			fmt.Printf("[DRY RUN] %s from %s\n", plan.Direction, plan.BudgetID)
			for _, change := range plan.Changes {
				fmt.Printf("  %-12s %s  %s  %d  (%s)\n",
					change.Class, change.TxID, change.Date, change.Amount, change.AccountID)
				total++
			}
		}
		fmt.Printf("[DRY RUN] %d pending transactions across %d directions\n", total, len(plans))
		return
	}

	report, err := orch.RunCycle(ctx)
	exitOnError(err, "sync cycle failed")

	fmt.Println("\n=== Cycle Report ===")
	fmt.Printf("Run ID:     %s\n", report.RunID)
	fmt.Printf("Directions: %d\n", len(report.Directions))
	fmt.Printf("Processed:  %d\n", report.Processed)
	fmt.Printf("Created:    %d\n", report.Created)
	fmt.Printf("Updated:    %d\n", report.Updated)
	fmt.Printf("Deleted:    %d\n", report.Deleted)
	fmt.Printf("Skipped:    %d\n", report.Skipped)
	fmt.Printf("Errors:     %d\n", report.Errors)
	fmt.Println()

	slog.Info("Sync completed",
		"run_id", report.RunID,
		"processed", report.Processed,
		"errors", report.Errors,
	)
}
