package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/orchestrator"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/quarantine"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Submit all pending records to the remote service in one pass.

Shifts upload first, then location samples in batches, then diagnostics.
Transport failures leave records pending for the next pass; records the
service permanently rejects are quarantined.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		api, err := eng.remoteClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		quar := quarantine.New(eng.store, eng.logger)
		orch := orchestrator.New(eng.store, api, quar, eng.logger, orchestrator.Config{
			BatchSize:   eng.cfg.Sync.BatchSize,
			MaxAttempts: eng.cfg.Sync.MaxAttempts,
			CallTimeout: eng.cfg.Remote.Timeout,
		})

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		start := time.Now()

		summary, err := orch.SyncAll(cmd.Context(), 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start).Round(time.Millisecond)
		if summary.Clean {
			fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed)
		} else {
			fmt.Printf("%s Sync finished with failures in %v\n", ui.RenderWarn("⚠"), elapsed)
		}
		fmt.Printf("   Synced: %d\n", summary.Synced)
		if summary.Failed > 0 {
			fmt.Printf("   Failed: %d\n", summary.Failed)
		}
		if summary.Quarantined > 0 {
			fmt.Printf("   Quarantined: %d\n", summary.Quarantined)
		}
		if summary.Skipped > 0 {
			fmt.Printf("   Skipped: %d (waiting on parent shift)\n", summary.Skipped)
		}
		if summary.NextRetryIn > 0 {
			fmt.Printf("   Next retry in: %v\n", summary.NextRetryIn.Round(time.Second))
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
