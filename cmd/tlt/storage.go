package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/lifecycle"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var storageCmd = &cobra.Command{
	Use:     "storage",
	GroupID: "maintenance",
	Short:   "Inspect and maintain local database storage",
}

var storageStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database size and per-kind usage",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		metrics, err := eng.store.ComputeMetrics(cmd.Context(), eng.cfg.Storage.CapacityBytes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error computing metrics: %v\n", err)
			os.Exit(1)
		}

		used := float64(metrics.TotalBytes) / float64(metrics.CapacityBytes)
		marker := ui.RenderPass("✓")
		if used >= eng.cfg.Storage.CriticalFraction {
			marker = ui.RenderFail("✗")
		} else if used >= eng.cfg.Storage.WarnFraction {
			marker = ui.RenderWarn("⚠")
		}

		fmt.Printf("\n%s Storage Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s\n", eng.cfg.DatabasePath())
		fmt.Printf("Size: %s of %s (%.0f%%) %s\n",
			humanize.Bytes(uint64(metrics.TotalBytes)),
			humanize.Bytes(uint64(metrics.CapacityBytes)),
			used*100, marker)
		fmt.Printf("Audit rows: %d\n\n", metrics.AuditRows)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Kind", "Rows", "Synced", "Est. Size"})
		for _, kind := range record.SyncPriority {
			usage := metrics.ByKind[kind]
			t.AppendRow(table.Row{
				kind,
				usage.Rows,
				usage.SyncedRows,
				humanize.Bytes(uint64(usage.Bytes)),
			})
		}
		t.Render()
		fmt.Println()
	},
}

var storageCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune synced records past retention",
	Long: `Delete synced records older than the retention window and trim the
audit log. Records that have not synced are never deleted, no matter their
age.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		monitor := lifecycle.New(eng.store, eng.logger, lifecycle.Config{
			Interval:         eng.cfg.Storage.CheckInterval,
			RetentionDays:    eng.cfg.Storage.RetentionDays,
			CapacityBytes:    eng.cfg.Storage.CapacityBytes,
			WarnFraction:     eng.cfg.Storage.WarnFraction,
			CriticalFraction: eng.cfg.Storage.CriticalFraction,
			MaxAuditEntries:  eng.cfg.Storage.MaxAuditEntries,
		})

		deleted, err := monitor.Cleanup(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during cleanup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Pruned %d synced record(s) older than %d days\n",
			ui.RenderPass("✓"), deleted, eng.cfg.Storage.RetentionDays)
	},
}

func init() {
	storageCmd.AddCommand(storageStatusCmd)
	storageCmd.AddCommand(storageCleanupCmd)
	rootCmd.AddCommand(storageCmd)
}
