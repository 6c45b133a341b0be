package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/quarantine"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var quarantineCmd = &cobra.Command{
	Use:     "quarantine",
	GroupID: "maintenance",
	Short:   "Inspect and resolve quarantined records",
	Long: `Manage records the remote service permanently rejected or that
exhausted their retry attempts.

Quarantined records are removed from the sync queue but their full snapshot
is preserved. 'retry' re-queues a copy with a fresh idempotency key;
'discard' marks the record permanently abandoned.`,
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		all, _ := cmd.Flags().GetBool("all")
		state := record.ResolutionPending
		if all {
			state = ""
		}

		quar := quarantine.New(eng.store, eng.logger)
		entries, err := quar.List(cmd.Context(), state)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing quarantine: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("Quarantine is empty")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Kind", "Error", "Quarantined", "State"})
		for _, q := range entries {
			t.AppendRow(table.Row{
				shortID(q.ID),
				q.Kind,
				fmt.Sprintf("%s: %s", q.ErrorCode, truncate(q.ErrorMessage, 40)),
				q.QuarantinedAt.Format("2006-01-02 15:04"),
				string(q.Resolution),
			})
		}
		t.Render()
	},
}

var quarantineRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Re-queue quarantined record(s) for sync",
	Long: `Re-queue a quarantined record (or all pending ones with --all).

The record re-enters the sync queue as a fresh submission: new idempotency
key, zeroed attempt count. The quarantine entry is marked resolved.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		quar := quarantine.New(eng.store, eng.logger)
		all, _ := cmd.Flags().GetBool("all")

		switch {
		case all:
			retried, failed, err := quar.RetryAll(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Re-queued %d record(s)\n", ui.RenderPass("✓"), retried)
			if failed > 0 {
				fmt.Printf("%s %d record(s) could not be re-queued (see sync log)\n", ui.RenderWarn("⚠"), failed)
			}

		case len(args) == 1:
			q, err := quar.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintf(os.Stderr, "Error: no quarantined record %s\n", args[0])
					os.Exit(1)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !quar.Retry(cmd.Context(), q) {
				fmt.Fprintf(os.Stderr, "Error: record %s could not be re-queued (see sync log)\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("%s Re-queued %s %s\n", ui.RenderPass("✓"), q.Kind, shortID(q.OriginalID))

		default:
			fmt.Fprintf(os.Stderr, "Error: provide a record ID or --all\n")
			os.Exit(1)
		}
	},
}

var quarantineDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Permanently abandon a quarantined record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		reason, _ := cmd.Flags().GetString("reason")

		quar := quarantine.New(eng.store, eng.logger)
		if err := quar.Discard(cmd.Context(), args[0], reason); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Error: no quarantined record %s\n", args[0])
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Discarded %s\n", ui.RenderPass("✓"), args[0])
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	quarantineListCmd.Flags().Bool("all", false, "Include resolved and discarded entries")
	quarantineRetryCmd.Flags().Bool("all", false, "Retry every pending quarantined record")
	quarantineDiscardCmd.Flags().String("reason", "", "Why the record is being discarded")

	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineRetryCmd)
	quarantineCmd.AddCommand(quarantineDiscardCmd)
	rootCmd.AddCommand(quarantineCmd)
}
