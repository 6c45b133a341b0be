package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "maintenance",
	Short:   "Inspect the sync audit trail",
}

var logTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent sync state transitions",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		n, _ := cmd.Flags().GetInt("lines")
		entries, err := eng.store.AuditTail(cmd.Context(), n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading audit trail: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("Audit trail is empty")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Kind", "Record", "Transition", "Detail"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.TS.Format("2006-01-02 15:04:05"),
				e.Kind,
				shortID(e.RecordID),
				fmt.Sprintf("%s → %s", e.FromStatus, e.ToStatus),
				truncate(e.Detail, 50),
			})
		}
		t.Render()
	},
}

func init() {
	logTailCmd.Flags().IntP("lines", "n", 50, "Number of entries to show")
	logCmd.AddCommand(logTailCmd)
	rootCmd.AddCommand(logCmd)
}
