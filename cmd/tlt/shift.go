package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/geocode"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var shiftCmd = &cobra.Command{
	Use:     "shift",
	GroupID: "records",
	Short:   "Clock in, clock out, and list work shifts",
}

var shiftStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Clock in (start a new shift)",
	Long: `Start a new shift for the configured owner.

The shift is written to the local database immediately and queued for upload.
Starting a shift while another is active is an error; end the active shift
first.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		owner := eng.requireOwner()
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		notes, _ := cmd.Flags().GetString("notes")

		sh := record.NewShift(owner, time.Now(), lat, lon)
		sh.Notes = notes

		if err := eng.store.InsertShift(cmd.Context(), sh); err != nil {
			if errors.Is(err, store.ErrActiveShiftExists) {
				fmt.Fprintf(os.Stderr, "Error: a shift is already active for %s\n", owner)
				fmt.Fprintf(os.Stderr, "Run 'tlt shift end' to clock out first\n")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error starting shift: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Clocked in at %s\n", ui.RenderPass("✓"), sh.StartAt.Format("15:04:05"))
		fmt.Printf("   Shift: %s\n", sh.ID)
	},
}

var shiftEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Clock out (end the active shift)",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		owner := eng.requireOwner()
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")

		sh, err := eng.store.CompleteActiveShift(cmd.Context(), owner, time.Now(), lat, lon)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Error: no active shift for %s\n", owner)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error ending shift: %v\n", err)
			os.Exit(1)
		}

		dur := sh.EndAt.Sub(sh.StartAt).Round(time.Second)
		fmt.Printf("%s Clocked out at %s\n", ui.RenderPass("✓"), sh.EndAt.Format("15:04:05"))
		fmt.Printf("   Shift: %s (%v)\n", sh.ID, dur)
	},
}

var shiftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent shifts",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		owner := eng.requireOwner()
		limit, _ := cmd.Flags().GetInt("limit")
		locate, _ := cmd.Flags().GetBool("locate")

		shifts, err := eng.store.ListShifts(cmd.Context(), owner, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing shifts: %v\n", err)
			os.Exit(1)
		}
		if len(shifts) == 0 {
			fmt.Println("No shifts recorded")
			return
		}

		var resolver *geocode.Resolver
		if locate {
			var geo geocode.Geocoder
			if eng.cfg.Geocode.BaseURL != "" {
				geo = geocode.NewNominatimGeocoder(eng.cfg.Geocode.BaseURL, 5*time.Second)
			}
			resolver = geocode.NewResolver(geo, eng.cfg.Geocode.MaxConcurrent, eng.logger)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{"ID", "Started", "Ended", "Duration", "Sync"}
		if locate {
			header = append(header, "Location")
		}
		t.AppendHeader(header)
		for _, sh := range shifts {
			ended := "-"
			dur := "-"
			if sh.EndAt != nil {
				ended = sh.EndAt.Format("2006-01-02 15:04")
				dur = sh.EndAt.Sub(sh.StartAt).Round(time.Minute).String()
			}
			row := table.Row{
				shortID(sh.ID),
				sh.StartAt.Format("2006-01-02 15:04"),
				ended,
				dur,
				renderSyncStatus(sh.SyncStatus),
			}
			if locate {
				row = append(row, resolver.Resolve(cmd.Context(), sh.StartLat, sh.StartLon))
			}
			t.AppendRow(row)
		}
		t.Render()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderSyncStatus(st record.SyncStatus) string {
	switch st {
	case record.StatusSynced:
		return ui.RenderPass(string(st))
	case record.StatusError:
		return ui.RenderFail(string(st))
	case record.StatusSyncing:
		return ui.RenderAccent(string(st))
	default:
		return ui.RenderDim(string(st))
	}
}

func init() {
	shiftStartCmd.Flags().Float64("lat", 0, "Clock-in latitude")
	shiftStartCmd.Flags().Float64("lon", 0, "Clock-in longitude")
	shiftStartCmd.Flags().String("notes", "", "Free-form shift notes")

	shiftEndCmd.Flags().Float64("lat", 0, "Clock-out latitude")
	shiftEndCmd.Flags().Float64("lon", 0, "Clock-out longitude")

	shiftListCmd.Flags().Int("limit", 20, "Maximum shifts to show")
	shiftListCmd.Flags().Bool("locate", false, "Resolve clock-in coordinates to place labels")

	shiftCmd.AddCommand(shiftStartCmd)
	shiftCmd.AddCommand(shiftEndCmd)
	shiftCmd.AddCommand(shiftListCmd)
	rootCmd.AddCommand(shiftCmd)
}
