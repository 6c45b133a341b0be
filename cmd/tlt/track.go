package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var trackCmd = &cobra.Command{
	Use:     "track <lat,lon> [lat,lon ...]",
	GroupID: "records",
	Short:   "Record GPS samples against the active shift",
	Long: `Record one or more GPS location samples for the active shift.

Each argument is a coordinate pair like "45.5017,-73.5673". Samples are
written to the local database in a single transaction and queued for batched
upload. There must be an active shift; samples cannot exist without one.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		owner := eng.requireOwner()
		accuracy, _ := cmd.Flags().GetFloat64("accuracy")
		speed, _ := cmd.Flags().GetFloat64("speed")

		active, err := eng.store.ActiveShift(cmd.Context(), owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: no active shift; run 'tlt shift start' first\n")
			os.Exit(1)
		}

		now := time.Now()
		samples := make([]*record.LocationSample, 0, len(args))
		for _, arg := range args {
			lat, lon, err := parseCoordinate(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			samples = append(samples, record.NewLocationSample(active.ID, lat, lon, accuracy, speed, now))
		}

		if err := eng.store.InsertLocations(cmd.Context(), samples); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording samples: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Recorded %d sample(s) for shift %s\n", ui.RenderPass("✓"), len(samples), shortID(active.ID))
	},
}

func parseCoordinate(s string) (lat, lon float64, err error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid coordinate %q (expected lat,lon)", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	return lat, lon, nil
}

func init() {
	trackCmd.Flags().Float64("accuracy", 10, "Horizontal accuracy in meters")
	trackCmd.Flags().Float64("speed", 0, "Speed in meters per second")
	rootCmd.AddCommand(trackCmd)
}
