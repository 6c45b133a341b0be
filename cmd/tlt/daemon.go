package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/dashboard"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/lifecycle"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/orchestrator"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/quarantine"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/scheduler"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync engine (foreground)",
	Long: `Run the sync engine until interrupted.

The daemon watches the network state file for connectivity changes and runs
sync passes when the network allows: shortly after regaining an unmetered
connection, on a longer delay for metered connections (with a reduced batch
size), and periodically while unmetered connectivity holds. The storage
lifecycle monitor runs alongside it, pruning synced records past retention
and warning when the database approaches capacity.

With the dashboard enabled, progress snapshots and storage reports are
broadcast to WebSocket clients on the configured port.`,
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

		probe, err := scheduler.NewFileProbe(eng.cfg.Sync.NetworkStateFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error watching network state file: %v\n", err)
			os.Exit(1)
		}
		defer probe.Close()

		sched := scheduler.New(probe, eng.logger, scheduler.Config{
			UnmeteredDelay:    eng.cfg.Sync.UnmeteredDelay,
			MeteredDelay:      eng.cfg.Sync.MeteredDelay,
			BulkInterval:      eng.cfg.Sync.BulkInterval,
			AllowMetered:      eng.cfg.Sync.AllowMetered,
			MeteredBatchLimit: eng.cfg.Sync.MeteredBatchLimit,
		})

		monitor := lifecycle.New(eng.store, eng.logger, lifecycle.Config{
			Interval:         eng.cfg.Storage.CheckInterval,
			RetentionDays:    eng.cfg.Storage.RetentionDays,
			CapacityBytes:    eng.cfg.Storage.CapacityBytes,
			WarnFraction:     eng.cfg.Storage.WarnFraction,
			CriticalFraction: eng.cfg.Storage.CriticalFraction,
			MaxAuditEntries:  eng.cfg.Storage.MaxAuditEntries,
		})

		var dash *dashboard.Server
		if eng.cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(eng.cfg.Dashboard.Port, eng.store, eng.logger)
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			orch.OnProgress(dash.PublishProgress)
			monitor.OnReport(func(r lifecycle.Report) {
				dash.PublishStorage(r.Severity.String(), r.Metrics)
			})
			fmt.Printf("   Dashboard: ws://%s/ws\n", dash.Addr())
		}

		fmt.Printf("%s Sync daemon started\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", eng.cfg.DatabasePath())
		fmt.Printf("   Network state: %s\n", eng.cfg.Sync.NetworkStateFile)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				eng.logger.Error("scheduler stopped", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				eng.logger.Error("lifecycle monitor stopped", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			runSyncLoop(ctx, eng, orch, sched, dash)
		}()

		<-ctx.Done()
		wg.Wait()

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
		fmt.Println("\nSync daemon stopped")
	},
}

// runSyncLoop consumes scheduler triggers and runs sync passes, feeding pass
// backoff back into the scheduler as retry requests.
func runSyncLoop(ctx context.Context, eng *engine, orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, dash *dashboard.Server) {
	for {
		select {
		case <-ctx.Done():
			return

		case trig := <-sched.Triggers():
			if dash != nil {
				dash.PublishTrigger(trig)
			}
			eng.logger.Info("sync pass starting",
				"reason", trig.Reason,
				"network", trig.Class.String(),
				"batch_limit", trig.BatchLimit)

			summary, err := orch.SyncAll(ctx, trig.BatchLimit)
			if err != nil {
				if errors.Is(err, orchestrator.ErrPassInFlight) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				eng.logger.Error("sync pass failed", "error", err)
				continue
			}

			if !summary.Clean && summary.NextRetryIn > 0 {
				sched.ScheduleRetry(summary.NextRetryIn)
			}
			logPassSummary(eng, summary)
		}
	}
}

func logPassSummary(eng *engine, s orchestrator.Summary) {
	eng.logger.Info("sync pass finished",
		"synced", s.Synced,
		"failed", s.Failed,
		"quarantined", s.Quarantined,
		"skipped", s.Skipped,
		"clean", s.Clean,
		"elapsed", s.Finished.Sub(s.Started).Round(time.Millisecond).String())
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
