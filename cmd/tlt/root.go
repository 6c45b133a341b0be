package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/config"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/remote"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

var rootCmd = &cobra.Command{
	Use:   "tlt",
	Short: "Local-first shift and location tracking",
	Long: `tlt records work shifts and GPS location samples on this device and
synchronizes them to the remote service when connectivity allows.

All writes land in a local encrypted database first, so clock-in, clock-out,
and location capture work fully offline. A background sync engine uploads
pending records with exponential backoff and quarantines records the service
permanently rejects.`,
	SilenceUsage: true,
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Mirror sync log output to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Record Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance Commands:"},
	)
}

// engine bundles the handles every command needs.
type engine struct {
	cfg    *config.Config
	store  *store.Store
	logger *synclog.Logger
}

// openEngine loads config and opens the local database. Callers must call
// close when done.
func openEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureHome(); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Home, err)
	}

	logger := synclog.New(synclog.Options{
		Path:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Debug:      cfg.Log.Debug || debugFlag,
	})

	st, err := store.Open(cfg.DatabasePath(), store.FileKeychain{Path: cfg.KeyPath()}, logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	return &engine{cfg: cfg, store: st, logger: logger}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error closing database: %v\n", err)
	}
	e.logger.Close()
}

// remoteClient builds the sync service client from config. Returns an error
// when the remote endpoint is not configured.
func (e *engine) remoteClient() (remote.API, error) {
	if e.cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is not configured; set it in %s/config.yaml or TLT_REMOTE_BASE_URL", e.cfg.Home)
	}
	timeout := e.cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return remote.NewClient(e.cfg.Remote.BaseURL, e.cfg.Remote.APIKey, e.cfg.DeviceID, timeout), nil
}

// requireOwner returns the configured owner ID or exits with guidance.
func (e *engine) requireOwner() string {
	if e.cfg.OwnerID == "" {
		fmt.Fprintf(os.Stderr, "Error: owner_id is not configured\n")
		fmt.Fprintf(os.Stderr, "Set it in %s/config.yaml or via TLT_OWNER_ID\n", e.cfg.Home)
		os.Exit(1)
	}
	return e.cfg.OwnerID
}
