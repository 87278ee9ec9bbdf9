/*
Package cli wires configuration, storage, sync and the HTTP API into the
crewtime command.

COMMANDS:
  serve     Device API with background sync
  hub       Remote hub shared by devices
  sync      One sync run, prints the report
  export    Month export to CSV or XLSX
  summary   Month totals for one employee

All commands accept --config; see package config for sources and keys.
*/
package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/warp/crewtime/config"
	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/ocr"
	"github.com/warp/crewtime/reconcile"
	"github.com/warp/crewtime/remote"
	"github.com/warp/crewtime/store/sqlite"
)

// cliActor is recorded for mutations made from the command line.
const cliActor = "cli"

// NewRootCommand builds the command tree. Each call returns fresh flags, so
// tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "crewtime",
		Short: "Crew time ledger with offline-first sync",
		Long: `crewtime records hours per employee and day (work, sick, vacation,
force-majeure), keeps an audit trail of every change, exports monthly
summaries and synchronizes with a shared hub.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./crewtime.yaml)")

	load := func() (config.Config, error) { return config.Load(configPath) }

	root.AddCommand(
		newServeCommand(load),
		newHubCommand(load),
		newSyncCommand(load),
		newExportCommand(load),
		newSummaryCommand(load),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

type configLoader func() (config.Config, error)

// app is the local side of crewtime: the store, the ledger over it and the
// optional sync and OCR collaborators.
type app struct {
	cfg       config.Config
	store     *sqlite.Store
	ledger    *ledger.Ledger
	deviceID  string
	sync      *reconcile.Scheduler
	extractor ledger.FieldExtractor
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deviceID, err := store.EnsureDeviceID(ctx, cfg.Device.ID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to resolve device id: %w", err)
	}

	a := &app{cfg: cfg, store: store, ledger: ledger.New(store), deviceID: deviceID}

	if cfg.SyncEnabled() {
		client := remote.NewClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)
		r := reconcile.New(a.ledger, client, deviceID, reconcile.WithBatchSize(cfg.Sync.BatchSize))
		a.sync = reconcile.NewScheduler(r, cfg.Sync.Interval)
		a.sync.BackoffMax = cfg.Sync.BackoffMax
		a.sync.OnComplete = logSyncResult
	}
	if cfg.OCREnabled() {
		a.extractor = ocr.NewClient(cfg.OCR.URL, cfg.OCR.Token, cfg.OCR.Timeout)
	}
	return a, nil
}

func (a *app) Close() error {
	if a.sync != nil {
		a.sync.Stop()
	}
	return a.store.Close()
}

func logSyncResult(report reconcile.Report, err error) {
	if err != nil {
		if reconcile.IsRetryable(err) {
			log.Printf("[Sync] Will retry: %v", err)
		}
		return
	}
	for _, c := range report.Conflicts {
		log.Printf("[Sync] %s: %s won (local rev %d, remote rev %d)", c.Key, c.Winner, c.LocalRevision, c.RemoteRevision)
	}
}
