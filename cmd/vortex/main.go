// Package main is the CLI entry point for the vortex download orchestration
// engine: load config and catalog, plan jobs, drive the scheduler, and dump
// a health snapshot at the end of the run. Per spec.md §1's explicit
// out-of-scope list, this stays a thin flag-parsed surface — no interactive
// wizard, no shell completion, no rich terminal rendering — following the
// teacher's cmd/bot/main.go run()-returns-exit-code shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/catalog"
	"github.com/makutaku/vortex-go/internal/config"
	"github.com/makutaku/vortex-go/internal/correlation"
	"github.com/makutaku/vortex-go/internal/downloader"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/health"
	"github.com/makutaku/vortex-go/internal/logging"
	"github.com/makutaku/vortex-go/internal/planner"
	"github.com/makutaku/vortex-go/internal/provider"
	"github.com/makutaku/vortex-go/internal/provider/barchart"
	"github.com/makutaku/vortex-go/internal/provider/freecsv"
	"github.com/makutaku/vortex-go/internal/retry"
	"github.com/makutaku/vortex-go/internal/scheduler"
	"github.com/makutaku/vortex-go/internal/storage"
)

// Exit codes per spec.md §6.
const (
	exitOK            = 0
	exitAuth          = 2
	exitConfig        = 3
	exitConnection    = 4
	exitPermission    = 5
	exitStorage       = 6
	exitProvider      = 7
	exitInstrument    = 8
	exitUsage         = 9
	exitOtherExpected = 10
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		catalogPath string
		providerArg string
		startYear   int
		endYear     int
		dryRun      bool
		backfill    bool
		backend     string
		healthAddr  string
	)
	fs := flag.NewFlagSet("vortex", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	fs.StringVar(&catalogPath, "catalog", "catalog.yaml", "path to instrument catalog file")
	fs.StringVar(&providerArg, "provider", "freecsv", "data provider to use (freecsv|barchart)")
	fs.IntVar(&startYear, "start-year", 0, "override dateRange.startYear")
	fs.IntVar(&endYear, "end-year", 0, "override dateRange.endYear")
	fs.BoolVar(&dryRun, "dry-run", false, "plan and log only, no writes")
	fs.BoolVar(&backfill, "backfill", false, "use the backfill downloader instead of the updating one")
	fs.StringVar(&backend, "storage", "csv", "storage backend to use (csv|columnar)")
	fs.StringVar(&healthAddr, "health-addr", "", "if set, serve GET /health with a live snapshot on this address")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	if dryRun {
		cfg.General.DryRun = true
	}
	if startYear != 0 {
		cfg.DateRange.StartYear = startYear
	}
	if endYear != 0 {
		cfg.DateRange.EndYear = endYear
	}

	logger := logging.New("", cfg.General.DryRun)
	runID := correlation.New(logrus.NewEntry(logger))
	log := logging.WithRun(logger, runID)

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		log.WithError(err).Error("failed to load catalog")
		return exitConfig
	}

	dataProvider, err := buildProvider(providerArg, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to construct provider")
		return exitProvider
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("shutdown signal received, finishing current job then stopping")
		cancel()
	}()

	if err := dataProvider.Login(ctx); err != nil {
		log.WithError(err).Error("provider login failed")
		return exitAuth
	}
	defer func() { _ = dataProvider.Logout(ctx) }()

	registry := health.NewRegistry()
	breakerProvider := provider.NewBreakerProvider(dataProvider)
	registry.RegisterBreaker(dataProvider.Name(), breakerProvider)
	retryClient := retry.NewClient(breakerProvider, log)

	if healthAddr != "" {
		healthSrv := health.NewServer(healthAddr, registry, logger)
		go func() {
			if err := healthSrv.Start(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("health server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = healthSrv.Shutdown(shutdownCtx)
		}()
	}

	primary := buildStorage(backend, cfg.General.OutputDirectory, cfg.General.DryRun)
	var backup storage.Storage
	if cfg.General.BackupEnabled {
		backup = buildStorage(backend, cfg.General.OutputDirectory+"/backup", cfg.General.DryRun)
	}

	dl := &downloader.Downloader{
		Retry:          retryClient,
		Primary:        primary,
		Backup:         backup,
		DryRun:         cfg.General.DryRun,
		ForceBackup:    cfg.General.ForceBackup,
		RandomSleepMax: cfg.General.RandomSleepMax,
		Logger:         log,
	}

	pl := planner.New(breakerProvider, dataProvider.Name(), cfg.DateRange.StartYear, cfg.DateRange.EndYear)
	pl.Logger = log
	jobs, err := pl.Plan(cat)
	if err != nil {
		log.WithError(err).Error("planning failed")
		return exitInstrument
	}
	log.WithField("planned", len(jobs)).Info("planning complete")

	var runner scheduler.JobRunner = dl
	if backfill {
		runner = scheduler.RunnerFunc(dl.Backfill)
	}

	sched := &scheduler.Scheduler{
		Runners:           map[string]scheduler.JobRunner{dataProvider.Name(): runner},
		ParallelProviders: cfg.General.ParallelProviders,
		Logger:            log,
	}

	report := sched.Drive(ctx, jobs)
	for _, res := range report.Results {
		registry.RecordOutcome(res.Outcome, res.Err != nil)
	}

	snapshot := registry.Snapshot()
	snapshot.Counters.Planned = report.Planned
	if enc, err := json.MarshalIndent(snapshot, "", "  "); err == nil {
		fmt.Println(string(enc))
	}

	if report.Stopped && report.StopKind == errs.KindAllowanceExceeded {
		log.Warn("run stopped early: provider allowance exceeded")
		return exitOtherExpected
	}
	for _, res := range report.Results {
		if res.Err != nil {
			switch errs.KindOf(res.Err) {
			case errs.KindAuthentication:
				return exitAuth
			case errs.KindConnection, errs.KindRateLimit, errs.KindCircuitOpen:
				return exitConnection
			case errs.KindStorage:
				return exitStorage
			case errs.KindValidation:
				return exitInstrument
			default:
				return exitProvider
			}
		}
	}
	return exitOK
}

func buildProvider(name string, cfg *config.Config, log *logrus.Entry) (provider.DataProvider, error) {
	switch name {
	case "barchart":
		pc := cfg.Provider("barchart")
		return barchart.New(barchart.Credentials{Username: pc.Username, Password: pc.Password}, log)
	default:
		return freecsv.New(log), nil
	}
}

func buildStorage(backend, baseDir string, dryRun bool) storage.Storage {
	if backend == "columnar" {
		return storage.NewColumnarStorage(baseDir, dryRun)
	}
	return storage.NewCSVStorage(baseDir, dryRun)
}
