// Command raceexport extracts historical race telemetry from the
// tracker's SQLite database and materializes replay-ready JSON bundles
// for the static web front end.
//
// Usage:
//
//	raceexport --list-resets          list race reset markers with stats
//	raceexport --export               export the configured race batch
//	raceexport --export --db main.db --out data
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lorelei/raceexport/internal/adapters/bundle"
	"github.com/lorelei/raceexport/internal/adapters/repository"
	"github.com/lorelei/raceexport/internal/app"
	"github.com/lorelei/raceexport/internal/config"
	"github.com/lorelei/raceexport/pkg/logger"
	"github.com/lorelei/raceexport/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	listResets := flag.Bool("list-resets", false, "list all race resets")
	export := flag.Bool("export", false, "export configured races")
	dbPath := flag.String("db", "", "path to database (overrides config)")
	outDir := flag.String("out", "", "output directory (overrides config)")
	mode := flag.String("mode", "", "mapping mode: overlap, snapshot, intervals")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.Error(err))
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	if !*listResets && !*export {
		flag.Usage()
		return 2
	}

	store, err := repository.Open(ctx, cfg.DatabasePath)
	if err != nil {
		// A missing source is an operator problem, not a crash.
		if errors.Is(err, repository.ErrDatabaseNotFound) {
			fmt.Fprintf(os.Stderr, "Database not found: %s\n", cfg.DatabasePath)
			return 1
		}
		log.Error(ctx, "failed to open database", logger.Error(err))
		return 1
	}
	defer store.Close()

	mgr := metrics.NewManager()
	opts := []app.Option{
		app.WithStore(store),
		app.WithWriter(bundle.NewWriter(cfg.OutputDir)),
		app.WithBufferSeconds(cfg.BufferSeconds),
		app.WithParallelism(cfg.Parallelism),
		app.WithLogger(log),
		app.WithMetrics(mgr),
		app.WithMappingMode(app.MappingMode(*mode)),
	}
	if cfg.BackupDatabasePath != "" {
		backup, err := repository.Open(ctx, cfg.BackupDatabasePath)
		if err != nil {
			log.Warn(ctx, "backup database unavailable; continuing without it",
				logger.Error(err))
		} else {
			defer backup.Close()
			opts = append(opts, app.WithBackupStore(backup))
		}
	}
	exporter := app.New(opts...)

	if *listResets {
		fmt.Printf("Database: %s\n", cfg.DatabasePath)
		if err := exporter.ListResets(ctx, os.Stdout); err != nil {
			log.Error(ctx, "failed to list resets", logger.Error(err))
			return 1
		}
		return 0
	}

	if err := exporter.ExportAll(ctx, cfg.Races); err != nil {
		log.Error(ctx, "export batch failed", logger.Error(err))
		return 1
	}
	if err := mgr.WriteTextfile(filepath.Join(cfg.OutputDir, "metrics.prom")); err != nil {
		log.Warn(ctx, "failed to write metrics textfile", logger.Error(err))
	}
	log.Info(ctx, "all races exported", logger.String("run_id", exporter.RunID()))
	return 0
}
