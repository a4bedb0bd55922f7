// Command loader runs the staging loader: one pass over the incoming dump
// directory by default, or a polling watch loop with -watch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stagingloader/internal/config"
	"stagingloader/internal/loader"
	"stagingloader/internal/logging"
	"stagingloader/internal/metrics"
	"stagingloader/internal/metrics/datadog"
	"stagingloader/internal/storage"

	// register all storage backends; config selects one at runtime.
	_ "stagingloader/internal/storage/all"
)

func main() {
	var (
		cfgPath string
		watch   bool
	)
	flag.StringVar(&cfgPath, "config", "", "config YAML path (default $STAGING_LOADER_CONFIG)")
	flag.BoolVar(&watch, "watch", false, "poll the input directory instead of a single pass")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	log := logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	entry := log.WithField("component", "loader")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Database.Kind, DSN: cfg.Database.DSN})
	if err != nil {
		fatalf("connect storage (%s): %v", cfg.Database.Kind, err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		fatalf("ensure schema: %v", err)
	}

	var met metrics.Backend = metrics.Noop{}
	if cfg.Metrics.Enabled {
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Metrics.JobName,
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: cfg.Metrics.FlushEvery.Std(),
		})
		if err != nil {
			fatalf("init metrics: %v", err)
		}
		met = b
		defer func() {
			if err := met.Close(); err != nil {
				entry.WithError(err).Warn("metrics close failed")
			}
		}()
	}

	l, err := loader.New(repo, cfg.Loader, met, entry)
	if err != nil {
		fatalf("init loader: %v", err)
	}

	if watch || cfg.Loader.PollInterval.Std() > 0 {
		if err := l.Watch(ctx, cfg.Loader.PollInterval.Std()); err != nil && ctx.Err() == nil {
			fatalf("watch: %v", err)
		}
		return
	}

	sum, err := l.ProcessDirectory(ctx)
	if err != nil {
		fatalf("process directory: %v", err)
	}
	for table, c := range sum.Tables {
		entry.WithFields(logrus.Fields{
			"batch":    sum.BatchID,
			"table":    table,
			"records":  c.Records,
			"inserted": c.Inserted,
			"updated":  c.Updated,
			"skipped":  c.Skipped,
			"failed":   c.Failed,
		}).Info("table summary")
	}
	if sum.FilesFailed > 0 {
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "loader: "+format+"\n", args...)
	os.Exit(1)
}
