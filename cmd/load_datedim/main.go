// Command load_datedim replaces the calendar reference table from its CSV
// export. Run it once before the first loader pass and again whenever the
// calendar horizon needs extending.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stagingloader/internal/config"
	"stagingloader/internal/datedim"
	"stagingloader/internal/logging"
	"stagingloader/internal/storage"

	_ "stagingloader/internal/storage/all"
)

func main() {
	var (
		cfgPath string
		csvPath string
	)
	flag.StringVar(&cfgPath, "config", "", "config YAML path (default $STAGING_LOADER_CONFIG)")
	flag.StringVar(&csvPath, "csv", "", "calendar CSV path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if csvPath == "" {
		csvPath = cfg.Calendar.CSVPath
	}

	log := logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	entry := log.WithField("component", "load_datedim")

	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Database.Kind, DSN: cfg.Database.DSN})
	if err != nil {
		fatalf("connect storage (%s): %v", cfg.Database.Kind, err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		fatalf("ensure schema: %v", err)
	}

	l := datedim.NewLoader(repo, entry)
	l.Encoding = cfg.Calendar.Encoding

	stats, err := l.LoadFile(ctx, csvPath)
	if stats != nil {
		fmt.Printf("rows: %d loaded, %d skipped (of %d)\n", stats.LoadedRows, stats.SkippedRows, stats.TotalRows)
		for _, e := range stats.Errors {
			fmt.Println("  " + e)
		}
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "load_datedim: "+format+"\n", args...)
	os.Exit(1)
}
