package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pricewatch/internal/cache"
	"pricewatch/internal/catalog"
	"pricewatch/internal/ingest"
	"pricewatch/internal/sources"
	"pricewatch/pkg/config"
	"pricewatch/pkg/database"
)

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml, or PRICEWATCH_CONFIG)")
	only := flag.String("source", "", "run a single source by name")
	updateKnown := flag.Bool("update-known", false, "refresh descriptive fields of already-known products")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Sources) == 0 {
		log.Fatal("no sources configured")
	}

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	// Ensure schema exists
	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := catalog.NewRepo(db)
	// property names are global across sources, so one shared cache
	props := cache.NewProperties()

	failed := 0
	for _, sc := range cfg.Sources {
		if *only != "" && sc.Name != *only {
			continue
		}

		src, err := sources.Build(sc)
		if err != nil {
			log.Fatalf("source %s: %v", sc.Name, err)
		}

		driver := ingest.NewDriver(repo, props, cfg.StateDir, ingest.Options{
			UpdateKnown: *updateKnown,
			RootAliases: sc.RootAliases,
		})

		report, err := driver.Run(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("interrupted: %s will resume from its checkpoint", sc.Name)
				os.Exit(130)
			}
			log.Printf("source %s failed: %v", sc.Name, err)
			failed++
			continue
		}
		log.Printf("source %s: run %s done: %d created, %d known, %d malformed, %d failed",
			report.Source, report.RunID,
			report.Counts.Created, report.Counts.Known, report.Counts.Malformed, report.Counts.Failed)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
