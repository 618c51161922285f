// Command pricecal prints the suggested nightly rate for a range of dates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rewired-gh/nightrate/internal/classifier"
	"github.com/rewired-gh/nightrate/internal/config"
	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/logger"
	"github.com/rewired-gh/nightrate/internal/models"
	"github.com/rewired-gh/nightrate/internal/pricing"
	"github.com/rewired-gh/nightrate/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	fromFlag   = flag.String("from", "", "First date to price (YYYY-MM-DD, default today)")
	days       = flag.Int("days", 14, "Number of consecutive dates to price")
	format     = flag.String("format", "table", "Output format: table or json")
	runIngest  = flag.Bool("ingest", false, "Run one ingestion pass before pricing")
	save       = flag.Bool("save", false, "Persist each decision as a price suggestion")
)

func main() {
	flag.Parse()

	if *format != "table" && *format != "json" {
		log.Fatalf("Unknown format %q (want table or json)", *format)
	}
	if *days < 1 {
		log.Fatalf("-days must be at least 1")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	// Keep stdout clean for the table or JSON.
	logger.Init("warn", cfg.Logging.Format)
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid time zone: %v", err)
	}

	from := models.Civil(time.Now().In(loc))
	if *fromFlag != "" {
		if from, err = models.ParseDate(*fromFlag); err != nil {
			log.Fatalf("Invalid -from: %v", err)
		}
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	if *runIngest {
		if err := ingestOnce(ctx, cfg, store); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
	}

	pricingCfg, err := cfg.PricingConfig()
	if err != nil {
		log.Fatalf("Invalid pricing config: %v", err)
	}
	engine, err := pricing.New(pricingCfg, store, store)
	if err != nil {
		log.Fatalf("Failed to build pricing engine: %v", err)
	}

	decisions, err := engine.PriceRange(ctx, from, *days)
	if err != nil {
		log.Fatalf("Pricing failed: %v", err)
	}

	if *save {
		for _, d := range decisions {
			if err := store.SaveSuggestion(ctx, d); err != nil {
				log.Fatalf("Failed to save suggestion for %s: %v", models.FormatDate(d.Date), err)
			}
		}
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(decisions); err != nil {
			log.Fatalf("Failed to encode decisions: %v", err)
		}
	default:
		currency := engine.Config().Currency
		printDecisions(os.Stdout, decisions, currency)
		printSummary(os.Stdout, decisions, currency)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		QueryTimeout: cfg.Storage.QueryTimeout,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	seed, err := cfg.CuratedSeed()
	if err != nil {
		store.Close()
		return nil, err
	}
	if _, err := store.SeedCurated(ctx, seed); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func ingestOnce(ctx context.Context, cfg *config.Config, store *storage.Storage) error {
	classifierCfg, err := cfg.ClassifierConfig()
	if err != nil {
		return err
	}
	cls, err := classifier.New(classifierCfg)
	if err != nil {
		return err
	}
	fs, err := cfg.BuildFeeds()
	if err != nil {
		return err
	}

	result, err := ingest.New(fs, store, cls, ingest.WithConcurrency(cfg.Ingest.Concurrency)).Ingest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Ingested %d new event(s), %d duplicate(s), %d discarded, %d feed error(s)\n",
		result.Stored, result.Duplicates, result.Discarded, len(result.FeedErrors))
	return nil
}
