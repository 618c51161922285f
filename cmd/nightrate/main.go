package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/nightrate/internal/classifier"
	"github.com/rewired-gh/nightrate/internal/config"
	"github.com/rewired-gh/nightrate/internal/feeds"
	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/lock"
	"github.com/rewired-gh/nightrate/internal/logger"
	"github.com/rewired-gh/nightrate/internal/metrics"
	"github.com/rewired-gh/nightrate/internal/models"
	"github.com/rewired-gh/nightrate/internal/pricing"
	"github.com/rewired-gh/nightrate/internal/storage"
	"github.com/rewired-gh/nightrate/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Secrets may live in .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid time zone: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Initialize storage
	store, err := storage.Open(ctx, storage.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		QueryTimeout: cfg.Storage.QueryTimeout,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate storage: %v", err)
	}

	seed, err := cfg.CuratedSeed()
	if err != nil {
		logger.Fatal("Invalid curated events: %v", err)
	}
	seeded, err := store.SeedCurated(ctx, seed)
	if err != nil {
		logger.Warn("Curated seeding incomplete: %v", err)
	}
	logger.Info("Storage ready (%s): %d curated events seeded, %d already present", store.Driver(), seeded, len(seed)-seeded)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Classifier and feeds
	classifierCfg, err := cfg.ClassifierConfig()
	if err != nil {
		logger.Fatal("Invalid classifier config: %v", err)
	}
	cls, err := classifier.New(classifierCfg)
	if err != nil {
		logger.Fatal("Failed to build classifier: %v", err)
	}
	for i, rule := range cls.Rules() {
		logger.Debug("Classifier rule %d: %s <- %v", i+1, rule.Category, rule.Keywords)
	}

	fs, err := cfg.BuildFeeds()
	if err != nil {
		logger.Fatal("Failed to build feeds: %v", err)
	}

	// Run lock
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		rdb, err := lock.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Redis.KeyPrefix)
		logger.Info("Ingestion run lock backed by Redis at %s", cfg.Redis.Addr)
	}

	pipeline := ingest.New(fs, store, cls,
		ingest.WithLocker(locker, cfg.Ingest.LockTTL),
		ingest.WithMetrics(m),
		ingest.WithConcurrency(cfg.Ingest.Concurrency),
	)

	// Pricing engine
	pricingCfg, err := cfg.PricingConfig()
	if err != nil {
		logger.Fatal("Invalid pricing config: %v", err)
	}
	engine, err := pricing.New(pricingCfg, store, store, pricing.WithMetrics(m))
	if err != nil {
		logger.Fatal("Failed to build pricing engine: %v", err)
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	commands := telegram.NewCommands(engine, store, pipeline, engine.Config().Currency, loc)
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
		telegramClient.ListenForCommands(ctx, commands)
	} else {
		logger.Debug("Telegram reporting disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if m != nil {
		g.Go(func() error {
			err := serveMetrics(gctx, cfg.Metrics.Addr, newMetricsMux(m, store))
			if err != nil {
				cancel()
			}
			return err
		})
	}

	if cfg.Ingest.Enabled && len(fs) > 0 {
		g.Go(func() error {
			runIngestLoop(gctx, pipeline, fs, cfg.Ingest.Interval, telegramClient)
			return nil
		})
	} else {
		logger.Info("Scheduled ingestion disabled (enabled=%v, feeds=%d)", cfg.Ingest.Enabled, len(fs))
	}

	if telegramClient != nil && cfg.Telegram.DailyReportHour >= 0 {
		g.Go(func() error {
			runDailyReports(gctx, commands, store, telegramClient, cfg.Telegram.DailyReportHour, loc)
			return nil
		})
	}

	logger.Info("nightrate running")
	<-ctx.Done()
	if err := g.Wait(); err != nil {
		logger.Error("Background task failed: %v", err)
	}
	logger.Info("Service stopped")
}

// healthChecker reports whether the backing store is reachable.
type healthChecker interface {
	Health(ctx context.Context) error
}

// newMetricsMux serves /metrics and a /healthz check of the store.
func newMetricsMux(m *metrics.Metrics, store healthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Health(r.Context()); err != nil {
			logger.Warn("Health check failed: %v", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	return mux
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// runIngestLoop ingests immediately and then on every tick. The chat is told about
// the first failure of a streak and about the recovery that ends it.
func runIngestLoop(ctx context.Context, p *ingest.Pipeline, fs []feeds.Feed, interval time.Duration, tg *telegram.Client) {
	logger.Info("Starting ingestion loop (interval: %v, feeds: %v)", interval, p.Feeds())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Ingestion cycle failed: %v", err)
			if consecutiveFailures == 1 && tg != nil {
				if sendErr := tg.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && tg != nil {
			if sendErr := tg.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleCycleResult(runIngestCycle(ctx, p, len(fs)))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handleCycleResult(runIngestCycle(ctx, p, len(fs)))
		}
	}
}

// runIngestCycle reports an error only when nothing could be pulled at all.
func runIngestCycle(ctx context.Context, p *ingest.Pipeline, feedCount int) error {
	result, err := p.Ingest(ctx)
	if errors.Is(err, ingest.ErrRunInProgress) {
		logger.Info("Skipping scheduled ingestion: another run is in progress")
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if feedCount > 0 && len(result.FeedErrors) == feedCount {
		return fmt.Errorf("all %d feeds unavailable: %w", feedCount, result.FeedErrors[0])
	}
	return nil
}

// suggestionSaver persists the decision a report was built from.
type suggestionSaver interface {
	SaveSuggestion(ctx context.Context, d *models.Decision) error
}

func runDailyReports(ctx context.Context, h *telegram.Commands, store suggestionSaver, tg *telegram.Client, hour int, loc *time.Location) {
	for {
		next := nextReportTime(time.Now(), hour, loc)
		logger.Info("Next daily report at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		text, today, err := h.DailyReport(ctx)
		if err != nil {
			logger.Error("Failed to build daily report: %v", err)
			continue
		}
		if err := store.SaveSuggestion(ctx, today); err != nil {
			logger.Warn("Failed to save suggestion: %v", err)
		}
		if err := tg.Send(text); err != nil {
			logger.Error("Failed to send daily report: %v", err)
			continue
		}
		logger.Info("Daily report sent")
	}
}

// nextReportTime returns the first hour:00 in loc strictly after now.
func nextReportTime(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}
