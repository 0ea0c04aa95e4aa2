package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/sneaker-dataset-scraper/internal/config"
	"github.com/maltedev/sneaker-dataset-scraper/internal/database"
	"github.com/maltedev/sneaker-dataset-scraper/internal/events"
	"github.com/maltedev/sneaker-dataset-scraper/internal/fetch"
	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
	"github.com/maltedev/sneaker-dataset-scraper/internal/metrics"
	"github.com/maltedev/sneaker-dataset-scraper/internal/parser"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
	"github.com/maltedev/sneaker-dataset-scraper/internal/scraper"
	"github.com/maltedev/sneaker-dataset-scraper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Input.CSVPath, "csv", cfg.Input.CSVPath, "path to the product export")
	flag.StringVar(&cfg.Dataset.Root, "root", cfg.Dataset.Root, "dataset root directory")
	flag.IntVar(&cfg.Scraper.Workers, "workers", cfg.Scraper.Workers, "number of parallel workers")
	flag.BoolVar(&cfg.Scraper.ForceSkip, "force-skip", cfg.Scraper.ForceSkip, "skip models whose images are already downloaded")
	flag.StringVar(&cfg.Input.Separator, "separator", cfg.Input.Separator, "field separator of the export")
	flag.Parse()

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Input.CSVPath == "" {
		log.Error("invalid configuration", "error", "CSV_PATH or -csv is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("scrape failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	items, err := records.NewReader(cfg.Input.Separator, log).ReadFile(cfg.Input.CSVPath)
	if err != nil {
		return err
	}

	manifest, err := storage.NewManifest(cfg.Dataset.Manifest())
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	sinks := []scraper.Sink{manifest}

	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.New(ctx, database.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, db)
	}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		publisher := events.NewPublisher(redisClient, cfg.Redis.Stream, log)
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	client := fetch.NewClient(fetch.Options{
		MaxRetries: cfg.Scraper.MaxRetries,
		RetryDelay: cfg.Scraper.RetryDelay,
		Timeout:    cfg.Scraper.RequestTimeout,
	}, log)

	normalizer := parser.NewSneakerNormalizer(cfg.Scraper.ExcludedKeywords, log)
	source := scraper.NewDBScraper(cfg.Dataset.Root, normalizer, log)

	runID := uuid.New()
	orchestrator := scraper.NewOrchestrator(source, client, scraper.Options{
		Workers:   cfg.Scraper.Workers,
		ForceSkip: cfg.Scraper.ForceSkip,
		RunID:     runID,
	}, log, sinks...)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics.MustRegister(reg)

		health := func(ctx context.Context) map[string]any {
			processed, total := orchestrator.Progress()
			status := map[string]any{
				"run_id":    runID.String(),
				"processed": processed,
				"total":     total,
			}
			if db != nil {
				status["database"] = "ok"
				if err := db.Ping(ctx); err != nil {
					status["database"] = err.Error()
				}
			}
			return status
		}

		serverCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := metrics.Serve(serverCtx, cfg.Metrics.Addr, metrics.NewRouter(reg, health, log), log); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	if db != nil {
		if err := db.StartRun(ctx, runID, cfg.Input.CSVPath, cfg.Scraper.Workers); err != nil {
			return err
		}
	}

	started := time.Now()
	result, runErr := orchestrator.Run(ctx, items)

	if err := manifest.Flush(); err != nil {
		log.Error("failed to save manifest", "path", cfg.Dataset.Manifest(), "error", err)
	}

	var ledger *ledgerSummary
	if db != nil {
		status := database.RunStatusCompleted
		if errors.Is(runErr, context.Canceled) {
			status = database.RunStatusInterrupted
		}

		// the run context may already be cancelled
		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := db.FinishRun(finishCtx, runID, status, database.RunStats{
			Scraped:    len(result.Scraped),
			Skipped:    result.Skipped,
			Failed:     result.Failed,
			Dropped:    result.Dropped,
			Duplicates: result.Duplicates,
			Corrupted:  result.Corrupted,
		})
		if err != nil {
			log.Error("failed to record run", "run_id", runID, "error", err)
		} else if ledger, err = loadLedgerSummary(finishCtx, db, runID); err != nil {
			log.Warn("failed to read run from ledger", "run_id", runID, "error", err)
		}
	}

	printSummary(result, manifest, ledger, time.Since(started))
	return runErr
}

type ledgerSummary struct {
	run    *database.Run
	models int64
}

func loadLedgerSummary(ctx context.Context, db *database.DB, runID uuid.UUID) (*ledgerSummary, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	count, err := db.CountModels(ctx)
	if err != nil {
		return nil, err
	}

	return &ledgerSummary{run: run, models: count}, nil
}

func printSummary(result *scraper.Result, manifest *storage.Manifest, ledger *ledgerSummary, elapsed time.Duration) {
	stats := manifest.GetStats()

	fmt.Printf("\nRun %s finished in %s\n", result.RunID, elapsed.Round(time.Second))
	fmt.Printf("  Scraped models:     %d (%d skipped)\n", len(result.Scraped), result.Skipped)
	fmt.Printf("  Failed models:      %d\n", result.Failed)
	fmt.Printf("  Dropped records:    %d\n", result.Dropped)
	fmt.Printf("  Duplicates removed: %d\n", result.Duplicates)
	fmt.Printf("  Corrupted removed:  %d\n", result.Corrupted)
	fmt.Printf("  Dataset:            %d models, %d images\n", stats["models"], stats["images"])
	if ledger != nil {
		fmt.Printf("  Ledger:             run %s, %d models tracked\n", ledger.run.Status, ledger.models)
	}
}
