package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/sneaker-dataset-scraper/internal/metrics"
	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
	"github.com/maltedev/sneaker-dataset-scraper/internal/parser"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
)

// Result summarizes one Run. Scraped keeps the sorted-unique order of the
// models that completed, skipped ones included.
type Result struct {
	RunID      uuid.UUID
	Scraped    []*models.Sneaker
	Dropped    int
	Failed     int
	Skipped    int
	Duplicates int
	Corrupted  int
}

// Orchestrator drives normalize -> dedupe -> partition -> scrap.
type Orchestrator struct {
	source     Source
	downloader Downloader
	sinks      []Sink
	opts       Options
	logger     *slog.Logger

	total     atomic.Int64
	processed atomic.Int64
}

func NewOrchestrator(source Source, downloader Downloader, opts Options, logger *slog.Logger, sinks ...Sink) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Orchestrator{
		source:     source,
		downloader: downloader,
		sinks:      sinks,
		opts:       opts,
		logger:     logger.With("component", "orchestrator"),
	}
}

// workerResult is owned by exactly one worker until the join.
type workerResult struct {
	scraped    []*models.Sneaker
	failed     int
	skipped    int
	duplicates int
	corrupted  int
}

// Run scrapes every unique valid model. A failing item never stops the run;
// only context cancellation does, in which case the partial result is returned
// with the context error.
func (o *Orchestrator) Run(ctx context.Context, recs []records.Record) (*Result, error) {
	runID := o.opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	logger := o.logger.With("run_id", runID)

	valid, dropped := ValidModels(o.source, recs, logger)
	unique := UniqueModels(valid)
	chunks := Partition(unique, o.opts.Workers)

	o.total.Store(int64(len(unique)))
	o.processed.Store(0)

	logger.Info("starting scrape",
		"records", len(recs),
		"valid", len(valid),
		"unique", len(unique),
		"workers", len(chunks),
		"force_skip", o.opts.ForceSkip)

	slots := make([]workerResult, len(chunks))

	var err error
	if len(chunks) == 1 {
		err = o.work(ctx, runID, 0, chunks[0], &slots[0], logger)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, chunk := range chunks {
			g.Go(func() error {
				return o.work(gctx, runID, i, chunk, &slots[i], logger)
			})
		}
		err = g.Wait()
	}

	result := &Result{RunID: runID, Dropped: dropped}
	for _, slot := range slots {
		result.Scraped = append(result.Scraped, slot.scraped...)
		result.Failed += slot.failed
		result.Skipped += slot.skipped
		result.Duplicates += slot.duplicates
		result.Corrupted += slot.corrupted
	}

	logger.Info("scrape finished",
		"scraped", len(result.Scraped),
		"skipped", result.Skipped,
		"failed", result.Failed,
		"dropped", result.Dropped,
		"duplicates", result.Duplicates,
		"corrupted", result.Corrupted)

	if err != nil {
		return result, fmt.Errorf("scrape interrupted: %w", err)
	}
	return result, nil
}

// Progress reports how many unique models the current run has handled.
func (o *Orchestrator) Progress() (processed, total int64) {
	return o.processed.Load(), o.total.Load()
}

func (o *Orchestrator) work(ctx context.Context, runID uuid.UUID, worker int, chunk []*models.Sneaker, slot *workerResult, logger *slog.Logger) error {
	logger = logger.With("worker", worker)
	logger.Debug("worker started", "models", len(chunk))

	for _, model := range chunk {
		if err := ctx.Err(); err != nil {
			return err
		}

		skipped, err := o.scrapItem(ctx, model, slot, logger)
		o.processed.Add(1)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("scrap failed", "sneaker", model.String(), "error", err)
			metrics.Models.WithLabelValues("failed").Inc()
			slot.failed++
			continue
		}

		if skipped {
			metrics.Models.WithLabelValues("skipped").Inc()
			slot.skipped++
		} else {
			metrics.Models.WithLabelValues("scraped").Inc()
		}
		slot.scraped = append(slot.scraped, model)

		o.notify(ctx, runID, model, logger)
	}

	logger.Debug("worker finished", "scraped", len(slot.scraped), "failed", slot.failed)
	return nil
}

// scrapItem downloads and verifies every image of model. It reports whether
// the download was skipped because the dataset already holds all images.
func (o *Orchestrator) scrapItem(ctx context.Context, model *models.Sneaker, slot *workerResult, logger *slog.Logger) (bool, error) {
	images := o.source.Images(model.AdditionalInfo)

	existing, err := model.Images()
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrScrapFailed, model, err)
	}
	if o.opts.ForceSkip && len(existing) == len(images) {
		logger.Debug("skipping download", "sneaker", model.String(), "images", len(existing))
		return true, nil
	}

	logger.Debug("downloading images", "sneaker", model.String(), "count", len(images))
	for _, url := range images {
		path, err := model.NextPath()
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrScrapFailed, model, err)
		}

		if err := o.downloader.DownloadImage(ctx, url, path); err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrScrapFailed, model, err)
		}
		metrics.ImagesDownloaded.Inc()

		verification, err := model.VerifyLatestDownload()
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrScrapFailed, model, err)
		}
		if verification.Duplicate {
			metrics.DuplicatesRemoved.Inc()
			slot.duplicates++
		}
		if n := len(verification.Corrupted); n > 0 {
			metrics.CorruptedRemoved.Add(float64(n))
			slot.corrupted += n
		}
	}

	return false, nil
}

func (o *Orchestrator) notify(ctx context.Context, runID uuid.UUID, model *models.Sneaker, logger *slog.Logger) {
	if len(o.sinks) == 0 {
		return
	}

	images, err := model.Images()
	if err != nil {
		logger.Warn("failed to count images", "sneaker", model.String(), "error", err)
	}

	record := &models.ScrapeRecord{
		RunID:     runID,
		Model:     model.Model,
		Variant:   model.Variant,
		Images:    len(images),
		ScrapedAt: time.Now().UTC(),
	}

	for _, sink := range o.sinks {
		if err := sink.ModelScraped(ctx, record); err != nil {
			logger.Warn("sink rejected scrape record", "sneaker", model.String(), "error", err)
		}
	}
}

// ValidModels maps records through source and drops the ones it rejects.
func ValidModels(source Source, recs []records.Record, logger *slog.Logger) ([]*models.Sneaker, int) {
	valid := make([]*models.Sneaker, 0, len(recs))
	dropped := 0

	for _, rec := range recs {
		model, err := source.Model(rec)
		if err != nil {
			logger.Warn("dropping record", "error", err)
			metrics.RecordsDropped.WithLabelValues(dropReason(err)).Inc()
			dropped++
			continue
		}
		valid = append(valid, model)
	}

	return valid, dropped
}

// UniqueModels sorts by String and keeps the first model of every identity.
func UniqueModels(valid []*models.Sneaker) []*models.Sneaker {
	sorted := make([]*models.Sneaker, len(valid))
	copy(sorted, valid)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	unique := make([]*models.Sneaker, 0, len(sorted))
	for _, model := range sorted {
		if n := len(unique); n > 0 && unique[n-1].String() == model.String() {
			continue
		}
		unique = append(unique, model)
	}
	return unique
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, parser.ErrUnsupportedModel):
		return "unsupported_model"
	case errors.Is(err, records.ErrMissingField):
		return "missing_field"
	default:
		return "invalid"
	}
}
