package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
)

var ErrRunNotFound = errors.New("scrape run not found")

const schema = `
CREATE TABLE IF NOT EXISTS scrape_run (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL,
	workers     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	scraped     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	dropped     INTEGER NOT NULL DEFAULT 0,
	duplicates  INTEGER NOT NULL DEFAULT 0,
	corrupted   INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sneaker_model (
	model       TEXT NOT NULL,
	variant     TEXT NOT NULL,
	images      INTEGER NOT NULL,
	last_run_id UUID NOT NULL,
	scraped_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (model, variant)
);

CREATE TABLE IF NOT EXISTS sneaker_model_scrape (
	run_id     UUID NOT NULL,
	model      TEXT NOT NULL,
	variant    TEXT NOT NULL,
	images     INTEGER NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, model, variant)
);`

// RunStats are the totals stored when a run finishes.
type RunStats struct {
	Scraped    int
	Skipped    int
	Failed     int
	Dropped    int
	Duplicates int
	Corrupted  int
}

// Run is one row of scrape_run.
type Run struct {
	ID         uuid.UUID
	Source     string
	Workers    int
	Status     string
	Stats      RunStats
	StartedAt  time.Time
	FinishedAt *time.Time
}

// EnsureSchema creates the ledger tables when they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (db *DB) StartRun(ctx context.Context, runID uuid.UUID, source string, workers int) error {
	query := `
		INSERT INTO scrape_run (id, source, workers, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db.pool.Exec(ctx, query, runID, source, workers, RunStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, status string, stats RunStats) error {
	query := `
		UPDATE scrape_run
		SET status = $2, scraped = $3, skipped = $4, failed = $5,
			dropped = $6, duplicates = $7, corrupted = $8, finished_at = $9
		WHERE id = $1`

	tag, err := db.pool.Exec(ctx, query, runID, status,
		stats.Scraped, stats.Skipped, stats.Failed,
		stats.Dropped, stats.Duplicates, stats.Corrupted,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	query := `
		SELECT id, source, workers, status, scraped, skipped, failed,
			dropped, duplicates, corrupted, started_at, finished_at
		FROM scrape_run
		WHERE id = $1`

	var run Run
	err := db.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.Source, &run.Workers, &run.Status,
		&run.Stats.Scraped, &run.Stats.Skipped, &run.Stats.Failed,
		&run.Stats.Dropped, &run.Stats.Duplicates, &run.Stats.Corrupted,
		&run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ModelScraped records the scrape in the run history and upserts the model.
func (db *DB) ModelScraped(ctx context.Context, record *models.ScrapeRecord) error {
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		history := `
			INSERT INTO sneaker_model_scrape (run_id, model, variant, images, scraped_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id, model, variant) DO UPDATE
			SET images = EXCLUDED.images, scraped_at = EXCLUDED.scraped_at`

		if _, err := tx.Exec(ctx, history, record.RunID, record.Model, record.Variant,
			record.Images, record.ScrapedAt); err != nil {
			return fmt.Errorf("failed to insert scrape history: %w", err)
		}

		upsert := `
			INSERT INTO sneaker_model (model, variant, images, last_run_id, scraped_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (model, variant) DO UPDATE
			SET images = EXCLUDED.images,
				last_run_id = EXCLUDED.last_run_id,
				scraped_at = EXCLUDED.scraped_at`

		if _, err := tx.Exec(ctx, upsert, record.Model, record.Variant, record.Images,
			record.RunID, record.ScrapedAt); err != nil {
			return fmt.Errorf("failed to upsert sneaker model: %w", err)
		}

		return nil
	})
}

func (db *DB) CountModels(ctx context.Context) (int64, error) {
	var count int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sneaker_model`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count models: %w", err)
	}
	return count, nil
}
