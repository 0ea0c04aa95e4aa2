package scraper

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
)

var ErrScrapFailed = errors.New("scrap failed")

// Source maps export records onto sneakers and their image URLs.
type Source interface {
	Model(record records.Record) (*models.Sneaker, error)
	Images(record records.Record) []string
}

// Downloader writes the image behind url to destination, overwriting it.
type Downloader interface {
	DownloadImage(ctx context.Context, url, destination string) error
}

// Sink receives every successfully scraped sneaker. Sinks are called from
// worker goroutines and must be safe for concurrent use.
type Sink interface {
	ModelScraped(ctx context.Context, record *models.ScrapeRecord) error
}

type Options struct {
	Workers   int
	ForceSkip bool
	// RunID identifies the run in logs and sinks; generated when zero.
	RunID uuid.UUID
}
