package scraper

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
	"github.com/maltedev/sneaker-dataset-scraper/internal/parser"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
)

// Export columns read by DBScraper.
const (
	FieldName          = "shoes_name"
	FieldSKU           = "shoes_sku"
	FieldImage         = "shoes_image"
	Field360           = "stockx_360"
	Field360Images     = "stockx_360_images"
	field360EnabledVal = "true"
)

// urlBoundary matches a comma that starts a new URL. Commas inside a URL's
// query string are not followed by a scheme.
var urlBoundary = regexp.MustCompile(`,https?:`)

// DBScraper reads sneakers from the product database export.
type DBScraper struct {
	root       string
	normalizer parser.Normalizer
	logger     *slog.Logger
}

func NewDBScraper(root string, normalizer parser.Normalizer, logger *slog.Logger) *DBScraper {
	return &DBScraper{
		root:       root,
		normalizer: normalizer,
		logger:     logger,
	}
}

func (s *DBScraper) Model(record records.Record) (*models.Sneaker, error) {
	name, err := record.Require(FieldName)
	if err != nil {
		return nil, err
	}
	sku, err := record.Require(FieldSKU)
	if err != nil {
		return nil, err
	}

	model, variant, err := s.normalizer.Normalize(name, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %q: %w", name, err)
	}

	return models.NewSneaker(s.root, model, variant, record, s.logger), nil
}

// Images returns the main image followed by the 360 images when the record
// has them. Empty export values are skipped.
func (s *DBScraper) Images(record records.Record) []string {
	var images []string
	if image, ok := record.Get(FieldImage); ok && !isEmpty(image) {
		images = append(images, image)
	}

	if enabled, _ := record.Get(Field360); enabled != field360EnabledVal {
		return images
	}

	raw, _ := record.Get(Field360Images)
	for _, url := range splitImageURLs(raw) {
		if !isEmpty(url) {
			images = append(images, url)
		}
	}
	return images
}

// splitImageURLs splits at commas immediately followed by http: or https:.
func splitImageURLs(s string) []string {
	bounds := urlBoundary.FindAllStringIndex(s, -1)
	urls := make([]string, 0, len(bounds)+1)

	start := 0
	for _, b := range bounds {
		urls = append(urls, s[start:b[0]])
		start = b[0] + 1
	}
	return append(urls, s[start:])
}

func isEmpty(v string) bool {
	return v == "" || v == records.EmptyValue
}
