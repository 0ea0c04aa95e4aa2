package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/sneaker-dataset-scraper/internal/checksum"
	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
)

const imageExt = ".jpg"

// Sneaker is one (model, variant) unit of the dataset and owns the directory
// {root}/{model}/{variant} with images named 0.jpg, 1.jpg, ...
type Sneaker struct {
	Model          string
	Variant        string
	AdditionalInfo records.Record

	root   string
	logger *slog.Logger
}

// Verification reports what VerifyLatestDownload removed.
type Verification struct {
	Duplicate bool
	Corrupted []string
}

// ScrapeRecord is emitted once a sneaker has been scraped.
type ScrapeRecord struct {
	RunID     uuid.UUID `json:"run_id"`
	Model     string    `json:"model"`
	Variant   string    `json:"variant"`
	Images    int       `json:"images"`
	ScrapedAt time.Time `json:"scraped_at"`
}

func NewSneaker(root, model, variant string, info records.Record, logger *slog.Logger) *Sneaker {
	s := &Sneaker{
		Model:          model,
		Variant:        variant,
		AdditionalInfo: info,
		root:           root,
	}
	s.logger = logger.With("component", "sneaker", "sneaker", s.String())
	s.logger.Debug("initializing sneaker model")
	return s
}

// String is the identity used for sorting and deduplication.
func (s *Sneaker) String() string {
	return fmt.Sprintf("%s (%s)", s.Model, s.Variant)
}

// DirectoryPath returns the image directory, creating it when absent.
func (s *Sneaker) DirectoryPath() (string, error) {
	dir := filepath.Join(s.root, s.Model, s.Variant)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	return dir, nil
}

// Images lists image paths ordered by the numeric file stem. Files without
// an integer stem are not part of the image set.
func (s *Sneaker) Images() ([]string, error) {
	dir, err := s.DirectoryPath()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	type indexed struct {
		index int
		path  string
	}
	var images []indexed
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, ok := imageIndex(entry.Name())
		if !ok {
			continue
		}
		images = append(images, indexed{index: index, path: filepath.Join(dir, entry.Name())})
	}

	sort.Slice(images, func(i, j int) bool { return images[i].index < images[j].index })

	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.path
	}
	return paths, nil
}

// NextPath is the path for the image following the highest existing index.
func (s *Sneaker) NextPath() (string, error) {
	images, err := s.Images()
	if err != nil {
		return "", err
	}

	next := 0
	if len(images) > 0 {
		last, _ := imageIndex(filepath.Base(images[len(images)-1]))
		next = last + 1
	}

	dir, err := s.DirectoryPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, strconv.Itoa(next)+imageExt), nil
}

// VerifyLatestDownload removes undecodable images and drops the latest
// image when its pixels match an earlier one. Remaining files keep their names.
func (s *Sneaker) VerifyLatestDownload() (*Verification, error) {
	images, err := s.Images()
	if err != nil {
		return nil, err
	}

	result := &Verification{}
	if len(images) == 0 {
		return result, nil
	}

	// "" marks a corrupted slot and never matches
	sums := make([]string, len(images))
	for i, path := range images {
		sum, err := checksum.File(path)
		if err == nil {
			sums[i] = sum
			continue
		}
		if !errors.Is(err, checksum.ErrCorrupted) {
			return nil, fmt.Errorf("failed to checksum image: %w", err)
		}

		s.logger.Warn("found corrupted image, removing", "path", path, "error", err)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove corrupted image: %w", err)
		}
		result.Corrupted = append(result.Corrupted, path)
	}

	latest := sums[len(sums)-1]
	if latest == "" {
		return result, nil
	}

	for _, earlier := range sums[:len(sums)-1] {
		if earlier != latest {
			continue
		}

		path := images[len(images)-1]
		logger.Trace(context.Background(), s.logger, "found repeated checksum, removing", "checksum", latest, "path", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove duplicate image: %w", err)
		}
		result.Duplicate = true
		break
	}

	return result, nil
}

func imageIndex(name string) (int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	index, err := strconv.Atoi(stem)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}
