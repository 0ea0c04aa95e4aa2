package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
	"github.com/maltedev/sneaker-dataset-scraper/internal/parser"
	"github.com/maltedev/sneaker-dataset-scraper/internal/records"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeDownloader serves fixed payloads by URL; unknown URLs fail.
type fakeDownloader struct {
	payloads map[string][]byte

	mu    sync.Mutex
	calls []string
}

func (d *fakeDownloader) DownloadImage(ctx context.Context, url, destination string) error {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()

	data, ok := d.payloads[url]
	if !ok {
		return errors.New("server returned bad response with status code: 404")
	}
	return os.WriteFile(destination, data, 0644)
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingSink struct {
	mu      sync.Mutex
	records []*models.ScrapeRecord
	err     error
}

func (s *recordingSink) ModelScraped(ctx context.Context, record *models.ScrapeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return s.err
}

func record(name, sku, image string, extra ...string) records.Record {
	rec := records.Record{
		Header: []string{FieldName, FieldSKU, FieldImage, Field360, Field360Images},
		Values: map[string]string{
			FieldName:  name,
			FieldSKU:   sku,
			FieldImage: image,
			Field360:   "false",
		},
	}
	if len(extra) > 0 {
		rec.Values[Field360] = "true"
		rec.Values[Field360Images] = extra[0]
	}
	return rec
}

func newTestSource(root string) *DBScraper {
	normalizer := parser.NewSneakerNormalizer([]string{"blazer", "ebernon", "kyrie", "court"}, logger.Discard())
	return NewDBScraper(root, normalizer, logger.Discard())
}

func TestPartition(t *testing.T) {
	for _, m := range []int{0, 1, 2, 7, 10, 33} {
		for _, n := range []int{1, 2, 3, 4, 8} {
			t.Run(fmt.Sprintf("m=%d n=%d", m, n), func(t *testing.T) {
				items := make([]int, m)
				for i := range items {
					items[i] = i
				}

				chunks := Partition(items, n)
				require.Len(t, chunks, n)

				var joined []int
				minSize, maxSize := m, 0
				for _, chunk := range chunks {
					joined = append(joined, chunk...)
					minSize = min(minSize, len(chunk))
					maxSize = max(maxSize, len(chunk))
				}

				if m == 0 {
					assert.Empty(t, joined)
				} else {
					assert.Equal(t, items, joined)
				}
				assert.LessOrEqual(t, maxSize-minSize, 1)
			})
		}
	}
}

func TestPartitionInvalidWorkers(t *testing.T) {
	chunks := Partition([]string{"a", "b"}, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
}

func TestSplitImageURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single url",
			input:    "https://a.com/1.jpg",
			expected: []string{"https://a.com/1.jpg"},
		},
		{
			name:     "commas inside query survive",
			input:    "https://a.com/1.jpg?auto=format,compress&w=1,https://a.com/2.jpg,http://b.com/3.jpg",
			expected: []string{"https://a.com/1.jpg?auto=format,compress&w=1", "https://a.com/2.jpg", "http://b.com/3.jpg"},
		},
		{
			name:     "comma before other text does not split",
			input:    "https://a.com/1.jpg,ftp://a.com/2.jpg",
			expected: []string{"https://a.com/1.jpg,ftp://a.com/2.jpg"},
		},
		{
			name:     "empty",
			input:    "",
			expected: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitImageURLs(tt.input))
		})
	}
}

func TestDBScraperModel(t *testing.T) {
	root := t.TempDir()
	source := newTestSource(root)

	model, err := source.Model(record("Jordan 1 Low Fragment x Travis Scott", "315122-111/CW2288-111", "img"))
	require.NoError(t, err)
	assert.Equal(t, "nike_jordan_1_low", model.Model)
	assert.Equal(t, "CW2288-111", model.Variant)
	assert.Equal(t, "img", model.AdditionalInfo.Values[FieldImage])

	_, err = source.Model(record("Adidas Yeezy Boost 350", "X", "img"))
	assert.True(t, errors.Is(err, parser.ErrUnsupportedModel))

	_, err = source.Model(records.Record{Values: map[string]string{FieldName: "Nike Dunk Low"}})
	assert.True(t, errors.Is(err, records.ErrMissingField))
}

func TestDBScraperImages(t *testing.T) {
	source := newTestSource(t.TempDir())

	assert.Equal(t, []string{"https://a.com/main.jpg"}, source.Images(record("n", "s", "https://a.com/main.jpg")))

	rec := record("n", "s", "https://a.com/main.jpg", "https://a.com/1.jpg?x=a,b,https://a.com/2.jpg")
	assert.Equal(t,
		[]string{"https://a.com/main.jpg", "https://a.com/1.jpg?x=a,b", "https://a.com/2.jpg"},
		source.Images(rec))

	assert.Empty(t, source.Images(record("n", "s", records.EmptyValue)))
}

func TestUniqueModelsKeepsSortedFirst(t *testing.T) {
	root := t.TempDir()
	first := models.NewSneaker(root, "nike_dunk_low", "A", records.Record{Header: []string{"first"}}, logger.Discard())
	second := models.NewSneaker(root, "nike_dunk_low", "A", records.Record{Header: []string{"second"}}, logger.Discard())
	other := models.NewSneaker(root, "nike_air_max_1_low", "B", records.Record{}, logger.Discard())

	unique := UniqueModels([]*models.Sneaker{first, other, second})
	require.Len(t, unique, 2)
	assert.Same(t, other, unique[0])
	assert.Same(t, first, unique[1])
}

func TestValidModelsDropsRejected(t *testing.T) {
	source := newTestSource(t.TempDir())
	recs := []records.Record{
		record("Nike Dunk Low Panda", "DD1391-100", "img"),
		record("Nike Blazer Mid 77", "BQ6806-100", "img"),
		record("New Balance 550 Low", "BB550", "img"),
		record("Nike Air Max 90", "CN8490-002", "img"),
	}

	valid, dropped := ValidModels(source, recs, logger.Discard())
	assert.Len(t, valid, 1)
	assert.Equal(t, 3, dropped)
}

func TestValidModelsDropsUnsafeDirectories(t *testing.T) {
	root := t.TempDir()
	source := newTestSource(root)
	recs := []records.Record{
		record("Nike Dunk Low", "X/..", "img"),
		record("Air Max Low", "Y/..", "img"),
		record("Nike Dunk Low", "X/", "img"),
		record("Nike SB/Dunk Low", "DD1391-100", "img"),
		record("Nike Dunk Low", "DD1391-100", "img"),
	}

	valid, dropped := ValidModels(source, recs, logger.Discard())
	require.Len(t, valid, 1)
	assert.Equal(t, 4, dropped)

	dir, err := valid[0].DirectoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "nike_dunk_low", "DD1391-100"), dir)
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	white, black, red := pngBytes(t, color.White), pngBytes(t, color.Black), pngBytes(t, color.RGBA{R: 255, A: 255})

	downloader := &fakeDownloader{payloads: map[string][]byte{
		"https://img/dunk.jpg":     white,
		"https://img/dunk-360.jpg": black,
		"https://img/dunk-dup.jpg": white,
		"https://img/af1.jpg":      red,
		"https://img/broken.jpg":   []byte("not an image"),
		"https://img/aj1.jpg":      black,
	}}

	recs := []records.Record{
		record("Nike Dunk Low Panda", "DD1391-100", "https://img/dunk.jpg", "https://img/dunk-360.jpg,https://img/dunk-dup.jpg"),
		record("Nike Dunk Low Panda", "DD1391-100", "https://img/dunk.jpg"),
		record("Nike Air Force 1 Low", "CW2288-111", "https://img/af1.jpg", "https://img/broken.jpg"),
		record("Air Jordan 1 High OG", "555088-101", "https://img/missing.jpg"),
		record("Jordan 1 Mid", "554724-062", "https://img/aj1.jpg"),
		record("Adidas Samba", "B75806", "https://img/samba.jpg"),
	}

	sink := &recordingSink{}
	runID := uuid.New()
	orch := NewOrchestrator(newTestSource(root), downloader, Options{Workers: 3, RunID: runID}, logger.Discard(), sink)

	result, err := orch.Run(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, runID, result.RunID)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Corrupted)

	var scraped []string
	for _, m := range result.Scraped {
		scraped = append(scraped, m.String())
	}
	assert.Equal(t, []string{
		"nike_air_force_1_low (CW2288-111)",
		"nike_dunk_low (DD1391-100)",
		"nike_jordan_1_mid (554724-062)",
	}, scraped)

	assertFiles(t, filepath.Join(root, "nike_dunk_low", "DD1391-100"), "0.jpg", "1.jpg")
	assertFiles(t, filepath.Join(root, "nike_air_force_1_low", "CW2288-111"), "0.jpg")
	assertFiles(t, filepath.Join(root, "nike_jordan_1_mid", "554724-062"), "0.jpg")

	processed, total := orch.Progress()
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(4), processed)

	require.Len(t, sink.records, 3)
	for _, rec := range sink.records {
		assert.Equal(t, runID, rec.RunID)
		if rec.Model == "nike_dunk_low" {
			assert.Equal(t, 2, rec.Images)
		}
	}
}

func TestRunForceSkip(t *testing.T) {
	root := t.TempDir()
	downloader := &fakeDownloader{payloads: map[string][]byte{
		"https://img/dunk.jpg": pngBytes(t, color.White),
	}}
	recs := []records.Record{record("Nike Dunk Low Panda", "DD1391-100", "https://img/dunk.jpg")}

	first, err := NewOrchestrator(newTestSource(root), downloader, Options{Workers: 1}, logger.Discard()).
		Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Len(t, first.Scraped, 1)
	assert.Equal(t, 1, downloader.callCount())

	second, err := NewOrchestrator(newTestSource(root), downloader, Options{Workers: 1, ForceSkip: true}, logger.Discard()).
		Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Len(t, second.Scraped, 1)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, downloader.callCount())

	// without force-skip the image is fetched again and removed as a duplicate
	third, err := NewOrchestrator(newTestSource(root), downloader, Options{Workers: 1}, logger.Discard()).
		Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Duplicates)
	assert.Equal(t, 2, downloader.callCount())
	assertFiles(t, filepath.Join(root, "nike_dunk_low", "DD1391-100"), "0.jpg")
}

func TestRunSinkErrorDoesNotFailItem(t *testing.T) {
	downloader := &fakeDownloader{payloads: map[string][]byte{
		"https://img/dunk.jpg": pngBytes(t, color.White),
	}}
	sink := &recordingSink{err: errors.New("redis down")}

	result, err := NewOrchestrator(newTestSource(t.TempDir()), downloader, Options{}, logger.Discard(), sink).
		Run(context.Background(), []records.Record{record("Nike Dunk Low", "DD1391-100", "https://img/dunk.jpg")})
	require.NoError(t, err)
	assert.Len(t, result.Scraped, 1)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, sink.records, 1)
}

func TestRunCancelled(t *testing.T) {
	downloader := &fakeDownloader{payloads: map[string][]byte{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewOrchestrator(newTestSource(t.TempDir()), downloader, Options{Workers: 2}, logger.Discard()).
		Run(ctx, []records.Record{
			record("Nike Dunk Low", "A", "https://img/a.jpg"),
			record("Nike Dunk Low", "B", "https://img/b.jpg"),
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Scraped)
	assert.Equal(t, 0, downloader.callCount())
}

func TestRunLogsCarryRunAndWorker(t *testing.T) {
	root := t.TempDir()
	downloader := &fakeDownloader{payloads: map[string][]byte{
		"https://img/dunk.jpg": pngBytes(t, color.White),
	}}
	recs := []records.Record{record("Nike Dunk Low", "DD1391-100", "https://img/dunk.jpg")}

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug", "json")
	runID := uuid.New()

	_, err := NewOrchestrator(newTestSource(root), downloader, Options{Workers: 1, RunID: runID}, log).
		Run(context.Background(), recs)
	require.NoError(t, err)

	_, err = NewOrchestrator(newTestSource(root), downloader, Options{Workers: 1, RunID: runID, ForceSkip: true}, log).
		Run(context.Background(), recs)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))

		msg, _ := entry["msg"].(string)
		if msg != "downloading images" && msg != "skipping download" {
			continue
		}
		seen[msg] = true
		assert.Equal(t, runID.String(), entry["run_id"], msg)
		assert.Equal(t, float64(0), entry["worker"], msg)
	}
	assert.True(t, seen["downloading images"])
	assert.True(t, seen["skipping download"])
}

func TestScrapFailedWrapsCause(t *testing.T) {
	root := t.TempDir()
	orch := NewOrchestrator(newTestSource(root), &fakeDownloader{}, Options{}, logger.Discard())
	model := models.NewSneaker(root, "nike_dunk_low", "A", record("Nike Dunk Low", "A", "https://img/a.jpg"), logger.Discard())

	_, err := orch.scrapItem(context.Background(), model, &workerResult{}, logger.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScrapFailed))
	assert.Contains(t, err.Error(), "nike_dunk_low (A)")
}

func assertFiles(t *testing.T, dir string, expected ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, expected, got)
}
