package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
)

// Entry describes one (model, variant) directory of the dataset.
type Entry struct {
	Model     string    `json:"model"`
	Variant   string    `json:"variant"`
	Images    int       `json:"images"`
	RunID     string    `json:"run_id"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Entry) Key() string {
	return fmt.Sprintf("%s (%s)", e.Model, e.Variant)
}

// DefaultFlushEvery is how many updates a manifest buffers before saving.
const DefaultFlushEvery = 100

// Manifest is a JSON index of the dataset, keyed by "{model} ({variant})".
// Updates are kept in memory and saved every flushEvery records; Flush
// saves whatever is left.
type Manifest struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	filename   string
	flushEvery int
	pending    int
	version    uint64

	// serializes file writes; held without mu so readers and updates proceed
	saveMu sync.Mutex
	saved  uint64
}

func NewManifest(filename string) (*Manifest, error) {
	m := &Manifest{
		entries:    make(map[string]*Entry),
		filename:   filename,
		flushEvery: DefaultFlushEvery,
	}

	// Load existing data if file exists
	if err := m.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return m, nil
}

// ModelScraped records the latest scrape of a model. The manifest is saved
// once enough updates are pending.
func (m *Manifest) ModelScraped(ctx context.Context, record *models.ScrapeRecord) error {
	if record.Model == "" || record.Variant == "" {
		return fmt.Errorf("model and variant are required")
	}

	m.mu.Lock()

	now := time.Now().UTC()
	entry := &Entry{
		Model:     record.Model,
		Variant:   record.Variant,
		Images:    record.Images,
		RunID:     record.RunID.String(),
		AddedAt:   now,
		UpdatedAt: now,
	}
	if existing, ok := m.entries[entry.Key()]; ok {
		entry.AddedAt = existing.AddedAt
	}

	m.entries[entry.Key()] = entry
	m.pending++
	m.version++

	if m.pending < m.flushEvery {
		m.mu.Unlock()
		return nil
	}
	data, version, err := m.snapshot()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	return m.save(data, version)
}

// Flush saves every update not yet on disk, including ones whose batch save
// failed. It is a no-op when nothing changed since the manifest was opened.
func (m *Manifest) Flush() error {
	m.mu.Lock()
	if m.version == 0 {
		m.mu.Unlock()
		return nil
	}
	data, version, err := m.snapshot()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	return m.save(data, version)
}

// Entries returns a copy of every entry sorted by key.
func (m *Manifest) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key() < entries[j].Key() })
	return entries
}

func (m *Manifest) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]int{"models": len(m.entries)}
	for _, entry := range m.entries {
		stats["images"] += entry.Images
	}
	return stats
}

// snapshot must be called with mu held.
func (m *Manifest) snapshot() ([]byte, uint64, error) {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode manifest: %w", err)
	}
	m.pending = 0
	return data, m.version, nil
}

func (m *Manifest) save(data []byte, version uint64) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// a newer snapshot already reached the disk
	if version <= m.saved {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.filename), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := m.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmpFile, m.filename); err != nil {
		return err
	}
	m.saved = version
	return nil
}

func (m *Manifest) Load() error {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Unmarshal(data, &m.entries)
}
