package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"DATASET_ROOT", "MANIFEST_PATH", "CSV_PATH", "CSV_SEPARATOR",
		"SCRAPER_WORKERS", "SCRAPER_FORCE_SKIP", "SCRAPER_MAX_RETRIES", "SCRAPER_RETRY_DELAY",
		"SCRAPER_EXCLUDED_KEYWORDS", "DATABASE_URL", "REDIS_ADDR", "METRICS_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "./dataset", cfg.Dataset.Root)
	assert.Empty(t, cfg.Dataset.ManifestPath)
	assert.Equal(t, filepath.Join("./dataset", "manifest.json"), cfg.Dataset.Manifest())
	assert.Equal(t, ",", cfg.Input.Separator)
	assert.Equal(t, 1, cfg.Scraper.Workers)
	assert.False(t, cfg.Scraper.ForceSkip)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Scraper.RetryDelay)
	assert.Equal(t, []string{"blazer", "ebernon", "kyrie", "court"}, cfg.Scraper.ExcludedKeywords)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "stream:sneaker_dataset", cfg.Redis.Stream)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATASET_ROOT", "/data/sneakers")
	t.Setenv("MANIFEST_PATH", "")
	t.Setenv("SCRAPER_WORKERS", "4")
	t.Setenv("SCRAPER_FORCE_SKIP", "true")
	t.Setenv("SCRAPER_RETRY_DELAY", "500ms")
	t.Setenv("SCRAPER_EXCLUDED_KEYWORDS", "blazer, dunk ,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/sneakers", cfg.Dataset.Root)
	assert.Equal(t, filepath.Join("/data/sneakers", "manifest.json"), cfg.Dataset.Manifest())
	assert.Equal(t, 4, cfg.Scraper.Workers)
	assert.True(t, cfg.Scraper.ForceSkip)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraper.RetryDelay)
	assert.Equal(t, []string{"blazer", "dunk"}, cfg.Scraper.ExcludedKeywords)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Dataset: DatasetConfig{Root: "dataset"},
			Input:   InputConfig{Separator: ","},
			Scraper: ScraperConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		hasErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no root", func(c *Config) { c.Dataset.Root = "" }, true},
		{"no separator", func(c *Config) { c.Input.Separator = "" }, true},
		{"zero workers", func(c *Config) { c.Scraper.Workers = 0 }, true},
		{"zero retries", func(c *Config) { c.Scraper.MaxRetries = 0 }, true},
		{"negative delay", func(c *Config) { c.Scraper.RetryDelay = -time.Second }, true},
		{"zero delay", func(c *Config) { c.Scraper.RetryDelay = 0 }, false},
		{"quote separator", func(c *Config) { c.Input.Separator = `"` }, true},
		{"separator containing quote", func(c *Config) { c.Input.Separator = `;"` }, true},
		{"multi-char separator", func(c *Config) { c.Input.Separator = "||" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.hasErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManifestFollowsRootOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATASET_ROOT", "")
	t.Setenv("MANIFEST_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	// -root is applied after Load
	cfg.Dataset.Root = "/data"
	assert.Equal(t, filepath.Join("/data", "manifest.json"), cfg.Dataset.Manifest())
}

func TestManifestExplicitPath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATASET_ROOT", "")
	t.Setenv("MANIFEST_PATH", "/var/lib/sneakers/index.json")

	cfg, err := Load()
	require.NoError(t, err)

	cfg.Dataset.Root = "/data"
	assert.Equal(t, "/var/lib/sneakers/index.json", cfg.Dataset.Manifest())
}
