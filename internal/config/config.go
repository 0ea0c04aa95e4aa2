package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Dataset  DatasetConfig
	Input    InputConfig
	Scraper  ScraperConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

type DatasetConfig struct {
	Root         string
	ManifestPath string
}

type InputConfig struct {
	CSVPath   string
	Separator string
}

type ScraperConfig struct {
	Workers          int
	ForceSkip        bool
	MaxRetries       int
	RetryDelay       time.Duration
	RequestTimeout   time.Duration
	ExcludedKeywords []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type MetricsConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		Dataset: DatasetConfig{
			Root:         getEnvOrDefault("DATASET_ROOT", "./dataset"),
			ManifestPath: getEnvOrDefault("MANIFEST_PATH", ""),
		},
		Input: InputConfig{
			CSVPath:   getEnvOrDefault("CSV_PATH", ""),
			Separator: getEnvOrDefault("CSV_SEPARATOR", ","),
		},
		Scraper: ScraperConfig{
			Workers:          getIntOrDefault("SCRAPER_WORKERS", 1),
			ForceSkip:        getBoolOrDefault("SCRAPER_FORCE_SKIP", false),
			MaxRetries:       getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:       getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
			RequestTimeout:   getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 30*time.Second),
			ExcludedKeywords: getStringSliceOrDefault("SCRAPER_EXCLUDED_KEYWORDS", defaultExcludedKeywords()),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:sneaker_dataset"),
		},
		Metrics: MetricsConfig{
			Addr: getEnvOrDefault("METRICS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Dataset.Root == "" {
		return fmt.Errorf("DATASET_ROOT is required")
	}

	if c.Input.Separator == "" {
		return fmt.Errorf("CSV_SEPARATOR cannot be empty")
	}

	if strings.Contains(c.Input.Separator, `"`) {
		return fmt.Errorf("CSV_SEPARATOR cannot contain a quote")
	}

	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Scraper.RetryDelay < 0 {
		return fmt.Errorf("SCRAPER_RETRY_DELAY cannot be negative")
	}

	return nil
}

// Manifest returns MANIFEST_PATH, or manifest.json inside the dataset root
// when it is unset. Call it after flags have been applied.
func (d DatasetConfig) Manifest() string {
	if d.ManifestPath != "" {
		return d.ManifestPath
	}
	return filepath.Join(d.Root, "manifest.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

func defaultExcludedKeywords() []string {
	return []string{"blazer", "ebernon", "kyrie", "court"}
}
