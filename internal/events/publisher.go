package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/sneaker-dataset-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeModelScraped is published after a sneaker's images are in the dataset
	EventTypeModelScraped EventType = "SNEAKER_MODEL_SCRAPED"

	DefaultStream = "stream:sneaker_dataset"

	source = "sneaker-dataset-scraper"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ModelScrapedPayload is the JSON body of a SNEAKER_MODEL_SCRAPED event
type ModelScrapedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	Variant   string    `json:"variant"`
	Images    int       `json:"images"`
	Source    string    `json:"source"`
}

// Publisher writes scrape events to a Redis stream
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}

	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// ModelScraped publishes a SNEAKER_MODEL_SCRAPED event for record
func (p *Publisher) ModelScraped(ctx context.Context, record *models.ScrapeRecord) error {
	payload := &ModelScrapedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeModelScraped),
		Timestamp: record.ScrapedAt,
		RunID:     record.RunID.String(),
		Model:     record.Model,
		Variant:   record.Variant,
		Images:    record.Images,
		Source:    source,
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":         string(data),
			"type":         payload.EventType,
			"timestamp":    fmt.Sprintf("%d", payload.Timestamp.UnixNano()),
			"event_id":     payload.EventID,
			"aggregate_id": fmt.Sprintf("%s/%s", record.Model, record.Variant),
			"run_id":       payload.RunID,
		},
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"stream_id", id,
		"model", record.Model,
		"variant", record.Variant)

	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
