package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ozrentals/drivenow-scraper/internal/models"
	"github.com/ozrentals/drivenow-scraper/internal/scraper"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher pushes run milestones onto a Redis stream so downstream
// consumers (dashboards, alerting) can follow a scrape live. Publishing is
// strictly best effort; a dead Redis never affects the run.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(addr, stream string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: slog.Default().With("component", "events"),
	}, nil
}

func NewPublisherWithClient(client RedisClient, stream string) *Publisher {
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: slog.Default().With("component", "events"),
	}
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}

func (p *Publisher) RunStarted(runID string, total int) {
	p.publish("run_started", runID, map[string]interface{}{
		"combinations": total,
	})
}

func (p *Publisher) CombinationDone(runID string, combo models.Combination, vehicles int, err error) {
	payload := map[string]interface{}{
		"city":     combo.City.Name,
		"pickup":   combo.Pickup.Format("2006-01-02"),
		"return":   combo.Return.Format("2006-01-02"),
		"vehicles": vehicles,
		"success":  err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.publish("combination_done", runID, payload)
}

func (p *Publisher) RunFinished(runID string, summary scraper.Summary) {
	p.publish("run_finished", runID, map[string]interface{}{
		"combinations": summary.Combinations,
		"succeeded":    summary.Succeeded,
		"failed":       summary.Failed,
		"inserted":     summary.Inserted,
		"duration_ms":  summary.Duration.Milliseconds(),
	})
}

func (p *Publisher) publish(eventType, runID string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event payload", "type", eventType, "error", err)
		return
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"id":        uuid.New().String(),
			"type":      eventType,
			"run_id":    runID,
			"timestamp": time.Now().Format(time.RFC3339),
			"data":      string(data),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		p.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}
