package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Consumes listing lifecycle events from the Redis stream and forwards
// draft-ready notifications to the companion webhook so the extension's
// backend can refresh its view.
func main() {
	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Redis connection
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", redisAddr)

	// Database connection
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "crosslister"),
	)

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Connected to database")

	consumer := &Consumer{
		redis:      rdb,
		db:         db,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		webhookURL: getEnv("WEBHOOK_URL", ""),
		logger:     logger,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Consumer error: %v", err)
	}
}

type Consumer struct {
	redis      *redis.Client
	db         *pgxpool.Pool
	httpClient *http.Client
	webhookURL string
	logger     *slog.Logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Consumer) Run(ctx context.Context) error {
	streamKey := getEnv("REDIS_STREAM", "stream:listing_lifecycle")
	consumerGroup := "lifecycle-consumer-group"
	consumerName := "consumer-1"

	// Create consumer group (ignore error if already exists)
	c.redis.XGroupCreate(ctx, streamKey, consumerGroup, "0").Err()

	c.logger.Info("Starting consumer", "stream", streamKey, "group", consumerGroup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{streamKey, ">"},
				Count:    1,
				Block:    5 * time.Second,
				NoAck:    false,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue // No new messages
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Failed to read from stream", "error", err)
				time.Sleep(1 * time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					if err := c.processMessage(ctx, message); err != nil {
						c.logger.Error("Failed to process message", "id", message.ID, "error", err)
						continue
					}

					if err := c.redis.XAck(ctx, streamKey, consumerGroup, message.ID).Err(); err != nil {
						c.logger.Error("Failed to acknowledge message", "id", message.ID, "error", err)
					}
				}
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, ok := msg.Values["event_type"].(string)
	if !ok {
		return nil
	}
	if eventType != "LISTING_DRAFT_READY" && eventType != "LISTING_SUBMITTED" {
		return nil // Skip non-matching events
	}

	payloadStr, ok := msg.Values["payload"].(string)
	if !ok {
		return fmt.Errorf("missing payload in event")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	draftID, ok := payload["draft_id"].(string)
	if !ok || draftID == "" {
		return fmt.Errorf("missing draft_id in payload")
	}

	c.logger.Info("Processing lifecycle event",
		"message_id", msg.ID,
		"event_type", eventType,
		"draft_id", draftID,
	)

	// Confirm the draft still exists before notifying anyone.
	var status string
	err := c.db.QueryRow(ctx, "SELECT status FROM listing_draft WHERE id = $1", draftID).Scan(&status)
	if err != nil {
		return fmt.Errorf("draft %s not found: %w", draftID, err)
	}

	if c.webhookURL == "" {
		c.logger.Info("No webhook configured, event logged only", "draft_id", draftID, "status", status)
		return nil
	}

	return c.notify(ctx, eventType, draftID, status)
}

func (c *Consumer) notify(ctx context.Context, eventType, draftID, status string) error {
	body, err := json.Marshal(map[string]string{
		"event_type": eventType,
		"draft_id":   draftID,
		"status":     status,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	c.logger.Info("Notification delivered", "draft_id", draftID, "event_type", eventType)
	return nil
}
