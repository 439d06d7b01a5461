package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flipline/crosslister/internal/database"
	"github.com/flipline/crosslister/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeListingDraftReady is published when a draft finishes assembly.
	EventTypeListingDraftReady EventType = "LISTING_DRAFT_READY"
	// EventTypeListingSubmitted is published when a draft is submitted to the
	// marketplace form filler.
	EventTypeListingSubmitted EventType = "LISTING_SUBMITTED"
)

// ListingDraftPayload is the payload shared by listing lifecycle events.
type ListingDraftPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	DraftID      string    `json:"draft_id"`
	SourceID     string    `json:"source_id"`
	Marketplace  string    `json:"marketplace"`
	Title        string    `json:"title,omitempty"`
	SellPrice    float64   `json:"sell_price,omitempty"`
	Status       string    `json:"status"`
	VeroOverride bool      `json:"vero_override,omitempty"`
	Source       string    `json:"source"`
}

// Publisher handles event publishing using the transactional outbox pattern.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishDraftEvent publishes a listing lifecycle event through the outbox.
func (p *Publisher) PublishDraftEvent(ctx context.Context, eventType EventType, draft *models.Draft) error {
	payload := &ListingDraftPayload{
		EventID:      uuid.New().String(),
		EventType:    string(eventType),
		Timestamp:    time.Now(),
		DraftID:      draft.ID,
		SourceID:     draft.SourceID,
		Marketplace:  draft.Marketplace,
		Title:        draft.Title(),
		Status:       string(draft.Status),
		VeroOverride: draft.VeroOverride,
		Source:       "crosslister",
	}
	if draft.Pricing != nil {
		payload.SellPrice = draft.Pricing.SellPrice
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "listing_draft",
		AggregateID:   draft.ID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  database.DefaultListingStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"draft_id", draft.ID,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
