package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0") // Mock stream ID
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOutboxRepository is a mock for OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

// xaddValues extracts the values map from XAddArgs; go-redis declares
// Values as interface{}.
func xaddValues(args *redis.XAddArgs) map[string]interface{} {
	values, ok := args.Values.(map[string]interface{})
	if !ok {
		return nil
	}
	return values
}

func draftReadyEvent(draftID string) *OutboxEvent {
	payload, _ := json.Marshal(map[string]string{
		"draft_id":    draftID,
		"source_id":   "B0TEST123",
		"marketplace": "amazon",
		"status":      "draft",
	})
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "listing_draft",
		AggregateID:   draftID,
		EventType:     "LISTING_DRAFT_READY",
		Payload:       payload,
		TargetStream:  "stream:listing_lifecycle",
		CreatedAt:     time.Now(),
	}
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("successfully process and publish events", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		events := []*OutboxEvent{
			draftReadyEvent("draft-001"),
			draftReadyEvent("draft-002"),
		}

		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		// Expect Redis XAdd for each event with the draft ID flattened
		// into the stream values
		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				values := xaddValues(args)
				return args.Stream == event.TargetStream &&
					values["event_type"] == event.EventType &&
					values["draft_id"] == event.AggregateID
			})).Return(nil)

			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("handle Redis publish failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		event := draftReadyEvent("draft-001")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)

		// Simulate Redis error
		redisErr := errors.New("redis connection failed")
		mockRedis.On("XAdd", ctx, mock.Anything).Return(redisErr)

		// Should mark as failed
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		err := relay.processEvents(ctx)
		assert.NoError(t, err) // processEvents should not fail on individual event errors

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("malformed payload without draft_id never reaches the stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		event := &OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "listing_draft",
			AggregateID:   "draft-001",
			EventType:     "LISTING_DRAFT_READY",
			Payload:       json.RawMessage(`{"source_id":"B0TEST123"}`),
			TargetStream:  "stream:listing_lifecycle",
			CreatedAt:     time.Now(),
		}

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err != nil && err.Error() != ""
		})).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("handle empty event batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		// Should not call Redis at all
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("continue processing on individual event failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		events := []*OutboxEvent{
			draftReadyEvent("draft-001"),
			draftReadyEvent("draft-002"),
		}

		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		// First event fails
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return xaddValues(args)["draft_id"] == "draft-001"
		})).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0].ID, mock.Anything).Return(nil)

		// Second event succeeds
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return xaddValues(args)["draft_id"] == "draft-002"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})
}

func TestRelay_PublishToRedis(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("envelope carries the event document and draft status metadata", func(t *testing.T) {
		mockRedis := new(MockRedisClient)

		relay := &Relay{
			redis:  mockRedis,
			logger: logger,
		}

		payload, err := json.Marshal(map[string]interface{}{
			"draft_id":    "d-001",
			"source_id":   "B0TEST123",
			"marketplace": "amazon",
			"status":      "blocked",
			"sell_price":  29.99,
		})
		require.NoError(t, err)

		event := &OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "listing_draft",
			AggregateID:   "d-001",
			EventType:     "LISTING_DRAFT_READY",
			Payload:       payload,
			TargetStream:  "stream:listing_lifecycle",
			RetryCount:    2,
			CreatedAt:     time.Now(),
		}

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values := xaddValues(args)
			raw, ok := values["data"].(string)
			if !ok {
				return false
			}

			var envelope streamEnvelope
			if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
				return false
			}

			var decoded map[string]interface{}
			if err := json.Unmarshal(envelope.Payload, &decoded); err != nil {
				return false
			}

			return envelope.ID == event.ID.String() &&
				envelope.Type == "LISTING_DRAFT_READY" &&
				envelope.AggregateType == "listing_draft" &&
				envelope.AggregateID == "d-001" &&
				envelope.Timestamp != "" &&
				envelope.Metadata.Source == "crosslister" &&
				envelope.Metadata.DraftStatus == "blocked" &&
				envelope.Metadata.RetryCount == 2 &&
				decoded["sell_price"] == 29.99
		})).Return(nil)

		err = relay.publishToRedis(ctx, event)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
	})

	t.Run("payload is flattened for consumers", func(t *testing.T) {
		mockRedis := new(MockRedisClient)

		relay := &Relay{
			redis:  mockRedis,
			logger: logger,
		}

		event := draftReadyEvent("draft-001")

		// The lifecycle consumer reads event_type and payload straight off
		// the stream values without unwrapping the envelope.
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values := xaddValues(args)
			raw, ok := values["payload"].(string)
			if !ok {
				return false
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				return false
			}

			return values["event_type"] == "LISTING_DRAFT_READY" &&
				values["draft_id"] == "draft-001" &&
				payload["draft_id"] == "draft-001"
		})).Return(nil)

		err := relay.publishToRedis(ctx, event)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
	})

	t.Run("missing draft_id is rejected", func(t *testing.T) {
		mockRedis := new(MockRedisClient)

		relay := &Relay{
			redis:  mockRedis,
			logger: logger,
		}

		event := &OutboxEvent{
			ID:           uuid.New(),
			EventType:    "LISTING_DRAFT_READY",
			Payload:      json.RawMessage(`{"status":"draft"}`),
			TargetStream: "stream:listing_lifecycle",
			CreatedAt:    time.Now(),
		}

		err := relay.publishToRedis(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no draft_id")

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestRelay_Start(t *testing.T) {
	logger := slog.Default()

	t.Run("stop on context cancellation", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			interval:  50 * time.Millisecond,
			batchSize: 10,
		}

		// Return empty events
		mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

		ctx, cancel := context.WithCancel(context.Background())

		// Start relay in background
		done := make(chan error)
		go func() {
			done <- relay.Start(ctx)
		}()

		// Let it run for a bit
		time.Sleep(100 * time.Millisecond)

		// Cancel context
		cancel()

		// Should exit cleanly
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(1 * time.Second):
			t.Fatal("relay did not stop on context cancellation")
		}
	})
}
