package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/pkg/logger"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

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

func runEvent(runID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateScrapeRun,
		AggregateID:   runID,
		EventType:     EventTypeReviewsScrape,
		Payload:       json.RawMessage(`{"run_id":"` + runID + `","source":"g2","review_count":3}`),
		TargetStream:  DefaultStream,
		CreatedAt:     time.Date(2024, 2, 16, 8, 0, 0, 0, time.UTC),
	}
}

func newTestRelay(r RedisClient, o OutboxRepo) *Relay {
	return NewRelay(o, r, logger.Discard(), RelayConfig{PollInterval: 50 * time.Millisecond, BatchSize: 10})
}

func process(t *testing.T, ctx context.Context, relay *Relay) int {
	t.Helper()
	fetched, err := relay.processEvents(ctx)
	require.NoError(t, err)
	return fetched
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{runEvent("run-1"), runEvent("run-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == DefaultStream &&
					args.Values.(map[string]any)["event_type"] == EventTypeReviewsScrape &&
					args.Values.(map[string]any)["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		process(t, ctx, relay)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks failed when redis rejects the event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		event := runEvent("run-1")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		process(t, ctx, relay)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("invalid payload is never published", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		event := runEvent("run-1")
		event.Payload = json.RawMessage(`{broken`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		process(t, ctx, relay)

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		process(t, ctx, relay)

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("outbox query failure", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(new(MockRedisClient), mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection reset"))

		_, err := relay.processEvents(ctx)
		assert.Error(t, err)
	})

	t.Run("continues after an individual failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{runEvent("run-1"), runEvent("run-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "run-1"
		})).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0].ID, mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "run-2"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		process(t, ctx, relay)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})
}

func TestRelay_PublishToMiniredis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(client, mockOutbox)

	event := runEvent("3f1c2d4e-0000-4000-8000-000000000001")
	mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
	mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)

	process(t, ctx, relay)
	mockOutbox.AssertExpectations(t)

	entries, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, EventTypeReviewsScrape, values["event_type"])
	assert.Equal(t, event.ID.String(), values["original_id"])

	var msg streamMessage
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &msg))
	assert.Equal(t, AggregateScrapeRun, msg.AggregateType)
	assert.Equal(t, "2024-02-16T08:00:00Z", msg.Timestamp)
	assert.Equal(t, "review-scraper", msg.Metadata.Producer)
	assert.JSONEq(t, string(event.Payload), string(msg.Payload))
}

func TestRelay_DrainFollowsFullBatches(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := NewRelay(mockOutbox, mockRedis, logger.Discard(), RelayConfig{PollInterval: time.Hour, BatchSize: 2})

	full := []*OutboxEvent{runEvent("run-1"), runEvent("run-2")}
	rest := []*OutboxEvent{runEvent("run-3")}
	mockOutbox.On("GetPending", ctx, 2).Return(full, nil).Once()
	mockOutbox.On("GetPending", ctx, 2).Return(rest, nil).Once()
	mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
	for _, e := range append(full, rest...) {
		mockOutbox.On("MarkProcessed", ctx, e.ID).Return(nil)
	}

	relay.drain(ctx)

	mockOutbox.AssertNumberOfCalls(t, "GetPending", 2)
	mockRedis.AssertNumberOfCalls(t, "XAdd", 3)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), mockOutbox)

	mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
