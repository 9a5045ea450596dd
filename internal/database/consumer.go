package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamEvent is one relay message read back from a Redis stream.
type StreamEvent struct {
	StreamID    string
	ID          string
	Type        string
	AggregateID string
	Timestamp   string
	Payload     json.RawMessage
}

// StreamHandler processes one event. An error leaves the entry pending until
// the consumer restarts and replays its pending list.
type StreamHandler func(ctx context.Context, event StreamEvent) error

type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Name     string
	Count    int64
	Block    time.Duration
	Handlers map[string]StreamHandler
}

// Consumer reads relay events from a stream through a consumer group.
type Consumer struct {
	redis  StreamReader
	cfg    ConsumerConfig
	logger *slog.Logger
}

func NewConsumer(redisClient StreamReader, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = "review-consumers"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger.With("component", "consumer", "stream", cfg.Stream),
	}
}

// Run replays entries left pending by an earlier run, then consumes new
// entries until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("starting consumer", "group", c.cfg.Group, "name", c.cfg.Name)

	if _, err := c.replayPending(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("failed to replay pending messages", "error", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// poll reads one batch of new entries and returns how many were acknowledged.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	msgs, err := c.read(ctx, ">", c.cfg.Block)
	if err != nil {
		return 0, err
	}
	return c.process(ctx, msgs), nil
}

// replayPending walks the entries delivered to this consumer but never
// acknowledged, one batch at a time, and returns how many it acknowledged.
// Entries that fail again stay pending for the next run.
func (c *Consumer) replayPending(ctx context.Context) (int, error) {
	acked := 0
	start := "0"
	for {
		msgs, err := c.read(ctx, start, 0)
		if err != nil {
			return acked, err
		}
		if len(msgs) == 0 {
			break
		}
		acked += c.process(ctx, msgs)
		start = msgs[len(msgs)-1].ID
	}
	if acked > 0 {
		c.logger.Info("replayed pending messages", "acknowledged", acked)
	}
	return acked, nil
}

// read returns the entries for this consumer from start. ">" asks for new
// entries and blocks up to block; any other ID lists the pending entries
// after it without blocking.
func (c *Consumer) read(ctx context.Context, start string, block time.Duration) ([]redis.XMessage, error) {
	args := &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, start},
		Count:    c.cfg.Count,
		Block:    -1,
	}
	if block > 0 {
		args.Block = block
	}
	streams, err := c.redis.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage) int {
	acked := 0
	for _, msg := range msgs {
		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error("failed to process message", "id", msg.ID, "error", err)
			continue
		}
		if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
			c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			continue
		}
		acked++
	}
	return acked
}

// handle returns an error only for handler failures. Entries that cannot be
// decoded are logged and dropped since no retry can fix them.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	event, err := decodeStreamEvent(msg)
	if err != nil {
		c.logger.Error("dropping undecodable message", "id", msg.ID, "error", err)
		return nil
	}

	handler, ok := c.cfg.Handlers[event.Type]
	if !ok {
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", event.Type)
		return nil
	}
	return handler(ctx, event)
}

func decodeStreamEvent(msg redis.XMessage) (StreamEvent, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return StreamEvent{}, fmt.Errorf("message %s has no data field", msg.ID)
	}

	var m streamMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return StreamEvent{}, fmt.Errorf("failed to decode message %s: %w", msg.ID, err)
	}

	return StreamEvent{
		StreamID:    msg.ID,
		ID:          m.ID,
		Type:        m.Type,
		AggregateID: m.AggregateID,
		Timestamp:   m.Timestamp,
		Payload:     m.Payload,
	}, nil
}
