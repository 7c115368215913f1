package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"
)

type ConsumerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	InitialOffsetOldest bool
}

// Consumer processes feed invalidation events from Kafka.
type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger
	cache  *Cache
	seen   *lru.Cache[string, struct{}]
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger, cache *Cache) (*Consumer, error) {
	if cache == nil {
		return nil, errors.New("feedcache: consumer requires a cache")
	}
	seen, err := lru.New[string, struct{}](1024)
	if err != nil {
		return nil, fmt.Errorf("feedcache: dedupe cache: %w", err)
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, cache: cache, seen: seen}, nil
}

// Start consumes until the context ends. Consumer errors are logged and
// retried; the portal keeps serving cached feeds while Kafka is away.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("feed invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("feed invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single invalidation message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error("invalidation decode failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if _, dup := c.seen.Get(ev.dedupeKey()); dup {
		c.logger.Debug("duplicate invalidation skipped", "layer_id", ev.LayerID)
		return nil
	}

	if ev.Bounds != nil {
		evicted, err := c.cache.InvalidateBounds(ctx, *ev.Bounds)
		if err != nil {
			return fmt.Errorf("invalidate bounds: %w", err)
		}
		c.logger.Info("feeds evicted by bounds", "layer_id", ev.LayerID, "evicted", evicted)
	} else {
		if err := c.cache.InvalidateLayer(ctx, ev.LayerID); err != nil {
			return fmt.Errorf("invalidate layer: %w", err)
		}
		c.logger.Info("layer feeds evicted", "layer_id", ev.LayerID)
	}

	c.seen.Add(ev.dedupeKey(), struct{}{})
	return nil
}

type groupHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		// Errors are per-message: mark and move on so one bad event does
		// not wedge the partition.
		_ = h.process(sess.Context(), msg)
		sess.MarkMessage(msg, "")
	}
	return nil
}
