// Package kafkaconsumer applies record change events from other gateway
// instances to the local result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/cartodb-adapter/internal/cache"
	"github.com/mohammed-shakir/cartodb-adapter/internal/changeevents"
	obs "github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	mylog "github.com/mohammed-shakir/cartodb-adapter/internal/logger"
)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  cache.Store
}

func New(cfg Config, logger *slog.Logger, c cache.Store) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, cache: c}
}

// Start consumes until ctx is done, rejoining the group after session errors.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache store")
	}
	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.cfg.sarama())
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	c.logger.InfoContext(ctx, "change event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	h := claimHandler{apply: c.ProcessOne}
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{c.cfg.Topic}, h)
		if err == nil || ctx.Err() != nil {
			continue
		}
		c.logger.ErrorContext(ctx, "consumer session failed", "err", err, "retry_in", c.cfg.Backoff.String())
		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.Backoff):
		}
	}
	c.logger.InfoContext(ctx, "change event consumer shutting down")
	return nil
}

// ProcessOne bumps the cache generation of the table named by one event.
// Undecodable messages are skipped so they cannot stall the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev changeevents.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.Table == "" {
		obs.IncChangeEvent("undecodable")
		c.logger.WarnContext(ctx, "skipping change event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	ctx = mylog.WithRequestID(ctx, ev.RequestID)
	ctx = mylog.WithTable(ctx, ev.Table)
	if err := c.cache.Bump(ctx, ev.Table); err != nil {
		obs.IncCacheError()
		return fmt.Errorf("bump generation of %q: %w", ev.Table, err)
	}
	obs.IncChangeEvent("applied")
	c.logger.DebugContext(ctx, "cache generation bumped", "op", ev.Op, "id", ev.ID)
	return nil
}

// claimHandler applies each message of a claim in offset order and marks
// it only once applied. A failed message ends the session so the group
// redelivers it from the last marked offset.
type claimHandler struct {
	apply func(context.Context, *sarama.ConsumerMessage) error
}

func (claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			// rebalance or shutdown; unmarked messages are redelivered
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			msg = m
		}
		if err := h.apply(ctx, msg); err != nil {
			return fmt.Errorf("apply %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		sess.MarkMessage(msg, "")
	}
}
