// Package kafka wraps a consumer-group reader with at-least-once delivery:
// offsets are committed only after the handler returns nil, so redelivery
// after a crash is possible and handlers must tolerate duplicates.
package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, key, value []byte) error

const (
	fetchBackoffMin = 200 * time.Millisecond
	fetchBackoffMax = 5 * time.Second
)

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = zap.L()
	}

	offset := kafka.LastOffset
	if cfg.FromBeginning {
		offset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           offset,
		WatchPartitionChanges: true,
		MinBytes:              1e3,
		MaxBytes:              10e6,
		SessionTimeout:        10 * time.Second,
		RebalanceTimeout:      15 * time.Second,
		HeartbeatInterval:     3 * time.Second,
	})

	return &Consumer{
		reader: reader,
		log: log.With(
			zap.String("component", "kafka.consumer"),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.GroupID),
		),
	}
}

// Consume fetches until ctx is canceled. A handler error is logged and the
// message is left uncommitted, so the group redelivers it.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consuming")

	backoff := fetchBackoffMin
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer shut down")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				c.log.Debug("broker closed the fetch, backing off", zap.Duration("backoff", backoff))
			} else {
				c.log.Warn("fetch error, backing off", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > fetchBackoffMax {
				backoff = fetchBackoffMax
			}
			continue
		}
		backoff = fetchBackoffMin

		if err := h(ctx, msg.Key, msg.Value); err != nil {
			c.log.Error("event handler failed, offset not committed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("offset commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
