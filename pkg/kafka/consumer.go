package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicPrefix is the prefix of every topic this service owns.
const TopicPrefix = "storefront"

// Topic builds "storefront.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// Handler processes one event.
type Handler func(ctx context.Context, event *Event) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deadLetterer receives messages whose handler kept failing.
type deadLetterer interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	MaxRetries int
	RetryDelay time.Duration
}

const maxDeadLetterBackoff = 30 * time.Second

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10e6
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	return c
}

// Consumer reads one topic in a consumer group and commits each message
// after its handler succeeds, or after it was dead-lettered.
type Consumer struct {
	reader    messageReader
	dlq       deadLetterer
	cfg       ConsumerConfig
	handler   Handler
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer. dlq may be nil, in which case exhausted
// messages are logged and skipped.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *DLQProducer, logger *slog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	c := &Consumer{reader: r, cfg: cfg, handler: handler, logger: logger}
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
	)
	defer func() { _ = c.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", slog.String("topic", c.cfg.Topic))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()

		if err := c.process(ctx, msg); err != nil {
			// Only cancellation gets here. Nothing later is committed, so the
			// group redelivers msg after the rebalance.
			c.logger.Info("consumer stopping mid-message",
				slog.String("topic", c.cfg.Topic),
				slog.Int64("offset", msg.Offset),
			)
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// process runs the handler with retries. It returns nil when the message
// can be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return c.deadLetter(ctx, msg, err)
	}

	hctx := extractTrace(ctx, &msg)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if lastErr = c.handler(hctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(hctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("key", event.Key),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.cfg.RetryDelay):
			}
		}
	}
	ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.cfg.GroupID).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
		return c.deadLetter(ctx, msg, lastErr)
	}
	ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
	return nil
}

// deadLetter parks msg on the DLQ. A failed publish is retried until it
// succeeds or ctx ends: committing past a message that is neither handled
// nor parked would lose it.
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.dlq == nil {
		c.logger.Error("dropping poison message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", cause.Error()),
		)
		return nil
	}
	for attempt := 1; ; attempt++ {
		err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID)
		if err == nil {
			ConsumerDLQPublished.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
			return nil
		}
		c.logger.Error("failed to dead-letter message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		delay := time.Duration(attempt) * c.cfg.RetryDelay
		if delay > maxDeadLetterBackoff {
			delay = maxDeadLetterBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
