package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"splitgroups/internal/platform/messaging"
)

// Consumer implements messaging.Subscriber with a consumer group. Offsets are
// committed only for records whose handler returned nil.
type Consumer struct {
	brokers []string
	group   string
	logger  *slog.Logger
	opts    []kgo.Opt

	client *kgo.Client
}

// NewConsumer prepares a group consumer; the client is created on Subscribe.
func NewConsumer(brokers []string, group string, logger *slog.Logger, opts ...kgo.Opt) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{brokers: brokers, group: group, logger: logger, opts: opts}
}

// Subscribe polls until ctx is cancelled. A handler error leaves the record's
// offset uncommitted and ends the subscription so the record is redelivered on
// restart; wrap handlers in messaging.Retry to absorb transient failures.
func (c *Consumer) Subscribe(ctx context.Context, topics []string, handler messaging.Handler) error {
	if len(topics) == 0 {
		return errors.New("kafka subscribe: no topics")
	}
	all := append([]kgo.Opt{
		kgo.SeedBrokers(c.brokers...),
		kgo.ConsumerGroup(c.group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}, c.opts...)
	client, err := kgo.NewClient(all...)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	c.client = client
	defer client.Close()

	c.logger.InfoContext(ctx, "kafka consumer started", "group", c.group, "topics", topics)

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		var handled []*kgo.Record
		var handleErr error
		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			msg := &messaging.Message{Topic: rec.Topic, Key: rec.Key, Value: rec.Value}
			if err := handler.Handle(ctx, msg); err != nil {
				handleErr = err
				c.logger.ErrorContext(ctx, "kafka message handler failed",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err,
				)
				break
			}
			handled = append(handled, rec)
		}

		if len(handled) > 0 {
			if err := client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "failed to commit kafka offsets", "error", err)
			}
		}
		if handleErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka handler: %w", handleErr)
		}
	}
}

// Close stops an active subscription.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
