package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"splitgroups/internal/platform/messaging"
)

// PubSub implements messaging.Publisher and messaging.Subscriber over Redis
// channels. Redis pub/sub is at-most-once per subscriber; messages published
// while no subscriber is connected are lost.
type PubSub struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPubSub shares an existing client; it does not own its lifecycle.
func NewPubSub(client *redis.Client, logger *slog.Logger) *PubSub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSub{client: client, logger: logger}
}

// Publish sends msg.Value on channel msg.Topic. Keys have no meaning on Redis channels.
func (p *PubSub) Publish(ctx context.Context, msg *messaging.Message) error {
	if err := p.client.Publish(ctx, msg.Topic, msg.Value).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe blocks delivering messages to handler until ctx is cancelled.
// Handler errors are logged; Redis has no redelivery, so retries belong in the
// handler chain (messaging.Retry).
func (p *PubSub) Subscribe(ctx context.Context, topics []string, handler messaging.Handler) error {
	if len(topics) == 0 {
		return errors.New("redis subscribe: no channels")
	}
	sub := p.client.Subscribe(ctx, topics...)
	defer sub.Close()

	// Wait for the subscription confirmation so callers know we are live.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	p.logger.InfoContext(ctx, "subscribed to redis channels", "channels", topics)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg := &messaging.Message{Topic: m.Channel, Value: []byte(m.Payload)}
			if err := handler.Handle(ctx, msg); err != nil {
				p.logger.ErrorContext(ctx, "redis message handler failed",
					"channel", m.Channel,
					"error", err,
				)
			}
		}
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (p *PubSub) Close() error {
	return nil
}
