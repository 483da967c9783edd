// Package kafka implements the messaging transport on franz-go.
package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"splitgroups/internal/platform/messaging"
)

// Producer implements messaging.Publisher.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects a producer to the given brokers.
func NewProducer(brokers []string, opts ...kgo.Opt) (*Producer, error) {
	all := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client}, nil
}

// Publish produces synchronously; the events publisher already runs it off the
// request path. Records with the same key land on the same partition.
func (p *Producer) Publish(ctx context.Context, msg *messaging.Message) error {
	record := &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}
