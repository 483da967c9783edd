package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"splitgroups/internal/platform/messaging"
	"splitgroups/pkg/requestcontext"
)

const publishTimeout = 5 * time.Second

// Publisher is fire-and-forget: Publish never reports failure to the caller.
// Transport errors and buffer overflow are logged and counted.
//
// Without WithAsyncBuffer, Publish sends inline. With it, events are queued and
// sent by one worker goroutine; Close drains the queue.
type Publisher struct {
	transport messaging.Publisher
	topic     string
	logger    *slog.Logger
	metrics   *Metrics

	queue  chan queued
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx       context.Context
	eventType string
	msg       *messaging.Message
}

type Option func(*Publisher)

// WithAsyncBuffer enables the background worker with a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan queued, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(transport messaging.Publisher, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		transport: transport,
		topic:     topic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Publish encodes the event, stamped with the request time, and sends it.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	env, err := NewEnvelope(event, requestcontext.Now(ctx))
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build group event", "error", err)
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode group event",
			"type", env.Type,
			"group_id", env.GroupID,
			"error", err,
		)
		return
	}
	msg := &messaging.Message{Topic: p.topic, Key: []byte(env.GroupID), Value: value}
	// The request may finish before the worker runs.
	detached := context.WithoutCancel(ctx)

	if p.queue == nil {
		p.send(detached, env.Type, msg)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, env.Type, env.GroupID, "publisher closed")
		return
	}
	select {
	case p.queue <- queued{ctx: detached, eventType: env.Type, msg: msg}:
	default:
		p.drop(ctx, env.Type, env.GroupID, "buffer full")
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for item := range p.queue {
		p.send(item.ctx, item.eventType, item.msg)
	}
}

func (p *Publisher) send(ctx context.Context, eventType string, msg *messaging.Message) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.transport.Publish(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.Failed.WithLabelValues(eventType).Inc()
		}
		p.logger.ErrorContext(ctx, "failed to publish group event",
			"type", eventType,
			"group_id", string(msg.Key),
			"error", err,
		)
		return
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(eventType).Inc()
	}
}

func (p *Publisher) drop(ctx context.Context, eventType, groupID, reason string) {
	if p.metrics != nil {
		p.metrics.Dropped.WithLabelValues(eventType).Inc()
	}
	p.logger.WarnContext(ctx, "dropping group event",
		"type", eventType,
		"group_id", groupID,
		"reason", reason,
	)
}
