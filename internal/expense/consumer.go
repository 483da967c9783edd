package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"splitgroups/internal/platform/cache"
	"splitgroups/internal/platform/messaging"
	"splitgroups/internal/summary/models"
)

// ProcessedTTL is how long an applied event id is remembered.
const ProcessedTTL = 24 * time.Hour

// ClaimTTL bounds how long an in-flight claim blocks other deliveries of the
// same event if its holder dies before finishing.
const ClaimTTL = 5 * time.Minute

const (
	markerPending = "pending"
	markerDone    = "done"
)

// SummaryApplier is the slice of the summary service the consumer writes through.
type SummaryApplier interface {
	ApplyAggregateDelta(ctx context.Context, groupID string, delta models.AggregateDelta) error
	MarkStale(ctx context.Context, groupID string) error
}

// Consumer applies expense events to group summaries at most once per event id,
// as long as the marker cache is reachable.
type Consumer struct {
	summaries SummaryApplier
	markers   cache.Cache
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func NewConsumer(summaries SummaryApplier, markers cache.Cache, opts ...Option) *Consumer {
	c := &Consumer{
		summaries: summaries,
		markers:   markers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ messaging.Handler = (*Consumer)(nil)

// Handle processes one message. Unknown, malformed and duplicate events return
// nil. Each event id is claimed with SetNX before the summary write, so only
// one concurrent delivery applies it. A failed summary write releases the
// claim and returns an error so the caller can retry.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	event, err := Decode(msg.Value)
	switch {
	case errors.Is(err, ErrUnknownType):
		c.discarded("unknown_type")
		return nil
	case err != nil:
		c.logger.WarnContext(ctx, "discarding malformed expense event",
			"topic", msg.Topic,
			"error", err,
		)
		c.discarded("malformed")
		return nil
	}

	log := c.logger.With("event_id", event.EventID(), "group_id", event.GroupID())
	markerKey := cache.ProcessedEventKey(event.EventID())

	claimed, err := c.markers.SetNX(ctx, markerKey, markerPending, ClaimTTL)
	switch {
	case err != nil:
		// Degraded mode: a redelivery may double count, which is preferred
		// over losing the event.
		log.WarnContext(ctx, "processed-event claim unavailable, applying without dedup", "error", err)
		if c.metrics != nil {
			c.metrics.Degraded.Inc()
		}
	case !claimed:
		log.DebugContext(ctx, "skipping expense event already processed or in flight")
		if c.metrics != nil {
			c.metrics.Duplicates.Inc()
		}
		return nil
	}

	if err := c.summaries.ApplyAggregateDelta(ctx, event.GroupID(), event.Delta()); err != nil {
		c.failed("apply")
		if claimed {
			c.release(ctx, log, markerKey)
		}
		return fmt.Errorf("apply expense event %s: %w", event.EventID(), err)
	}

	if err := c.markers.Set(ctx, markerKey, markerDone, ProcessedTTL); err != nil {
		// The delta is already applied; retrying here would apply it twice.
		// The pending claim, if any, still covers redeliveries until it expires.
		log.ErrorContext(ctx, "failed to record processed expense event", "error", err)
		c.failed("marker")
		return nil
	}

	if c.metrics != nil {
		c.metrics.Applied.WithLabelValues(eventType(event)).Inc()
	}
	log.InfoContext(ctx, "expense event applied")
	return nil
}

// release drops an unfinished claim so a retry can take it again.
func (c *Consumer) release(ctx context.Context, log *slog.Logger, markerKey string) {
	if err := c.markers.Delete(context.WithoutCancel(ctx), markerKey); err != nil {
		log.WarnContext(ctx, "failed to release processed-event claim", "error", err)
		c.failed("release")
	}
}

// MarkStaleOnExhausted flags the event's group summary as stale once retries
// are exhausted, so readers and the reconciler can tell totals may be short.
func (c *Consumer) MarkStaleOnExhausted(ctx context.Context, msg *messaging.Message, cause error) {
	event, err := Decode(msg.Value)
	if err != nil {
		return
	}
	if err := c.summaries.MarkStale(context.WithoutCancel(ctx), event.GroupID()); err != nil {
		c.logger.ErrorContext(ctx, "failed to mark summary stale",
			"group_id", event.GroupID(),
			"event_id", event.EventID(),
			"cause", cause,
			"error", err,
		)
		return
	}
	c.logger.WarnContext(ctx, "summary marked stale after dropped expense event",
		"group_id", event.GroupID(),
		"event_id", event.EventID(),
		"cause", cause,
	)
}

func (c *Consumer) discarded(reason string) {
	if c.metrics != nil {
		c.metrics.Discarded.WithLabelValues(reason).Inc()
	}
}

func (c *Consumer) failed(stage string) {
	if c.metrics != nil {
		c.metrics.Failures.WithLabelValues(stage).Inc()
	}
}

func eventType(e Event) string {
	switch e.(type) {
	case ExpenseCreated:
		return TypeExpenseCreated
	case SummaryUpdated:
		return TypeSummaryUpdated
	default:
		return "unknown"
	}
}
