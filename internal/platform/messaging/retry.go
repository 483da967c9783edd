package messaging

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultMaxRetries  = 5
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// ExhaustedFunc is called once a message has failed every attempt.
type ExhaustedFunc func(ctx context.Context, msg *Message, err error)

// RetryHandler retries a failing handler with exponential backoff and drops the
// message once retries are exhausted, so one poison message cannot stall the loop.
type RetryHandler struct {
	next        Handler
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	onExhausted ExhaustedFunc
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// RetryOption configures a RetryHandler.
type RetryOption func(*RetryHandler)

func WithMaxRetries(n int) RetryOption {
	return func(h *RetryHandler) {
		if n >= 0 {
			h.maxRetries = n
		}
	}
}

func WithBackoff(base, max time.Duration) RetryOption {
	return func(h *RetryHandler) {
		if base > 0 {
			h.baseBackoff = base
		}
		if max > 0 {
			h.maxBackoff = max
		}
	}
}

func WithOnExhausted(fn ExhaustedFunc) RetryOption {
	return func(h *RetryHandler) {
		h.onExhausted = fn
	}
}

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(h *RetryHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// withSleeper replaces the backoff wait in tests.
func withSleeper(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(h *RetryHandler) {
		h.sleep = fn
	}
}

// Retry wraps next with bounded retries.
func Retry(next Handler, opts ...RetryOption) *RetryHandler {
	h := &RetryHandler{
		next:        next,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Handle returns nil after success or after giving up; it returns the context
// error only when shutdown interrupts a backoff.
func (h *RetryHandler) Handle(ctx context.Context, msg *Message) error {
	var err error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := h.backoff(attempt)
			h.logger.InfoContext(ctx, "retrying message",
				"topic", msg.Topic,
				"attempt", attempt,
				"max", h.maxRetries,
				"backoff", backoff,
			)
			if sleepErr := h.sleep(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		}

		err = h.next.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		h.logger.WarnContext(ctx, "message processing failed",
			"topic", msg.Topic,
			"attempt", attempt,
			"error", err,
		)
	}

	h.logger.ErrorContext(ctx, "dropping message after retries",
		"topic", msg.Topic,
		"key", string(msg.Key),
		"retries", h.maxRetries,
		"error", err,
	)
	if h.onExhausted != nil {
		h.onExhausted(ctx, msg, err)
	}
	return nil
}

func (h *RetryHandler) backoff(attempt int) time.Duration {
	d := h.baseBackoff << (attempt - 1)
	if d <= 0 || d > h.maxBackoff {
		return h.maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
