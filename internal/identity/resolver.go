package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"splitgroups/internal/platform/cache"
	"splitgroups/pkg/platform/circuit"
	"splitgroups/pkg/platform/sentinel"
	strutil "splitgroups/pkg/platform/strings"
)

// EmailTTL is how long a resolved email stays cached.
const EmailTTL = time.Hour

// Lookup is the outbound call the resolver guards.
type Lookup interface {
	LookupByEmail(ctx context.Context, email string) (string, error)
}

// Resolver maps emails to user ids: cache first, then the users service behind
// its breaker. Cache hits never consult the breaker.
type Resolver struct {
	lookup  Lookup
	breaker *circuit.Breaker
	cache   cache.Cache
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(lookup Lookup, breaker *circuit.Breaker, c cache.Cache, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  lookup,
		breaker: breaker,
		cache:   c,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the user id for email.
//
// Errors: sentinel.ErrNotFound for an unknown email, sentinel.ErrUnavailable
// when the breaker is open or the call failed.
func (r *Resolver) Resolve(ctx context.Context, email string) (string, error) {
	email = strutil.NormalizeEmail(email)
	key := cache.UserEmailKey(email)

	id, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "email cache read failed", "error", err)
	} else if found {
		return id, nil
	}

	if !r.breaker.CanRequest() {
		return "", errors.Join(sentinel.ErrUnavailable, circuit.ErrOpen)
	}

	id, err = r.lookup.LookupByEmail(ctx, email)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// The service answered; an unknown user is not a dependency failure.
		r.breaker.RecordSuccess()
		return "", sentinel.ErrNotFound
	case err != nil && ctx.Err() != nil:
		// The caller gave up; that says nothing about the users service.
		return "", errors.Join(sentinel.ErrUnavailable, err)
	case err != nil:
		r.breaker.RecordFailure()
		r.logger.WarnContext(ctx, "identity lookup failed",
			"breaker", r.breaker.Name(),
			"state", r.breaker.State().String(),
			"error", err,
		)
		return "", errors.Join(sentinel.ErrUnavailable, err)
	}
	r.breaker.RecordSuccess()

	if err := r.cache.Set(ctx, key, id, EmailTTL); err != nil {
		r.logger.WarnContext(ctx, "email cache write failed", "error", err)
	}
	return id, nil
}
