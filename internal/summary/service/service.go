// Package service maintains the group summary view: synchronous derived-field
// upserts from the group write path, incremental aggregates from the expense
// stream, and cache-aside reads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	groupmodels "splitgroups/internal/group/models"
	"splitgroups/internal/platform/cache"
	summarymetrics "splitgroups/internal/summary/metrics"
	"splitgroups/internal/summary/models"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/sentinel"
)

// SummaryTTL bounds how long a cached summary may outlive a missed invalidation.
const SummaryTTL = time.Hour

var tracer = otel.Tracer("splitgroups/summary")

// Store holds summaries. There is deliberately no whole-record write: derived
// and aggregate fields are only ever written through their own operation.
// ReplaceDerivedFields must ignore fields older than the stored UpdatedAt.
type Store interface {
	ReplaceDerivedFields(ctx context.Context, groupID string, fields models.DerivedFields) error
	IncrementAggregateFields(ctx context.Context, groupID string, delta models.AggregateDelta) error
	FindByGroupID(ctx context.Context, groupID string) (*models.GroupSummary, error)
	Delete(ctx context.Context, groupID string) error
	ListGroupIDs(ctx context.Context) ([]string, error)
	MarkStale(ctx context.Context, groupID string) error
}

// GroupReader is the read side of the primary group store.
type GroupReader interface {
	FindByID(ctx context.Context, id string) (*groupmodels.Group, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// Service is the summary view facade used by the group service, the expense
// consumer and the reconciler.
type Service struct {
	store   Store
	groups  GroupReader
	cache   cache.Cache
	logger  *slog.Logger
	metrics *summarymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *summarymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, groups GroupReader, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		store:  store,
		groups: groups,
		cache:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertDerived overwrites the derived fields from g and invalidates the cached
// summary. Aggregates are never touched. A snapshot older than the stored one
// is ignored, and if g was deleted meanwhile the summary stays removed.
func (s *Service) UpsertDerived(ctx context.Context, g *groupmodels.Group) error {
	_, err := s.upsertDerived(ctx, g)
	return err
}

// upsertDerived reports whether the group still exists after the write.
func (s *Service) upsertDerived(ctx context.Context, g *groupmodels.Group) (bool, error) {
	if err := s.store.ReplaceDerivedFields(ctx, g.ID, models.DerivedFromGroup(g)); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert group summary")
	}
	s.invalidate(ctx, g.ID)
	return s.confirmLive(ctx, g.ID)
}

// ApplyAggregateDelta increments the aggregate fields atomically and
// invalidates the cached summary.
func (s *Service) ApplyAggregateDelta(ctx context.Context, groupID string, delta models.AggregateDelta) error {
	if err := s.store.IncrementAggregateFields(ctx, groupID, delta); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply expense aggregates")
	}
	s.invalidate(ctx, groupID)
	return nil
}

// MarkStale flags the summary's aggregates as possibly behind the expense stream.
func (s *Service) MarkStale(ctx context.Context, groupID string) error {
	if err := s.store.MarkStale(ctx, groupID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark summary stale")
	}
	s.invalidate(ctx, groupID)
	return nil
}

// Remove deletes the summary and its cache entry. Used when the group is deleted.
func (s *Service) Remove(ctx context.Context, groupID string) error {
	if err := s.store.Delete(ctx, groupID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove group summary")
	}
	s.invalidate(ctx, groupID)
	return nil
}

// Read returns the summary through the cache. A summary that is missing, or that
// only holds aggregates from early expense events, is materialized from the
// primary store first. Returns CodeNotFound when the group does not exist.
func (s *Service) Read(ctx context.Context, groupID string) (*models.GroupSummary, error) {
	ctx, span := tracer.Start(ctx, "summary.Read", trace.WithAttributes(attribute.String("group.id", groupID)))
	defer span.End()

	key := cache.SummaryKey(groupID)
	cached, found, err := cache.GetJSON[models.GroupSummary](ctx, s.cache, key)
	if err != nil {
		s.logger.WarnContext(ctx, "summary cache read failed, falling back to store",
			"group_id", groupID,
			"error", err,
		)
	} else if found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}

	summary, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.cache, key, summary, SummaryTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to cache group summary",
			"group_id", groupID,
			"error", err,
		)
	}
	return summary, nil
}

func (s *Service) load(ctx context.Context, groupID string) (*models.GroupSummary, error) {
	summary, err := s.store.FindByGroupID(ctx, groupID)
	switch {
	case err == nil && summary.HasDerived():
		return summary, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group summary")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group")
	}

	live, err := s.upsertDerived(ctx, group)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
	}
	if s.metrics != nil {
		s.metrics.IncLazyMaterialization()
	}
	s.logger.InfoContext(ctx, "materialized group summary on read", "group_id", groupID)

	summary, err = s.store.FindByGroupID(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload group summary")
	}
	return summary, nil
}

// confirmLive re-reads the group after a derived upsert built from an earlier
// snapshot. A group deleted in between has already had its summary removed, so
// the upsert just recreated it; remove it again and report false.
func (s *Service) confirmLive(ctx context.Context, groupID string) (bool, error) {
	_, err := s.groups.FindByID(ctx, groupID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to recheck group")
	}
	if err := s.Remove(ctx, groupID); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "dropped summary of group deleted during upsert", "group_id", groupID)
	return false, nil
}

// invalidate deletes the cached summary. Failures are logged, not returned: the
// store write has already committed and the entry expires within SummaryTTL.
func (s *Service) invalidate(ctx context.Context, groupID string) {
	if err := s.cache.Delete(ctx, cache.SummaryKey(groupID)); err != nil {
		if s.metrics != nil {
			s.metrics.IncInvalidationFailure()
		}
		s.logger.WarnContext(ctx, "failed to invalidate summary cache",
			"group_id", groupID,
			"error", err,
		)
	}
}
