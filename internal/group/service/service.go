// Package service implements group writes and membership lookups, keeping the
// member lookup cache and the summary view in step with the primary store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"splitgroups/internal/events"
	groupmetrics "splitgroups/internal/group/metrics"
	"splitgroups/internal/group/models"
	"splitgroups/internal/platform/cache"
	summarymodels "splitgroups/internal/summary/models"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/sentinel"
	"splitgroups/pkg/requestcontext"
)

// MembersTTL bounds how long a member's cached group list may outlive a
// missed invalidation.
const MembersTTL = time.Hour

var tracer = otel.Tracer("splitgroups/group")

// Store is the primary group store.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	FindByMember(ctx context.Context, memberID string) ([]*models.Group, error)
	Save(ctx context.Context, g *models.Group) error
	Delete(ctx context.Context, id string) error
}

// Summaries is the summary view maintained alongside group writes.
type Summaries interface {
	UpsertDerived(ctx context.Context, g *models.Group) error
	Remove(ctx context.Context, groupID string) error
	Read(ctx context.Context, groupID string) (*summarymodels.GroupSummary, error)
}

// Identity resolves an email to a user id.
type Identity interface {
	Resolve(ctx context.Context, email string) (string, error)
}

// Photos picks a cover image for a new group. It never fails.
type Photos interface {
	Pick(ctx context.Context) string
}

// Publisher emits group events. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type Service struct {
	store     Store
	cache     cache.Cache
	summaries Summaries
	identity  Identity
	photos    Photos
	publisher Publisher
	logger    *slog.Logger
	metrics   *groupmetrics.Metrics
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *groupmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator replaces the group id generator, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store Store, c cache.Cache, summaries Summaries, identity Identity, photos Photos, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		cache:     c,
		summaries: summaries,
		identity:  identity,
		photos:    photos,
		publisher: publisher,
		logger:    slog.Default(),
		newID:     newGroupID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GroupsForMember returns every group memberID belongs to, through the
// members:{id} cache. A cache failure falls back to the store.
func (s *Service) GroupsForMember(ctx context.Context, memberID string) ([]*models.Group, error) {
	ctx, span := tracer.Start(ctx, "group.GroupsForMember", trace.WithAttributes(attribute.String("member.id", memberID)))
	defer span.End()
	defer s.observe("groups_for_member", time.Now())

	key := cache.MembersKey(memberID)
	cached, found, err := cache.GetJSON[[]*models.Group](ctx, s.cache, key)
	if err != nil {
		s.logger.WarnContext(ctx, "member cache read failed, falling back to store",
			"member_id", memberID,
			"error", err,
		)
	} else if found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	groups, err := s.store.FindByMember(ctx, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load groups")
	}
	if err := cache.SetJSON(ctx, s.cache, key, groups, MembersTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to cache member groups",
			"member_id", memberID,
			"error", err,
		)
	}
	return groups, nil
}

// IsMember reports whether userID belongs to groupID, answered from the
// member's cached group list.
func (s *Service) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	groups, err := s.GroupsForMember(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.ID == groupID {
			return true, nil
		}
	}
	return false, nil
}

// GetSummary returns the materialized summary of groupID.
func (s *Service) GetSummary(ctx context.Context, groupID string) (*summarymodels.GroupSummary, error) {
	defer s.observe("get_summary", time.Now())
	return s.summaries.Read(ctx, groupID)
}

func (s *Service) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := s.store.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group")
	}
	return g, nil
}

// afterWrite runs the side effects of a committed group write in order:
// member cache invalidation, then the summary upsert. Neither can fail the
// write; failures are logged and counted and the reconciler repairs the view.
func (s *Service) afterWrite(ctx context.Context, g *models.Group, affected []string) {
	s.invalidateMembers(ctx, g.ID, affected)
	if err := s.summaries.UpsertDerived(ctx, g); err != nil {
		if s.metrics != nil {
			s.metrics.IncSummarySyncFailure()
		}
		s.logger.ErrorContext(ctx, "failed to update group summary",
			"group_id", g.ID,
			"error", err,
		)
	}
}

func (s *Service) invalidateMembers(ctx context.Context, groupID string, memberIDs []string) {
	if len(memberIDs) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, cache.MembersKeys(memberIDs)...); err != nil {
		if s.metrics != nil {
			s.metrics.IncInvalidationFailure()
		}
		s.logger.WarnContext(ctx, "failed to invalidate member cache",
			"group_id", groupID,
			"members", len(memberIDs),
			"error", err,
		)
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, time.Since(start).Seconds())
	}
}

func (s *Service) rejectLimit(limit, msg string) error {
	if s.metrics != nil {
		s.metrics.IncLimitRejection(limit)
	}
	return dErrors.New(dErrors.CodeLimitExceeded, msg)
}

func requireCaller(ctx context.Context) (string, error) {
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user")
	}
	return userID, nil
}

// callerPlan returns the caller's plan. Unknown or missing plans get FREE limits.
func callerPlan(ctx context.Context) models.Plan {
	if plan, ok := models.ParsePlan(requestcontext.Plan(ctx)); ok {
		return plan
	}
	return models.PlanFree
}

// union returns the ids present in either list, without duplicates.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
