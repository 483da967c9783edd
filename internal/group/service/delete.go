package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"splitgroups/internal/events"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/sentinel"
)

// DeleteGroup removes the group and its summary. Only the owner may delete.
func (s *Service) DeleteGroup(ctx context.Context, groupID string) error {
	ctx, span := tracer.Start(ctx, "group.DeleteGroup", trace.WithAttributes(attribute.String("group.id", groupID)))
	defer span.End()
	defer s.observe("delete_group", time.Now())

	callerID, err := requireCaller(ctx)
	if err != nil {
		return err
	}

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsOwner(callerID) {
		return dErrors.New(dErrors.CodeForbidden, "only the group owner can delete the group")
	}

	if err := s.store.Delete(ctx, groupID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete group")
	}

	s.invalidateMembers(ctx, groupID, g.Members)
	if err := s.summaries.Remove(ctx, groupID); err != nil {
		if s.metrics != nil {
			s.metrics.IncSummarySyncFailure()
		}
		s.logger.ErrorContext(ctx, "failed to remove group summary",
			"group_id", groupID,
			"error", err,
		)
	}

	s.publisher.Publish(ctx, events.GroupDeleted{
		Group:   groupID,
		Name:    g.Name,
		Owner:   g.OwnerID,
		Members: slices.Clone(g.Members),
	})

	if s.metrics != nil {
		s.metrics.IncGroupsDeleted()
	}
	s.logger.InfoContext(ctx, "group deleted", "group_id", groupID, "owner_id", callerID)
	return nil
}
