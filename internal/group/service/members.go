package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"splitgroups/internal/events"
	"splitgroups/internal/group/models"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/sentinel"
	"splitgroups/pkg/requestcontext"
)

// UpdateMembersCommand adds and/or removes one member, each identified by email.
type UpdateMembersCommand struct {
	GroupID     string
	AddEmail    string
	RemoveEmail string
}

// UpdateResult is the group after the update. Changed is false when every
// requested change was already in effect.
type UpdateResult struct {
	Group   *models.Group
	Changed bool
}

// UpdateMembers applies the requested additions and removals.
//
// Only the owner may add members, subject to the owner's plan member limit.
// Members may remove themselves; the owner may remove anyone but themselves.
// Adding an existing member or removing a non-member is a no-op success.
func (s *Service) UpdateMembers(ctx context.Context, cmd UpdateMembersCommand) (*UpdateResult, error) {
	ctx, span := tracer.Start(ctx, "group.UpdateMembers", trace.WithAttributes(attribute.String("group.id", cmd.GroupID)))
	defer span.End()
	defer s.observe("update_members", time.Now())

	if cmd.AddEmail == "" && cmd.RemoveEmail == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "add or remove is required")
	}
	callerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	g, err := s.loadGroup(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	before := slices.Clone(g.Members)
	now := requestcontext.Now(ctx)

	var pending []events.Event
	if cmd.AddEmail != "" {
		event, err := s.addMember(ctx, g, callerID, cmd.AddEmail, now)
		if err != nil {
			return nil, err
		}
		if event != nil {
			pending = append(pending, event)
		}
	}
	if cmd.RemoveEmail != "" {
		event, err := s.removeMember(ctx, g, callerID, cmd.RemoveEmail, now)
		if err != nil {
			return nil, err
		}
		if event != nil {
			pending = append(pending, event)
		}
	}

	if len(pending) == 0 {
		return &UpdateResult{Group: g, Changed: false}, nil
	}

	if err := s.store.Save(ctx, g); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save group")
	}
	s.afterWrite(ctx, g, union(before, g.Members))

	for _, event := range pending {
		s.publisher.Publish(ctx, event)
	}
	return &UpdateResult{Group: g, Changed: true}, nil
}

func (s *Service) addMember(ctx context.Context, g *models.Group, callerID, email string, now time.Time) (events.Event, error) {
	if !g.IsOwner(callerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the group owner can add members")
	}

	memberID, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	if g.IsMember(memberID) {
		return nil, nil
	}

	plan := callerPlan(ctx)
	if !plan.Limits().AllowsMembers(len(g.Members)) {
		return nil, s.rejectLimit("members",
			fmt.Sprintf("plan %s allows at most %d members per group", plan, plan.Limits().MaxMembers))
	}

	g.AddMember(memberID, now)
	if s.metrics != nil {
		s.metrics.IncMembershipChange("add")
	}
	s.logger.InfoContext(ctx, "member added", "group_id", g.ID, "member_id", memberID)
	return events.MemberAdded{
		Group:    g.ID,
		MemberID: memberID,
		Email:    email,
		Members:  slices.Clone(g.Members),
	}, nil
}

func (s *Service) removeMember(ctx context.Context, g *models.Group, callerID, email string, now time.Time) (events.Event, error) {
	memberID, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	switch {
	case memberID == g.OwnerID:
		return nil, dErrors.New(dErrors.CodeForbidden, "the owner cannot leave the group")
	case memberID != callerID && !g.IsOwner(callerID):
		return nil, dErrors.New(dErrors.CodeForbidden, "only the group owner can remove other members")
	}

	removed, err := g.RemoveMember(memberID, now)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, nil
	}
	if s.metrics != nil {
		s.metrics.IncMembershipChange("remove")
	}
	s.logger.InfoContext(ctx, "member removed", "group_id", g.ID, "member_id", memberID)
	return events.MemberRemoved{
		Group:    g.ID,
		MemberID: memberID,
		Members:  slices.Clone(g.Members),
	}, nil
}

func (s *Service) resolve(ctx context.Context, email string) (string, error) {
	id, err := s.identity.Resolve(ctx, email)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return "", dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "users service unavailable")
	default:
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user")
	}
}
