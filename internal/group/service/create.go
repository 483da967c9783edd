package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"splitgroups/internal/group/models"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/requestcontext"
)

type CreateGroupCommand struct {
	Name        string
	Description *string
}

// CreateGroup creates a group owned by the caller, who becomes its only member.
// The caller's plan caps how many groups they may belong to.
func (s *Service) CreateGroup(ctx context.Context, cmd CreateGroupCommand) (*models.Group, error) {
	ctx, span := tracer.Start(ctx, "group.CreateGroup")
	defer span.End()
	defer s.observe("create_group", time.Now())

	ownerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	plan := callerPlan(ctx)
	current, err := s.GroupsForMember(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !plan.Limits().AllowsGroups(len(current)) {
		return nil, s.rejectLimit("groups",
			fmt.Sprintf("plan %s allows at most %d groups", plan, plan.Limits().MaxGroups))
	}

	g, err := models.NewGroup(s.newID(), cmd.Name, cmd.Description, ownerID, "", requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	// Picked only for a valid group; each pick may spend photo API quota.
	g.ImageURL = s.photos.Pick(ctx)
	span.SetAttributes(attribute.String("group.id", g.ID))

	if err := s.store.Save(ctx, g); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save group")
	}
	s.afterWrite(ctx, g, g.Members)

	if s.metrics != nil {
		s.metrics.IncGroupsCreated()
	}
	s.logger.InfoContext(ctx, "group created",
		"group_id", g.ID,
		"owner_id", ownerID,
		"plan", string(plan),
	)
	return g, nil
}

func newGroupID() string {
	return uuid.NewString()
}
