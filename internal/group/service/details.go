package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"splitgroups/internal/events"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/requestcontext"
)

// UpdateDetailsCommand changes the name and/or description. A nil field is
// left unchanged; an empty description clears it.
type UpdateDetailsCommand struct {
	GroupID     string
	Name        *string
	Description *string
}

// UpdateDetails lets any member rename or re-describe the group. An update that
// changes nothing returns Changed=false and has no side effects.
func (s *Service) UpdateDetails(ctx context.Context, cmd UpdateDetailsCommand) (*UpdateResult, error) {
	ctx, span := tracer.Start(ctx, "group.UpdateDetails", trace.WithAttributes(attribute.String("group.id", cmd.GroupID)))
	defer span.End()
	defer s.observe("update_details", time.Now())

	if cmd.Name == nil && cmd.Description == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "name or description is required")
	}
	callerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	g, err := s.loadGroup(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(callerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only group members can update the group")
	}

	changed, err := g.ApplyDetails(cmd.Name, cmd.Description, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if !changed {
		return &UpdateResult{Group: g, Changed: false}, nil
	}

	if err := s.store.Save(ctx, g); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save group")
	}
	s.afterWrite(ctx, g, g.Members)

	s.publisher.Publish(ctx, events.GroupUpdated{
		Group:       g.ID,
		Name:        g.Name,
		Description: g.Description,
	})
	return &UpdateResult{Group: g, Changed: true}, nil
}

