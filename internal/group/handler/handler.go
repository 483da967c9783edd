package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"splitgroups/internal/group/models"
	"splitgroups/internal/group/service"
	summarymodels "splitgroups/internal/summary/models"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/httputil"
	"splitgroups/pkg/platform/middleware/auth"
	"splitgroups/pkg/platform/middleware/requesttime"
	"splitgroups/pkg/requestcontext"
)

const maxBodyBytes = 64 << 10

// Service defines the group operations exposed over HTTP.
type Service interface {
	CreateGroup(ctx context.Context, cmd service.CreateGroupCommand) (*models.Group, error)
	GroupsForMember(ctx context.Context, memberID string) ([]*models.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	UpdateMembers(ctx context.Context, cmd service.UpdateMembersCommand) (*service.UpdateResult, error)
	UpdateDetails(ctx context.Context, cmd service.UpdateDetailsCommand) (*service.UpdateResult, error)
	DeleteGroup(ctx context.Context, groupID string) error
	GetSummary(ctx context.Context, groupID string) (*summarymodels.GroupSummary, error)
}

// Handler serves the /groups routes.
type Handler struct {
	groups       Service
	jwtValidator auth.JWTValidator
	logger       *slog.Logger
}

func New(groups Service, jwtValidator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		groups:       groups,
		jwtValidator: jwtValidator,
		logger:       logger,
	}
}

// Register mounts the authenticated group routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(requesttime.Middleware)
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))

		r.Post("/", h.handleCreate)
		r.Get("/", h.handleListForMember)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Patch("/", h.handleUpdateDetails)
			r.Delete("/", h.handleDelete)
			r.Get("/summary", h.handleGetSummary)
			r.Patch("/members", h.handleUpdateMembers)
			r.Get("/members/{userID}", h.handleIsMember)
		})
	})
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type updateMembersRequest struct {
	Add    *string `json:"add,omitempty"`
	Remove *string `json:"remove,omitempty"`
}

type updateDetailsRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type membershipResponse struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	IsMember bool   `json:"isMember"`
}

type groupsResponse struct {
	Groups []*models.Group `json:"groups"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.groups.CreateGroup(ctx, service.CreateGroupCommand{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(ctx, w, "create group", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, g)
}

// handleListForMember lists the groups of ?member=, defaulting to the caller.
func (h *Handler) handleListForMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := strings.TrimSpace(r.URL.Query().Get("member"))
	if memberID == "" {
		memberID = requestcontext.UserID(ctx)
	}

	groups, err := h.groups.GroupsForMember(ctx, memberID)
	if err != nil {
		h.writeError(ctx, w, "list groups", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

func (h *Handler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.groups.GetSummary(ctx, chi.URLParam(r, "groupID"))
	if err != nil {
		h.writeError(ctx, w, "get summary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleIsMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupID")
	userID := chi.URLParam(r, "userID")

	ok, err := h.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		h.writeError(ctx, w, "check membership", err)
		return
	}
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "user is not a member of the group"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, membershipResponse{GroupID: groupID, UserID: userID, IsMember: true})
}

func (h *Handler) handleUpdateMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateMembersRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.groups.UpdateMembers(ctx, service.UpdateMembersCommand{
		GroupID:     chi.URLParam(r, "groupID"),
		AddEmail:    trimmed(req.Add),
		RemoveEmail: trimmed(req.Remove),
	})
	if err != nil {
		h.writeError(ctx, w, "update members", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Group)
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.groups.UpdateDetails(ctx, service.UpdateDetailsCommand{
		GroupID:     chi.URLParam(r, "groupID"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(ctx, w, "update details", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Group)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.groups.DeleteGroup(ctx, chi.URLParam(r, "groupID")); err != nil {
		h.writeError(ctx, w, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError logs server-side failures at error level and client errors at
// warn, then writes the mapped response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"code", string(code),
		"error", err,
	}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, "request failed", attrs...)
	default:
		h.logger.WarnContext(ctx, "request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
