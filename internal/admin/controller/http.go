package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	agentsdomain "github.com/agentverse/gatekeeper/internal/agents/domain"
	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
	"github.com/agentverse/gatekeeper/internal/platform/validation"
)

// Invalidator drops cached entries touched by an agent after its assignment
// set changes.
type Invalidator interface {
	InvalidateAgent(ctx context.Context, agentID uuid.UUID)
}

// Admin is the superadmin-only service surface.
type Admin interface {
	ListAllAgents(ctx context.Context) ([]agentsdomain.UserAgent, error)
	ListGroupsWithCounts(ctx context.Context) ([]groupsdomain.GroupWithCount, error)
	BulkUpdateAgentGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, updatedBy string) (agentsdomain.UserAgent, error)
}

type Controller struct {
	svc   Admin
	perms Invalidator

	requireSuperadmin echo.MiddlewareFunc
}

func New(svc Admin, perms Invalidator, requireSuperadmin echo.MiddlewareFunc) *Controller {
	return &Controller{svc: svc, perms: perms, requireSuperadmin: requireSuperadmin}
}

func (h *Controller) Register(g *echo.Group) {
	admin := g.Group("/admin", h.requireSuperadmin)
	admin.GET("/agents", h.listAgents)
	admin.GET("/groups", h.listGroups)
	admin.PUT("/agents/:agent_id/groups", h.updateAgentGroups)
}

func (h *Controller) listAgents(c echo.Context) error {
	agents, err := h.svc.ListAllAgents(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}

func (h *Controller) listGroups(c echo.Context) error {
	groups, err := h.svc.ListGroupsWithCounts(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]any{
			"id":           g.ID.String(),
			"name":         g.Name,
			"description":  g.Description,
			"member_count": g.MemberCount,
			"created_at":   g.CreatedAt,
			"updated_at":   g.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": out})
}

type updateAgentGroupsReq struct {
	GroupIDs []string `json:"group_ids" validate:"required,dive,uuid"`
}

func (h *Controller) updateAgentGroups(c echo.Context) error {
	ident, _ := mw.IdentityFrom(c)
	agentID, err := uuid.Parse(c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid agent id format"})
	}
	var req updateAgentGroupsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}
	groupIDs := make([]uuid.UUID, 0, len(req.GroupIDs))
	for _, raw := range req.GroupIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
		}
		groupIDs = append(groupIDs, id)
	}

	out, err := h.svc.BulkUpdateAgentGroups(c.Request().Context(), agentID, groupIDs, ident.SubjectID)
	if err != nil {
		switch {
		case errors.Is(err, agentsdomain.ErrAgentNotFound),
			errors.Is(err, groupsdomain.ErrGroupNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}

	h.perms.InvalidateAgent(c.Request().Context(), agentID)

	return c.JSON(http.StatusOK, out)
}
