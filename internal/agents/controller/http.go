package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentverse/gatekeeper/internal/agents/domain"
	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
	"github.com/agentverse/gatekeeper/internal/platform/validation"
	usersdomain "github.com/agentverse/gatekeeper/internal/users/domain"
)

// PermCache is the slice of the permission service the agent endpoints use:
// the cached per-user agent list and agent-scoped invalidation.
type PermCache interface {
	CachedUserAgents(ctx context.Context, subjectID string) (json.RawMessage, bool)
	SetCachedUserAgents(ctx context.Context, subjectID string, agents any)
	InvalidateAgent(ctx context.Context, agentID uuid.UUID)
}

type Controller struct {
	svc    domain.Service
	groups groupsdomain.Service
	perms  PermCache

	requireGroupAdmin echo.MiddlewareFunc
}

func New(svc domain.Service, groups groupsdomain.Service, perms PermCache, requireGroupAdmin echo.MiddlewareFunc) *Controller {
	return &Controller{svc: svc, groups: groups, perms: perms, requireGroupAdmin: requireGroupAdmin}
}

// Register mounts agent and assignment routes.
func (h *Controller) Register(g *echo.Group) {
	g.POST("/agents", h.registerAgent)
	g.POST("/groups/:group_id/agents", h.assignAgent, h.requireGroupAdmin)
	g.DELETE("/groups/:group_id/agents/:agent_id", h.removeAgent, h.requireGroupAdmin)
	g.GET("/groups/:group_id/agents", h.listAgentsInGroup, h.requireGroupAdmin)
	g.GET("/users/:subject_id/agents", h.userAgents)
	g.GET("/users/:subject_id/admin-groups", h.adminGroups)
}

type agentResp struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAgentResp(a domain.Agent) agentResp {
	return agentResp{
		ID:         a.ID.String(),
		ExternalID: a.ExternalID,
		Name:       a.Name,
		CreatedBy:  a.CreatedBy,
		CreatedAt:  a.CreatedAt,
	}
}

func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrAgentNotFound),
		errors.Is(err, domain.ErrAssignmentNotFound),
		errors.Is(err, groupsdomain.ErrGroupNotFound),
		errors.Is(err, usersdomain.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateAgent),
		errors.Is(err, domain.ErrDuplicateAssignment):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

type registerAgentReq struct {
	ExternalID string `json:"external_id" validate:"required,min=1,max=255"`
	Name       string `json:"name" validate:"required,min=1,max=255"`
	GroupID    string `json:"group_id" validate:"required,uuid"`
}

func (h *Controller) registerAgent(c echo.Context) error {
	ident, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	var req registerAgentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}
	groupID, err := uuid.Parse(req.GroupID)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
	}

	// The target group comes from the body, not the path, so the group-admin
	// guard cannot cover this route; check here instead.
	if !ident.IsSuperadmin {
		isAdmin, err := h.groups.IsGroupAdmin(c.Request().Context(), ident.SubjectID, groupID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "authorization check failed"})
		}
		if !isAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "group admin access required"})
		}
	}

	agent, err := h.svc.Register(c.Request().Context(), req.ExternalID, req.Name, groupID, ident.SubjectID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toAgentResp(agent))
}

type assignAgentReq struct {
	AgentID string `json:"agent_id" validate:"required,uuid"`
}

func (h *Controller) assignAgent(c echo.Context) error {
	ident, _ := mw.IdentityFrom(c)
	groupID, err := uuid.Parse(c.Param("group_id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
	}
	var req assignAgentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid agent id format"})
	}

	asg, err := h.svc.AssignToGroup(c.Request().Context(), groupID, agentID, ident.SubjectID)
	if err != nil {
		return serviceError(c, err)
	}

	// Assignment committed; any user's visibility may have changed.
	h.perms.InvalidateAgent(c.Request().Context(), agentID)

	return c.JSON(http.StatusCreated, map[string]any{
		"id":         asg.ID.String(),
		"group_id":   asg.GroupID.String(),
		"agent_id":   asg.AgentID.String(),
		"added_by":   asg.AddedBy,
		"created_at": asg.CreatedAt,
	})
}

func (h *Controller) removeAgent(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("group_id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
	}
	agentID, err := uuid.Parse(c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid agent id format"})
	}

	if err := h.svc.RemoveFromGroup(c.Request().Context(), groupID, agentID); err != nil {
		return serviceError(c, err)
	}

	h.perms.InvalidateAgent(c.Request().Context(), agentID)

	return c.NoContent(http.StatusNoContent)
}

func (h *Controller) listAgentsInGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("group_id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
	}
	agents, err := h.svc.ListInGroup(c.Request().Context(), groupID)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]agentResp, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentResp(a))
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": out})
}

// userAgents returns the agents a user can access. Users may query only
// themselves; superadmins may query anyone. The result is cached per user.
func (h *Controller) userAgents(c echo.Context) error {
	ident, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	subjectID := c.Param("subject_id")
	if !ident.IsSuperadmin && ident.SubjectID != subjectID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "cannot view another user's agents"})
	}

	if cached, ok := h.perms.CachedUserAgents(c.Request().Context(), subjectID); ok {
		return c.JSONBlob(http.StatusOK, wrapAgents(cached))
	}

	// A superadmin sees everything only when querying their own id; querying
	// another user returns that user's actual visibility.
	queryingSelf := ident.SubjectID == subjectID
	agents, err := h.svc.UserAgents(c.Request().Context(), subjectID, ident.IsSuperadmin && queryingSelf)
	if err != nil {
		// A superadmin may ask about a subject that never authenticated here;
		// that user simply has no visibility yet.
		if ident.IsSuperadmin && !queryingSelf && errors.Is(err, usersdomain.ErrUserNotFound) {
			agents = []domain.UserAgent{}
		} else {
			return serviceError(c, err)
		}
	}

	h.perms.SetCachedUserAgents(c.Request().Context(), subjectID, agents)

	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}

func wrapAgents(raw json.RawMessage) []byte {
	out := make([]byte, 0, len(raw)+12)
	out = append(out, `{"agents":`...)
	out = append(out, raw...)
	out = append(out, '}')
	return out
}

// adminGroups returns the groups where a user holds the admin role.
func (h *Controller) adminGroups(c echo.Context) error {
	ident, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	subjectID := c.Param("subject_id")
	if !ident.IsSuperadmin && ident.SubjectID != subjectID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "cannot view another user's admin groups"})
	}

	groups, err := h.groups.AdminGroups(c.Request().Context(), subjectID)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]any{
			"id":          g.ID.String(),
			"name":        g.Name,
			"description": g.Description,
			"created_at":  g.CreatedAt,
			"updated_at":  g.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": out})
}
