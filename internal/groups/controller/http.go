package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	"github.com/agentverse/gatekeeper/internal/groups/domain"
	"github.com/agentverse/gatekeeper/internal/platform/validation"
	usersdomain "github.com/agentverse/gatekeeper/internal/users/domain"
)

// Invalidator is the cache-invalidation hook called after membership
// mutations commit, before the response returns.
type Invalidator interface {
	InvalidateUser(ctx context.Context, subjectID string)
}

type Controller struct {
	svc     domain.Service
	members domain.MembershipService
	perms   Invalidator

	// guards are injected by the factory so route wiring stays declarative.
	requireSuperadmin echo.MiddlewareFunc
	requireGroupAdmin echo.MiddlewareFunc
}

func New(svc domain.Service, members domain.MembershipService, perms Invalidator, requireSuperadmin, requireGroupAdmin echo.MiddlewareFunc) *Controller {
	return &Controller{
		svc:               svc,
		members:           members,
		perms:             perms,
		requireSuperadmin: requireSuperadmin,
		requireGroupAdmin: requireGroupAdmin,
	}
}

// Register mounts group and membership routes under /groups.
func (h *Controller) Register(g *echo.Group) {
	gr := g.Group("/groups")
	gr.POST("", h.createGroup, h.requireSuperadmin)
	gr.GET("", h.listGroups)
	gr.GET("/:group_id", h.getGroup)
	gr.PUT("/:group_id", h.updateGroup, h.requireGroupAdmin)
	gr.DELETE("/:group_id", h.deleteGroup, h.requireSuperadmin)

	gr.POST("/:group_id/members", h.addMember, h.requireGroupAdmin)
	gr.GET("/:group_id/members", h.listMembers, h.requireGroupAdmin)
	gr.PUT("/:group_id/members/:subject_id", h.updateMemberRole, h.requireGroupAdmin)
	gr.DELETE("/:group_id/members/:subject_id", h.removeMember, h.requireGroupAdmin)
}

type groupResp struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toGroupResp(g domain.Group) groupResp {
	return groupResp{
		ID:          g.ID.String(),
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type memberResp struct {
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMemberResp(m domain.Member) memberResp {
	return memberResp{
		SubjectID:   m.SubjectID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        string(m.Role),
		CreatedAt:   m.CreatedAt,
	}
}

func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrMembershipNotFound),
		errors.Is(err, usersdomain.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateMembership):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrLastAdmin):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseGroupID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("group_id"))
	if err != nil {
		return uuid.UUID{}, echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid group id format")
	}
	return id, nil
}

type createGroupReq struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
}

func (h *Controller) createGroup(c echo.Context) error {
	var req createGroupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}
	g, err := h.svc.Create(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toGroupResp(g))
}

func (h *Controller) listGroups(c echo.Context) error {
	ident, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	groups, err := h.svc.ListForUser(c.Request().Context(), ident.SubjectID, ident.IsSuperadmin)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]groupResp, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResp(g))
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": out})
}

func (h *Controller) getGroup(c echo.Context) error {
	id, err := parseGroupID(c)
	if err != nil {
		return err
	}
	g, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupResp(g))
}

type updateGroupReq struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
}

func (h *Controller) updateGroup(c echo.Context) error {
	id, err := parseGroupID(c)
	if err != nil {
		return err
	}
	var req updateGroupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}
	g, err := h.svc.Update(c.Request().Context(), id, req.Name, req.Description)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupResp(g))
}

func (h *Controller) deleteGroup(c echo.Context) error {
	id, err := parseGroupID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type addMemberReq struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=admin user"`
}

func (h *Controller) addMember(c echo.Context) error {
	groupID, err := parseGroupID(c)
	if err != nil {
		return err
	}
	var req addMemberReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}

	m, err := h.members.AddMember(c.Request().Context(), groupID, req.SubjectID, domain.Role(req.Role))
	if err != nil {
		return serviceError(c, err)
	}

	// The membership write is committed; drop the member's cached decisions
	// before answering so no reader of this response can observe stale state.
	h.perms.InvalidateUser(c.Request().Context(), req.SubjectID)

	return c.JSON(http.StatusCreated, toMemberResp(m))
}

func (h *Controller) listMembers(c echo.Context) error {
	groupID, err := parseGroupID(c)
	if err != nil {
		return err
	}
	members, err := h.members.ListMembers(c.Request().Context(), groupID)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]memberResp, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResp(m))
	}
	return c.JSON(http.StatusOK, map[string]any{"members": out})
}

type updateMemberRoleReq struct {
	Role string `json:"role" validate:"required,oneof=admin user"`
}

func (h *Controller) updateMemberRole(c echo.Context) error {
	groupID, err := parseGroupID(c)
	if err != nil {
		return err
	}
	subjectID := c.Param("subject_id")
	var req updateMemberRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(validation.Status(err), validation.ErrorResponse(err))
	}

	m, err := h.members.UpdateMemberRole(c.Request().Context(), groupID, subjectID, domain.Role(req.Role))
	if err != nil {
		return serviceError(c, err)
	}

	h.perms.InvalidateUser(c.Request().Context(), subjectID)

	return c.JSON(http.StatusOK, map[string]any{
		"subject_id": m.SubjectID,
		"role":       string(m.Role),
		"created_at": m.CreatedAt,
	})
}

func (h *Controller) removeMember(c echo.Context) error {
	groupID, err := parseGroupID(c)
	if err != nil {
		return err
	}
	subjectID := c.Param("subject_id")

	if err := h.members.RemoveMember(c.Request().Context(), groupID, subjectID); err != nil {
		return serviceError(c, err)
	}

	h.perms.InvalidateUser(c.Request().Context(), subjectID)

	return c.NoContent(http.StatusNoContent)
}
