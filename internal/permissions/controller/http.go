package controller

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	"github.com/agentverse/gatekeeper/internal/permissions/domain"
)

// Checker answers permission queries.
type Checker interface {
	Check(ctx context.Context, subjectID string, agentID uuid.UUID, action domain.Action, isSuperadmin bool) (domain.Decision, error)
}

type Controller struct {
	checker Checker
}

func New(checker Checker) *Controller {
	return &Controller{checker: checker}
}

func (h *Controller) Register(g *echo.Group) {
	g.GET("/permissions/check", h.check)
}

// check answers whether a user may perform an action on an agent. The
// subject defaults to the caller; platform callers pass user_id to check
// on behalf of the user they are serving.
func (h *Controller) check(c echo.Context) error {
	ident, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}

	subjectID := c.QueryParam("user_id")
	if subjectID == "" {
		subjectID = ident.SubjectID
	}

	rawAgent := c.QueryParam("agent_id")
	if rawAgent == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}
	agentID, err := uuid.Parse(rawAgent)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid agent id format"})
	}

	action := domain.Action(c.QueryParam("action"))
	if action == "" {
		action = domain.ActionAccess
	}
	if !action.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "action must be one of: access, create"})
	}

	dec, err := h.checker.Check(c.Request().Context(), subjectID, agentID, action, ident.IsSuperadmin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "permission check failed"})
	}
	return c.JSON(http.StatusOK, dec)
}
