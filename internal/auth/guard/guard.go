// Package guard holds the authorization middleware pipeline stages.
//
// Token-level guards (RequireRolesAndScopes) read only claims already present
// on the verified identity. Domain-level guards (RequireSuperadmin,
// RequireGroupAdmin) may additionally query the identity store.
package guard

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentverse/gatekeeper/internal/auth/domain"
	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	"github.com/agentverse/gatekeeper/internal/metrics"
)

// AdminMembershipChecker answers whether a subject holds an admin membership
// in a group. Implemented by the groups service.
type AdminMembershipChecker interface {
	IsGroupAdmin(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error)
}

// RequireRolesAndScopes enforces token-level RBAC: the identity's role and
// scope claims must satisfy the OR-of-AND requirements. No store access.
func RequireRolesAndScopes(requiredRoles, requiredScopes [][]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := mw.IdentityFrom(c)
			if !ok {
				metrics.GuardDenial("roles_scopes", "unauthenticated")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			if !domain.CheckRolesAndScopes(ident.Roles, ident.Scopes, requiredRoles, requiredScopes) {
				metrics.GuardDenial("roles_scopes", "forbidden")
				return c.JSON(http.StatusForbidden, map[string]string{"error": "insufficient roles or scopes"})
			}
			return next(c)
		}
	}
}

// RequireSuperadmin rejects requests whose identity lacks the superadmin flag.
func RequireSuperadmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := mw.IdentityFrom(c)
			if !ok {
				metrics.GuardDenial("superadmin", "unauthenticated")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			if !ident.IsSuperadmin {
				metrics.GuardDenial("superadmin", "forbidden")
				return c.JSON(http.StatusForbidden, map[string]string{"error": "superadmin access required"})
			}
			return next(c)
		}
	}
}

// RequireGroupAdmin enforces group-admin (or superadmin) access. The group id
// is read from the named path parameter.
func RequireGroupAdmin(groupIDParam string, checker AdminMembershipChecker) echo.MiddlewareFunc {
	if groupIDParam == "" {
		groupIDParam = "group_id"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := mw.IdentityFrom(c)
			if !ok {
				metrics.GuardDenial("group_admin", "unauthenticated")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			if ident.IsSuperadmin {
				return next(c)
			}

			raw := c.Param(groupIDParam)
			if raw == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing path parameter: " + groupIDParam})
			}
			groupID, err := uuid.Parse(raw)
			if err != nil {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid group id format"})
			}

			isAdmin, err := checker.IsGroupAdmin(c.Request().Context(), ident.SubjectID, groupID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "authorization check failed"})
			}
			if !isAdmin {
				metrics.GuardDenial("group_admin", "forbidden")
				return c.JSON(http.StatusForbidden, map[string]string{"error": "group admin access required"})
			}
			return next(c)
		}
	}
}
