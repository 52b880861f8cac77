package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/agentverse/gatekeeper/internal/auth/domain"
	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
)

type stubChecker struct {
	admins map[string]uuid.UUID
	err    error
}

func (s *stubChecker) IsGroupAdmin(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.admins[subjectID] == groupID, nil
}

func runGuard(t *testing.T, guard echo.MiddlewareFunc, ident *domain.Identity, groupParam string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if groupParam != "" {
		c.SetParamNames("group_id")
		c.SetParamValues(groupParam)
	}
	if ident != nil {
		mw.SetIdentity(c, *ident)
	}

	handler := guard(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestRequireSuperadmin(t *testing.T) {
	guard := RequireSuperadmin()

	rec := runGuard(t, guard, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = runGuard(t, guard, &domain.Identity{SubjectID: "alice"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = runGuard(t, guard, &domain.Identity{SubjectID: "root", IsSuperadmin: true}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireGroupAdmin(t *testing.T) {
	gid := uuid.New()
	checker := &stubChecker{admins: map[string]uuid.UUID{"alice": gid}}
	guard := RequireGroupAdmin("group_id", checker)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := runGuard(t, guard, nil, gid.String())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("superadmin bypasses membership check", func(t *testing.T) {
		// Even with a malformed param the superadmin is let through first.
		rec := runGuard(t, guard, &domain.Identity{SubjectID: "root", IsSuperadmin: true}, "not-a-uuid")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing param", func(t *testing.T) {
		rec := runGuard(t, guard, &domain.Identity{SubjectID: "alice"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed group id", func(t *testing.T) {
		rec := runGuard(t, guard, &domain.Identity{SubjectID: "alice"}, "not-a-uuid")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("group admin allowed", func(t *testing.T) {
		rec := runGuard(t, guard, &domain.Identity{SubjectID: "alice"}, gid.String())
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("plain member denied", func(t *testing.T) {
		rec := runGuard(t, guard, &domain.Identity{SubjectID: "bob"}, gid.String())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("checker failure surfaces as 500", func(t *testing.T) {
		failing := RequireGroupAdmin("group_id", &stubChecker{err: errors.New("db down")})
		rec := runGuard(t, failing, &domain.Identity{SubjectID: "alice"}, gid.String())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireRolesAndScopes(t *testing.T) {
	guard := RequireRolesAndScopes([][]string{{"agentverse-admin"}}, nil)

	rec := runGuard(t, guard, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = runGuard(t, guard, &domain.Identity{SubjectID: "bob", Roles: []string{"agentverse-user"}}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = runGuard(t, guard, &domain.Identity{SubjectID: "alice", Roles: []string{"agentverse-admin"}}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
