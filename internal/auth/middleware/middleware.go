package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/auth/domain"
)

const ctxIdentityKey = "auth_identity"

// ClaimsResolver turns a bearer token into a verified Identity. Signature
// verification mechanics live behind this interface; the rest of the service
// trusts whatever it returns.
type ClaimsResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// UserSyncer mirrors resolved identities into local storage. The auth
// middleware calls it on every authenticated request.
type UserSyncer interface {
	Upsert(ctx context.Context, subjectID, displayName, email string) error
}

// NewAuth returns an Echo middleware that resolves the bearer token, syncs
// the local user record and stores the identity in the request context.
func NewAuth(resolver ClaimsResolver, users UserSyncer, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}
			tokStr := strings.TrimPrefix(auth, "Bearer ")

			ident, err := resolver.Resolve(c.Request().Context(), tokStr)
			if err != nil {
				log.Debug().Err(err).Msg("token resolution failed")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}

			// Keep the local user mirror fresh. A sync failure must not fail
			// the request; the identity itself is already verified.
			if users != nil {
				if err := users.Upsert(c.Request().Context(), ident.SubjectID, ident.Name, ident.Email); err != nil {
					log.Warn().Err(err).Str("subject_id", ident.SubjectID).Msg("user sync failed")
				}
			}

			c.Set(ctxIdentityKey, ident)
			return next(c)
		}
	}
}

// IdentityFrom returns the authenticated identity from context.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	v := c.Get(ctxIdentityKey)
	if v == nil {
		return domain.Identity{}, false
	}
	ident, ok := v.(domain.Identity)
	return ident, ok
}

// SetIdentity stores an identity on the context. Exposed for tests and for
// handlers constructed outside the middleware chain.
func SetIdentity(c echo.Context, ident domain.Identity) {
	c.Set(ctxIdentityKey, ident)
}
