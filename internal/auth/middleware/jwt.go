package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentverse/gatekeeper/internal/auth/domain"
	"github.com/agentverse/gatekeeper/internal/config"
)

// HS256Resolver validates shared-secret JWTs and maps their claims to an
// Identity. It accepts the claim names emitted by common identity providers:
// "oid" falls back to "sub", email to "preferred_username", and scopes may
// arrive as a space-separated "scp" string or a list.
type HS256Resolver struct {
	signingKey     []byte
	superadminRole string
}

func NewHS256Resolver(cfg config.Config) *HS256Resolver {
	return &HS256Resolver{
		signingKey:     []byte(cfg.JWTSigningKey),
		superadminRole: cfg.SuperadminRole,
	}
}

func (r *HS256Resolver) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return r.signingKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithIssuedAt(), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return domain.Identity{}, domain.ErrInvalidToken
	}
	return identityFromClaims(claims, r.superadminRole)
}

func identityFromClaims(claims map[string]any, superadminRole string) (domain.Identity, error) {
	sub, _ := claims["oid"].(string)
	if sub == "" {
		sub, _ = claims["sub"].(string)
	}
	if sub == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["preferred_username"].(string)
	}

	roles := stringList(claims["roles"])
	scopes := stringList(claims["scopes"])
	if scp, ok := claims["scp"].(string); ok && scp != "" {
		scopes = append(scopes, strings.Fields(scp)...)
	}

	ident := domain.Identity{
		SubjectID: sub,
		Name:      name,
		Email:     email,
		Roles:     roles,
		Scopes:    scopes,
	}
	for _, role := range roles {
		if role == superadminRole {
			ident.IsSuperadmin = true
			break
		}
	}
	return ident, nil
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
