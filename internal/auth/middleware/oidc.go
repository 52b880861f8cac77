package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/agentverse/gatekeeper/internal/auth/domain"
	"github.com/agentverse/gatekeeper/internal/config"
)

// OIDCResolver verifies ID tokens against an external issuer via its
// discovery document and JWKS endpoint.
type OIDCResolver struct {
	verifier       *oidc.IDTokenVerifier
	superadminRole string
}

// NewOIDCResolver performs issuer discovery; it fails fast when the issuer is
// unreachable at startup.
func NewOIDCResolver(ctx context.Context, cfg config.Config) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.OIDCIssuer, err)
	}
	return &OIDCResolver{
		verifier:       provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
		superadminRole: cfg.SuperadminRole,
	}, nil
}

func (r *OIDCResolver) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	var raw map[string]json.RawMessage
	if err := idToken.Claims(&raw); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			claims[k] = val
		}
	}
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = idToken.Subject
	}
	return identityFromClaims(claims, r.superadminRole)
}
