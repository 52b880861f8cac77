package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppAddr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.AppAddr)
	}
	if cfg.TokenMode != "hs256" {
		t.Fatalf("expected default token mode hs256, got %q", cfg.TokenMode)
	}
	if cfg.PermCacheTTL != 60*time.Second {
		t.Fatalf("expected default 60s cache ttl, got %s", cfg.PermCacheTTL)
	}
	if !cfg.CacheEnabled {
		t.Fatalf("cache should default to enabled")
	}
	if cfg.SuperadminRole == "" || cfg.AdminRole == "" || cfg.UserRole == "" {
		t.Fatalf("role claim values must have defaults")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PERM_CACHE_TTL", "90s")
	t.Setenv("TOKEN_MODE", "HS256")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PermCacheTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %s", cfg.PermCacheTTL)
	}
	if cfg.TokenMode != "hs256" {
		t.Fatalf("token mode should normalize to lowercase, got %q", cfg.TokenMode)
	}
	if cfg.CacheEnabled {
		t.Fatalf("expected cache disabled")
	}
}

func TestLoad_OIDCRequiresIssuerAndClient(t *testing.T) {
	t.Setenv("TOKEN_MODE", "oidc")
	t.Setenv("OIDC_ISSUER", "")
	t.Setenv("OIDC_CLIENT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for oidc mode without issuer and client id")
	}

	t.Setenv("OIDC_ISSUER", "https://login.example.com/tenant")
	t.Setenv("OIDC_CLIENT_ID", "gatekeeper")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenMode != "oidc" {
		t.Fatalf("expected oidc mode, got %q", cfg.TokenMode)
	}
}
