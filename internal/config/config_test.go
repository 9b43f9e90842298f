package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":5000" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.AuthMode != AuthModeJWT {
		t.Fatalf("AuthMode=%q", cfg.AuthMode)
	}
	if cfg.AuthTimeout != 5*time.Second {
		t.Fatalf("AuthTimeout=%v", cfg.AuthTimeout)
	}
	if cfg.OutboundQueue != 64 {
		t.Fatalf("OutboundQueue=%d", cfg.OutboundQueue)
	}
}

func TestLoadRequiresCredentialsForJWT(t *testing.T) {
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWKS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET/JWKS_URL")
	}
}

func TestLoadStaticTokens(t *testing.T) {
	t.Setenv("AUTH_MODE", "Static")
	t.Setenv("STATIC_TOKENS", "tok-a=alice@example.com:Alice, tok-b=bob@example.com:Bob")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, ,https://e4square.app")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthMode != AuthModeStatic {
		t.Fatalf("AuthMode=%q", cfg.AuthMode)
	}
	if len(cfg.StaticTokens) != 2 {
		t.Fatalf("StaticTokens=%v", cfg.StaticTokens)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://e4square.app" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "ldap")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_MODE") {
		t.Fatalf("expected AUTH_MODE error, got %v", err)
	}
}
