// Package identity verifies the bearer token presented on connect and turns it into the
// stable identity the relay keys presence and seats by.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/its-me-navee/e4square/internal/config"
)

// ErrUnauthorized is wrapped by every verification failure caused by the token itself.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is a verified caller. ID is the lower-cased email when the provider supplies
// one, the subject otherwise.
type Identity struct {
	ID      string
	Subject string
	Email   string
	Name    string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// FromConfig builds the verifier selected by AUTH_MODE.
func FromConfig(cfg *config.AppConfig) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		if strings.TrimSpace(cfg.JWKSURL) != "" {
			return NewJWKSVerifier(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
		}
		return NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	case config.AuthModeRemote:
		return NewRemoteVerifier(cfg.AuthIntrospectURL, cfg.AuthTimeout), nil
	case config.AuthModeStatic:
		return NewStaticVerifier(cfg.StaticTokens)
	}
	return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
}

func newIdentity(subject, email, name string) (Identity, error) {
	subject = strings.TrimSpace(subject)
	email = strings.ToLower(strings.TrimSpace(email))
	id := email
	if id == "" {
		id = subject
	}
	if id == "" {
		return Identity{}, fmt.Errorf("%w: token carries neither email nor subject", ErrUnauthorized)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
		if at := strings.IndexByte(email, '@'); at > 0 {
			name = email[:at]
		}
	}
	return Identity{ID: id, Subject: subject, Email: email, Name: name}, nil
}

func unauthorized(err error) error {
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}
