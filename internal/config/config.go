package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Auth modes accepted in AUTH_MODE.
const (
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"
	AuthModeStatic = "static"
)

type AppConfig struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":5000"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	OutboundQueue  int           `env:"OUTBOUND_QUEUE" envDefault:"64"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`

	AuthMode          string        `env:"AUTH_MODE" envDefault:"jwt"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT" envDefault:"5s"`
	JWTSecret         string        `env:"JWT_SECRET"`
	JWTIssuer         string        `env:"JWT_ISSUER"`
	JWTAudience       string        `env:"JWT_AUDIENCE"`
	JWKSURL           string        `env:"JWKS_URL"`
	AuthIntrospectURL string        `env:"AUTH_INTROSPECT_URL"`
	// STATIC_TOKENS is token=email:name pairs separated by commas, development only.
	StaticTokens map[string]string `env:"STATIC_TOKENS" envSeparator:"," envKeyValSeparator:"="`

	RedisURL    string        `env:"REDIS_URL"`
	DatabaseURL string        `env:"DATABASE_URL"`
	ArchiveTTL  time.Duration `env:"ARCHIVE_TTL" envDefault:"168h"`

	MessagesDir string `env:"MESSAGES_DIR"`
}

// Load parses the environment and validates the result.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() error {
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	c.AllowedOrigins = origins

	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 64
	}
	if c.AuthTimeout <= 0 {
		return errors.New("AUTH_TIMEOUT must be positive")
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if strings.TrimSpace(c.JWTSecret) == "" && strings.TrimSpace(c.JWKSURL) == "" {
			return errors.New("JWT_SECRET or JWKS_URL is required when AUTH_MODE=jwt")
		}
	case AuthModeRemote:
		if strings.TrimSpace(c.AuthIntrospectURL) == "" {
			return errors.New("AUTH_INTROSPECT_URL is required when AUTH_MODE=remote")
		}
	case AuthModeStatic:
		if len(c.StaticTokens) == 0 {
			return errors.New("STATIC_TOKENS is required when AUTH_MODE=static")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %q", c.AuthMode)
	}
	return nil
}
