package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// JWTVerifier validates signed access tokens, either with a shared HMAC secret or
// against a JWKS endpoint.
type JWTVerifier struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

func NewHMACVerifier(secret, issuer, audience string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret must be set")
	}
	key := []byte(secret)
	return &JWTVerifier{
		parser: newParser(issuer, audience, jwt.SigningMethodHS256.Name, jwt.SigningMethodHS384.Name, jwt.SigningMethodHS512.Name),
		keyfunc: func(*jwt.Token) (any, error) {
			return key, nil
		},
	}, nil
}

func NewJWKSVerifier(jwksURL, issuer, audience string) (*JWTVerifier, error) {
	provider, err := keyfunc.NewDefault([]string{strings.TrimSpace(jwksURL)})
	if err != nil {
		return nil, fmt.Errorf("init JWKS keyfunc: %w", err)
	}
	return &JWTVerifier{
		parser: newParser(issuer, audience,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
		),
		keyfunc: provider.Keyfunc,
	}, nil
}

func newParser(issuer, audience string, methods ...string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if s := strings.TrimSpace(issuer); s != "" {
		opts = append(opts, jwt.WithIssuer(s))
	}
	if s := strings.TrimSpace(audience); s != "" {
		opts = append(opts, jwt.WithAudience(s))
	}
	return jwt.NewParser(opts...)
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	parsed, err := v.parser.Parse(token, v.keyfunc)
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	name := readString(claims, "name")
	if name == "" {
		name = readString(claims, "nickname")
	}
	return newIdentity(readString(claims, "sub"), readString(claims, "email"), name)
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
