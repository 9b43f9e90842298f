package identity

import (
	"context"
	"fmt"
	"strings"
)

// StaticVerifier maps fixed development tokens to identities.
type StaticVerifier struct {
	tokens map[string]Identity
}

// NewStaticVerifier takes token -> "email:Display Name" pairs; the name part is optional.
func NewStaticVerifier(pairs map[string]string) (*StaticVerifier, error) {
	tokens := make(map[string]Identity, len(pairs))
	for token, value := range pairs {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		email, name, _ := strings.Cut(value, ":")
		id, err := newIdentity(email, email, name)
		if err != nil {
			return nil, fmt.Errorf("static token %q: %w", token, err)
		}
		tokens[token] = id
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no static tokens configured")
	}
	return &StaticVerifier{tokens: tokens}, nil
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := v.tokens[strings.TrimSpace(token)]
	if !ok {
		return Identity{}, fmt.Errorf("%w: unknown token", ErrUnauthorized)
	}
	return id, nil
}
