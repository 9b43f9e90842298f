package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type introspection struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// RemoteVerifier asks an introspection endpoint about each token. A 401/403 answer or
// an inactive token is ErrUnauthorized; other failures are reported as upstream errors.
type RemoteVerifier struct {
	url      string
	http     *fasthttp.Client
	timeout  time.Duration
	retryMax int
}

func NewRemoteVerifier(url string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		url:      strings.TrimSpace(url),
		http:     &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout, MaxConnsPerHost: 32},
		timeout:  timeout,
		retryMax: 2,
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(v.url)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var lastErr error
	for attempt := 1; attempt <= v.retryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return Identity{}, err
		}
		if err := v.http.DoDeadline(req, resp, v.deadline(ctx)); err != nil {
			lastErr = fmt.Errorf("introspect: %w", err)
			continue
		}
		switch status := resp.StatusCode(); {
		case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
			return Identity{}, fmt.Errorf("%w: rejected by identity provider", ErrUnauthorized)
		case status >= 500:
			lastErr = fmt.Errorf("introspect: status=%d", status)
			continue
		case status < 200 || status >= 300:
			return Identity{}, fmt.Errorf("introspect: status=%d", status)
		}
		var out introspection
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return Identity{}, fmt.Errorf("decode introspection: %w", err)
		}
		if !out.Active {
			return Identity{}, fmt.Errorf("%w: token inactive", ErrUnauthorized)
		}
		return newIdentity(out.Subject, out.Email, out.Name)
	}
	return Identity{}, lastErr
}

func (v *RemoteVerifier) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(v.timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}
