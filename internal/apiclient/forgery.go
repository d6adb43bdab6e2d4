package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
)

// forgeryTokenExpr locates the token in the forgery endpoint's body.
const forgeryTokenExpr = "csrfToken || csrf_token || token || data.csrfToken || data.csrf_token || data.token"

// ErrNoForgeryToken is returned when the forgery endpoint answers without a token.
var ErrNoForgeryToken = errors.New("forgery endpoint returned no token")

// RefreshForgeryToken fetches a new forgery token, stores it and returns it. Concurrent
// callers share one request.
func (c *Client) RefreshForgeryToken(ctx context.Context) (string, error) {
	v, err, _ := c.refreshes.Do("forgery", func() (any, error) {
		tok, err := c.fetchForgeryToken(ctx)
		c.metrics.EmitForgeryRefresh(err)
		return tok, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchForgeryToken(ctx context.Context) (string, error) {
	target := c.base.JoinPath(c.forgery)
	res, err := c.roundTrip(ctx, call{
		method:    http.MethodGet,
		target:    target,
		requestID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("fetch forgery token: %w", err)
	}
	if res.status < 200 || res.status >= 300 {
		return "", fmt.Errorf("fetch forgery token: unexpected status %d", res.status)
	}

	// The header, when present, was already persisted by roundTrip.
	if tok := strings.TrimSpace(res.header.Get(c.headers.forgery)); tok != "" {
		return tok, nil
	}

	tok := tokenFromBody(res.body)
	if tok == "" {
		return "", ErrNoForgeryToken
	}
	if err := c.store.Set(ctx, c.names.forgery, tok, c.CookieOptions(c.maxAge.forgery)); err != nil {
		return "", fmt.Errorf("store forgery token: %w", err)
	}
	c.logger.DebugContext(ctx, "forgery token refreshed")
	return tok, nil
}

// tokenFromBody accepts either a JSON document carrying the token or a bare token string.
func tokenFromBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		if strings.ContainsAny(trimmed, " <>{}") {
			return ""
		}
		return trimmed
	}
	if s, ok := doc.(string); ok {
		return strings.TrimSpace(s)
	}
	v, err := jmespath.Search(forgeryTokenExpr, doc)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
