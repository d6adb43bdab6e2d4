package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Default names under which the two tokens are persisted.
const (
	CredentialName = "token"
	ForgeryName    = "csrf_token"
)

// Default lifetimes.
const (
	CredentialMaxAge = 24 * time.Hour
	ForgeryMaxAge    = 12 * time.Hour
)

// Credential is the bearer token identifying an authenticated session.
// ExpiresAt is zero when the value is opaque or carries no exp claim.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// ParseCredential inspects raw without verifying its signature; the backend is the only
// party able to do that. A JWT exp claim, when present, becomes ExpiresAt.
func ParseCredential(raw string) Credential {
	c := Credential{Value: strings.TrimSpace(raw)}
	if c.Value == "" {
		return c
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Value, &claims); err != nil {
		return c
	}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c
}

// Expired reports whether the credential carries an expiry that lies before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Token adapts the credential for header attachment.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Value,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// CookieOptions are the attributes a token is written with.
type CookieOptions struct {
	MaxAge   time.Duration
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns path=/, SameSite=Strict and Secure unless host is a
// loopback development host.
func DefaultCookieOptions(host string, maxAge time.Duration) CookieOptions {
	return CookieOptions{
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   !IsLoopbackHost(host),
		SameSite: http.SameSiteStrictMode,
	}
}

// IsLoopbackHost reports whether host (optionally with a port) names the local machine.
func IsLoopbackHost(host string) bool {
	h := strings.TrimSpace(host)
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	h = strings.Trim(h, "[]")
	if strings.EqualFold(h, "localhost") || strings.HasSuffix(strings.ToLower(h), ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
