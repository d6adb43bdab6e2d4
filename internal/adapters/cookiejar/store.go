// Package cookiejar provides a browser-session credential store backed by an in-memory cookie jar.
package cookiejar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdjar "net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
	"golang.org/x/net/publicsuffix"
)

// Store keeps tokens as cookies scoped to one origin, with the jar enforcing expiry.
// It lives as long as the process, which is the Go equivalent of a browsing session.
type Store struct {
	mu     sync.Mutex
	jar    *stdjar.Jar
	origin *url.URL
}

// Options configures a Store.
type Options struct {
	// Origin is the application origin the cookies belong to, e.g. "https://app.example.com".
	Origin string
}

// NewStore creates a Store for the given origin.
func NewStore(opts Options) (*Store, error) {
	raw := strings.TrimSpace(opts.Origin)
	if raw == "" {
		return nil, errors.New("cookie store origin is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin %q has no host", raw)
	}

	jar, err := stdjar.New(&stdjar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	// Lookups always use https so Secure cookies stay visible to this process.
	return &Store{
		jar:    jar,
		origin: &url.URL{Scheme: "https", Host: u.Host, Path: "/"},
	}, nil
}

func (s *Store) Get(_ context.Context, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name == name {
			return c.Value, c.Value != ""
		}
	}
	return "", false
}

func (s *Store) Set(_ context.Context, name, value string, opts domainauth.CookieOptions) error {
	if name == "" {
		return errors.New("cookie name cannot be empty")
	}

	path := opts.Path
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	if secs := int(opts.MaxAge.Seconds()); secs > 0 {
		c.MaxAge = secs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(s.origin, []*http.Cookie{c})
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	if name == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(s.origin, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1}})
	return nil
}
