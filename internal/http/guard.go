package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

// ActivityCookieName holds the unix time of the last guarded request.
const ActivityCookieName = "last_activity"

// DefaultInactivityTimeout signs users out after 30 minutes without a guarded request.
const DefaultInactivityTimeout = 30 * time.Minute

// GuardSession is the slice of the session manager the guard needs.
type GuardSession interface {
	State() domainauth.SessionState
	CheckAuth(ctx context.Context, silent bool) error
	Logout(ctx context.Context, redirectTarget string)
}

// SessionResolver picks the session that owns a request. Multi-tenant deployments
// resolve by browser session; the CLI and tests use a single session.
type SessionResolver func(r *http.Request) GuardSession

// SingleSession resolves every request to s.
func SingleSession(s GuardSession) SessionResolver {
	return func(*http.Request) GuardSession { return s }
}

// GuardOptions configures RouteGuard.
type GuardOptions struct {
	Sessions          SessionResolver
	ProtectedPaths    []string
	AuthPaths         []string
	LoginPath         string
	HomePath          string
	ExpiredMarker     string
	InactivityTimeout time.Duration
	Now               func() time.Time
	Logger            *slog.Logger
}

type routeGuard struct {
	sessions  SessionResolver
	protected []string
	authOnly  []string
	login     string
	home      string
	marker    string
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// RouteGuard returns a middleware that keeps anonymous users out of protected views,
// keeps signed-in users out of public-only views and enforces the inactivity timeout.
func RouteGuard(opts GuardOptions) func(http.Handler) http.Handler {
	g := newRouteGuard(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.allow(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func newRouteGuard(opts GuardOptions) *routeGuard {
	g := &routeGuard{
		sessions:  opts.Sessions,
		protected: normalizePaths(opts.ProtectedPaths),
		authOnly:  normalizePaths(opts.AuthPaths),
		login:     opts.LoginPath,
		home:      opts.HomePath,
		marker:    opts.ExpiredMarker,
		timeout:   opts.InactivityTimeout,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if g.login == "" {
		g.login = "/login"
	}
	if g.home == "" {
		g.home = "/dashboard"
	}
	if g.marker == "" {
		g.marker = "session=expired"
	}
	if g.timeout <= 0 {
		g.timeout = DefaultInactivityTimeout
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "route_guard")
	return g
}

// allow writes a redirect and returns false when the request must not reach next.
func (g *routeGuard) allow(w http.ResponseWriter, r *http.Request) bool {
	if g.sessions == nil {
		return true
	}
	sess := g.sessions(r)
	if sess == nil {
		return true
	}
	ctx := r.Context()
	state := sess.State()
	if state.Status() == domainauth.StatusUnknown {
		// Errors are already reflected in the resulting state.
		_ = sess.CheckAuth(ctx, true)
		state = sess.State()
	}

	path := r.URL.Path
	if state.Status() != domainauth.StatusAuthenticated {
		if matchesAny(path, g.protected) {
			g.redirect(w, r, g.login+"?redirect="+url.QueryEscape(redirectPathForRequest(r)))
			return false
		}
		return true
	}

	if g.inactive(r) {
		g.logger.InfoContext(ctx, "signing out after inactivity", "path", path, "timeout", g.timeout)
		sess.Logout(ctx, "")
		g.clearActivity(w, r)
		g.redirect(w, r, g.login+"?"+g.marker)
		return false
	}
	g.touchActivity(w, r)

	if matchesAny(path, g.authOnly) {
		g.redirect(w, r, g.home)
		return false
	}
	return true
}

func (g *routeGuard) inactive(r *http.Request) bool {
	c, err := r.Cookie(ActivityCookieName)
	if err != nil {
		return false
	}
	secs, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return false
	}
	return g.now().Sub(time.Unix(secs, 0)) > g.timeout
}

func (g *routeGuard) touchActivity(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     ActivityCookieName,
		Value:    strconv.FormatInt(g.now().Unix(), 10),
		Path:     "/",
		MaxAge:   int(g.timeout / time.Second),
		HttpOnly: true,
		Secure:   !domainauth.IsLoopbackHost(r.Host),
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *routeGuard) clearActivity(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     ActivityCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !domainauth.IsLoopbackHost(r.Host),
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *routeGuard) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMX(r) {
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}
		out = append(out, p)
	}
	return out
}

// matchesAny reports whether path equals a prefix or sits beneath it.
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
