// Package apiclient is the single choke point for backend calls. It attaches the stored
// credential and forgery token, persists renewed tokens, and resolves every failure into the
// application error taxonomy so callers only see a decoded value or an *errors.AppError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	apperrors "github.com/target/bizdesk/internal/errors"
	"github.com/target/bizdesk/internal/observability/metrics"
	"github.com/target/bizdesk/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 15 * time.Second

	DefaultCredentialHeader = "X-Auth-Token"
	DefaultForgeryHeader    = "X-CSRF-Token"
	DefaultForgeryPath      = "/api/csrf-token"
	DefaultNonceParam       = "_t"
	DefaultLoginPath        = "/login"
	DefaultExpiredMarker    = "session=expired"

	requestIDHeader = "X-Request-Id"
	maxBodyBytes    = 10 << 20
)

// DefaultAuthPaths are the views from which a 401 does not trigger a redirect.
var DefaultAuthPaths = []string{"/login", "/register", "/forgot-password", "/reset-password"}

// Options configures a Client.
type Options struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	Store     ports.CredentialStore
	Navigator ports.Navigator

	CredentialName   string
	ForgeryName      string
	CredentialMaxAge time.Duration
	ForgeryMaxAge    time.Duration

	// CredentialHeader and ForgeryHeader name the response headers carrying renewed tokens.
	// ForgeryHeader is also the request header the forgery token is sent in.
	CredentialHeader string
	ForgeryHeader    string
	ForgeryPath      string
	NonceParam       string

	LoginPath     string
	ExpiredMarker string
	AuthPaths     []string

	ErrorPaths ErrorPaths
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

// Client issues backend requests with credential handling, forgery-token rotation and error
// classification. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	http       *http.Client
	timeout    time.Duration
	store      ports.CredentialStore
	nav        ports.Navigator
	names      tokenNames
	maxAge     tokenAges
	headers    tokenNames
	forgery    string
	nonce      string
	loginPath  string
	expired    string
	authPaths  []string
	extract    *errorExtractor
	metrics    *metrics.Recorder
	logger     *slog.Logger
	refreshes  singleflight.Group
	hooksMu    sync.Mutex
	hooks      map[int]func(context.Context)
	nextHookID int
}

type tokenNames struct{ credential, forgery string }

type tokenAges struct{ credential, forgery time.Duration }

// New creates a Client. BaseURL and Store are required.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("credential store is required")
	}
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", opts.BaseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	extract, err := newErrorExtractor(opts.ErrorPaths)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:      base,
		http:      opts.HTTPClient,
		timeout:   opts.Timeout,
		store:     opts.Store,
		nav:       opts.Navigator,
		names:     tokenNames{credential: opts.CredentialName, forgery: opts.ForgeryName},
		maxAge:    tokenAges{credential: opts.CredentialMaxAge, forgery: opts.ForgeryMaxAge},
		headers:   tokenNames{credential: opts.CredentialHeader, forgery: opts.ForgeryHeader},
		forgery:   opts.ForgeryPath,
		nonce:     opts.NonceParam,
		loginPath: opts.LoginPath,
		expired:   opts.ExpiredMarker,
		authPaths: opts.AuthPaths,
		extract:   extract,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		hooks:     make(map[int]func(context.Context)),
	}
	c.applyDefaults()
	return c, nil
}

func (c *Client) applyDefaults() {
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.names.credential == "" {
		c.names.credential = domainauth.CredentialName
	}
	if c.names.forgery == "" {
		c.names.forgery = domainauth.ForgeryName
	}
	if c.maxAge.credential <= 0 {
		c.maxAge.credential = domainauth.CredentialMaxAge
	}
	if c.maxAge.forgery <= 0 {
		c.maxAge.forgery = domainauth.ForgeryMaxAge
	}
	if c.headers.credential == "" {
		c.headers.credential = DefaultCredentialHeader
	}
	if c.headers.forgery == "" {
		c.headers.forgery = DefaultForgeryHeader
	}
	if c.forgery == "" {
		c.forgery = DefaultForgeryPath
	}
	if c.nonce == "" {
		c.nonce = DefaultNonceParam
	}
	if c.loginPath == "" {
		c.loginPath = DefaultLoginPath
	}
	if c.expired == "" {
		c.expired = DefaultExpiredMarker
	}
	if c.authPaths == nil {
		c.authPaths = DefaultAuthPaths
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "apiclient")
}

// Request describes one logical backend call.
type Request struct {
	Method string
	// Path is resolved against the base URL and may carry a query string.
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// NoExpiryRedirect keeps a 401 from navigating to the login view and from firing the
	// session-expired hooks. The rejected credential is still deleted.
	NoExpiryRedirect bool
}

// CookieOptions returns the attributes tokens are stored with for this backend.
func (c *Client) CookieOptions(maxAge time.Duration) domainauth.CookieOptions {
	return domainauth.DefaultCookieOptions(c.base.Host, maxAge)
}

// CredentialName is the store key of the access credential.
func (c *Client) CredentialName() string { return c.names.credential }

// CredentialMaxAge is how long a stored credential is kept.
func (c *Client) CredentialMaxAge() time.Duration { return c.maxAge.credential }

// Get issues a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// attempt numbers the sends of one logical call; the forgery replay is attempt 1.
type attempt int

const (
	firstAttempt attempt = iota
	replayAttempt
)

// call is the immutable part of a logical request shared by all of its attempts.
type call struct {
	method    string
	target    *url.URL
	body      []byte
	header    http.Header
	requestID string
	quiet401  bool
}

// Do sends req and decodes a successful JSON response into out (which may be nil).
// Every failure is an *errors.AppError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	start := time.Now()
	cl, err := c.prepare(req)
	if err != nil {
		return err
	}

	status, err := c.send(ctx, cl, firstAttempt, out)
	c.metrics.EmitRequest(metrics.RequestMetric{
		Method:   cl.method,
		Status:   status,
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

func (c *Client) prepare(req Request) (call, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	ref, err := url.Parse(req.Path)
	if err != nil {
		return call{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "invalid request path")
	}
	target := c.base.JoinPath(ref.Path)
	q := ref.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	target.RawQuery = q.Encode()

	var body []byte
	if req.Body != nil {
		if body, err = json.Marshal(req.Body); err != nil {
			return call{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
		}
	}

	return call{
		method:    method,
		target:    target,
		body:      body,
		header:    req.Header.Clone(),
		requestID: uuid.NewString(),
		quiet401:  req.NoExpiryRedirect,
	}, nil
}

func (c *Client) send(ctx context.Context, cl call, n attempt, out any) (int, error) {
	res, err := c.roundTrip(ctx, cl)
	if err != nil {
		// The caller gave up; nothing is known about the backend.
		if errors.Is(ctx.Err(), context.Canceled) {
			c.logger.DebugContext(ctx, "backend request canceled",
				"method", cl.method, "path", cl.target.Path, "request_id", cl.requestID)
			return 0, apperrors.Canceled(err)
		}
		c.logger.WarnContext(ctx, "backend unreachable",
			"method", cl.method, "path", cl.target.Path, "request_id", cl.requestID, "error", err)
		return 0, apperrors.Network(err)
	}

	if res.status >= 200 && res.status < 300 {
		if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
			return res.status, nil
		}
		if err := json.Unmarshal(res.body, out); err != nil {
			return res.status, apperrors.Wrap(err, apperrors.ErrCodeProtocol, "malformed response body")
		}
		return res.status, nil
	}

	detail := c.extract.parse(res.body)
	switch {
	case res.status == http.StatusUnauthorized:
		return res.status, c.handleUnauthorized(ctx, cl, detail)

	case res.status == http.StatusForbidden && detail.forgeryMismatch():
		if n >= replayAttempt {
			c.logger.WarnContext(ctx, "forgery token rejected after replay",
				"method", cl.method, "path", cl.target.Path, "request_id", cl.requestID)
			return res.status, apperrors.ForgeryToken(res.status, nil)
		}
		if _, err := c.RefreshForgeryToken(ctx); err != nil {
			return res.status, apperrors.ForgeryToken(res.status, err)
		}
		c.metrics.EmitRetry("forgery_token")
		c.logger.InfoContext(ctx, "replaying request with fresh forgery token",
			"method", cl.method, "path", cl.target.Path, "request_id", cl.requestID)
		status, err := c.send(ctx, cl, n+1, out)
		return status, replayFailure(status, err)

	case res.status == http.StatusForbidden:
		return res.status, apperrors.PermissionDenied(res.status)
	case res.status == http.StatusTooManyRequests:
		return res.status, apperrors.RateLimited(res.status)
	case res.status == http.StatusRequestEntityTooLarge:
		return res.status, apperrors.PayloadTooLarge(res.status)
	case res.status == http.StatusUnprocessableEntity:
		return res.status, apperrors.ValidationFields(res.status, detail.fields)
	case isServerStatus(res.status):
		corrID := detail.correlationID
		if corrID == "" {
			corrID = firstHeader(res.header, "X-Correlation-Id", requestIDHeader)
		}
		c.logger.ErrorContext(ctx, "backend server error",
			"status", res.status, "path", cl.target.Path, "correlation_id", corrID)
		return res.status, apperrors.Server(res.status, corrID)
	default:
		msg := detail.message
		if msg == "" {
			msg = http.StatusText(res.status)
		}
		return res.status, apperrors.HTTPStatus(res.status, msg)
	}
}

// replayFailure turns any HTTP error answer to a forgery replay into a ForgeryToken error.
// A 401 keeps its session-expired meaning and a call that got no answer stays as classified.
func replayFailure(status int, err error) error {
	if err == nil || status == 0 || status == http.StatusUnauthorized || apperrors.IsForgeryToken(err) {
		return err
	}
	return apperrors.ForgeryToken(status, err)
}

// handleUnauthorized drops the credential, refreshes the forgery token once and sends the
// user to the login view unless they are already on an authentication view. On those views
// the backend's own message (e.g. bad credentials) is kept for display.
func (c *Client) handleUnauthorized(ctx context.Context, cl call, detail errorDetail) error {
	if err := c.store.Delete(ctx, c.names.credential); err != nil {
		c.logger.WarnContext(ctx, "failed to delete rejected credential", "error", err)
	}
	if _, err := c.RefreshForgeryToken(ctx); err != nil {
		c.logger.DebugContext(ctx, "forgery token refresh after 401 failed", "error", err)
	}

	current := ""
	if c.nav != nil {
		current = c.nav.CurrentPath()
	}
	onAuthView := c.isAuthPath(current)
	c.logger.InfoContext(ctx, "credential rejected",
		"path", cl.target.Path, "request_id", cl.requestID, "view", current)

	err := apperrors.SessionExpired(http.StatusUnauthorized)
	if onAuthView {
		if detail.message != "" {
			err.Message = detail.message
		}
		return err
	}
	if cl.quiet401 {
		return err
	}
	if c.nav != nil {
		c.nav.Navigate(ctx, c.loginPath+"?"+c.expired)
	}
	c.fireSessionExpired(ctx)
	return err
}

func (c *Client) isAuthPath(p string) bool {
	if p == "" {
		return false
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, ap := range c.authPaths {
		if p == ap || strings.HasPrefix(p, strings.TrimSuffix(ap, "/")+"/") {
			return true
		}
	}
	return false
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// roundTrip performs one HTTP exchange with the credential, nonce and forgery token attached,
// and persists any renewed tokens the backend returns.
func (c *Client) roundTrip(ctx context.Context, cl call) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := *cl.target
	if cl.method == http.MethodGet {
		q := target.Query()
		q.Set(c.nonce, uuid.NewString())
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, cl.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, cl.requestID)
	if cl.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	hasCredential, hasForgery := false, false
	if raw, ok := c.store.Get(ctx, c.names.credential); ok {
		domainauth.ParseCredential(raw).Token().SetAuthHeader(httpReq)
		hasCredential = true
	}
	if isMutating(cl.method) {
		if tok, ok := c.store.Get(ctx, c.names.forgery); ok {
			httpReq.Header.Set(c.headers.forgery, tok)
			hasForgery = true
		}
	}
	c.logger.DebugContext(ctx, "backend request",
		"method", cl.method, "path", target.Path, "request_id", cl.requestID,
		"has_credential", hasCredential, "has_forgery_token", hasForgery)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.persistRenewed(ctx, resp.Header)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) persistRenewed(ctx context.Context, h http.Header) {
	if v := strings.TrimSpace(h.Get(c.headers.credential)); v != "" {
		if err := c.store.Set(ctx, c.names.credential, v, c.CookieOptions(c.maxAge.credential)); err != nil {
			c.logger.WarnContext(ctx, "failed to persist renewed credential", "error", err)
		}
	}
	if v := strings.TrimSpace(h.Get(c.headers.forgery)); v != "" {
		if err := c.store.Set(ctx, c.names.forgery, v, c.CookieOptions(c.maxAge.forgery)); err != nil {
			c.logger.WarnContext(ctx, "failed to persist renewed forgery token", "error", err)
		}
	}
}

// OnSessionExpired registers fn to run whenever a credential is rejected outside an
// authentication view. The returned func removes the registration.
func (c *Client) OnSessionExpired(fn func(ctx context.Context)) func() {
	c.hooksMu.Lock()
	id := c.nextHookID
	c.nextHookID++
	c.hooks[id] = fn
	c.hooksMu.Unlock()

	return func() {
		c.hooksMu.Lock()
		delete(c.hooks, id)
		c.hooksMu.Unlock()
	}
}

func (c *Client) fireSessionExpired(ctx context.Context) {
	c.hooksMu.Lock()
	fns := make([]func(context.Context), 0, len(c.hooks))
	for _, fn := range c.hooks {
		fns = append(fns, fn)
	}
	c.hooksMu.Unlock()

	for _, fn := range fns {
		fn(ctx)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func isServerStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func firstHeader(h http.Header, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(h.Get(n)); v != "" {
			return v
		}
	}
	return ""
}
