package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/target/bizdesk/internal/apiclient"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	apperrors "github.com/target/bizdesk/internal/errors"
	"github.com/target/bizdesk/internal/observability/metrics"
	"github.com/target/bizdesk/internal/ports"
)

// DefaultRevalidateInterval is how often an authenticated session is re-verified.
const DefaultRevalidateInterval = 5 * time.Minute

// APIClient is the subset of *apiclient.Client the session manager depends on.
type APIClient interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
	OnSessionExpired(fn func(ctx context.Context)) func()
	CookieOptions(maxAge time.Duration) domainauth.CookieOptions
	CredentialName() string
	CredentialMaxAge() time.Duration
}

// Endpoints are the backend paths of the authentication API.
type Endpoints struct {
	Me             string
	Login          string
	Logout         string
	Register       string
	ForgotPassword string
	ResetPassword  string
	ChangePassword string
}

// DefaultEndpoints returns the standard backend paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Me:             "/auth/me",
		Login:          "/auth/login",
		Logout:         "/auth/logout",
		Register:       "/auth/register",
		ForgotPassword: "/auth/forgot-password",
		ResetPassword:  "/auth/reset-password",
		ChangePassword: "/auth/change-password",
	}
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Client    APIClient
	Store     ports.CredentialStore
	Navigator ports.Navigator
	Endpoints Endpoints

	RevalidateInterval time.Duration
	Now                func() time.Time
	Metrics            *metrics.Recorder
	Logger             *slog.Logger
}

// ErrLoginSuperseded is returned by Login when a logout or forced expiry happened while the
// login was in flight; its result is discarded.
var ErrLoginSuperseded = &apperrors.AppError{
	Code:    apperrors.ErrCodeCanceled,
	Message: "Login was canceled by a newer sign-out.",
}

// SessionManager is the single writer of the session state. It verifies the stored credential,
// performs the authentication verbs and revalidates the session periodically.
//
// Two counters discard results that resolve after a newer state change: logoutGen is bumped by
// logout and forced expiry and guards Login; authGen is bumped by every applied login, logout
// or expiry and guards CheckAuth.
type SessionManager struct {
	client    APIClient
	store     ports.CredentialStore
	nav       ports.Navigator
	endpoints Endpoints
	interval  time.Duration
	now       func() time.Time
	metrics   *metrics.Recorder
	logger    *slog.Logger

	mu        sync.Mutex
	state     domainauth.SessionState
	logoutGen uint64
	authGen   uint64

	subsMu  sync.Mutex
	subs    map[int]func(domainauth.SessionState)
	nextSub int

	lifeMu sync.Mutex
	cancel context.CancelFunc
	unhook func()
	wg     sync.WaitGroup
}

// NewSessionManager constructs a SessionManager in the Unknown state. Call Init to verify the
// stored credential and start periodic revalidation.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	m := &SessionManager{
		client:    opts.Client,
		store:     opts.Store,
		nav:       opts.Navigator,
		endpoints: opts.Endpoints,
		interval:  opts.RevalidateInterval,
		now:       opts.Now,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		state:     domainauth.UnknownState(),
		subs:      make(map[int]func(domainauth.SessionState)),
	}
	def := DefaultEndpoints()
	if m.endpoints.Me == "" {
		m.endpoints.Me = def.Me
	}
	if m.endpoints.Login == "" {
		m.endpoints.Login = def.Login
	}
	if m.endpoints.Logout == "" {
		m.endpoints.Logout = def.Logout
	}
	if m.endpoints.Register == "" {
		m.endpoints.Register = def.Register
	}
	if m.endpoints.ForgotPassword == "" {
		m.endpoints.ForgotPassword = def.ForgotPassword
	}
	if m.endpoints.ResetPassword == "" {
		m.endpoints.ResetPassword = def.ResetPassword
	}
	if m.endpoints.ChangePassword == "" {
		m.endpoints.ChangePassword = def.ChangePassword
	}
	if m.interval <= 0 {
		m.interval = DefaultRevalidateInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Init runs the initial revalidation and starts the periodic one. The returned error is only
// non-nil when the manager was already initialized.
func (m *SessionManager) Init(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.cancel != nil {
		m.lifeMu.Unlock()
		return errors.New("session manager already initialized")
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.unhook = m.client.OnSessionExpired(m.expire)
	m.lifeMu.Unlock()

	_ = m.CheckAuth(ctx, true)

	m.wg.Add(1)
	go m.revalidateLoop(loopCtx)
	return nil
}

// Dispose stops periodic revalidation, waits for in-flight ticks and drops the expiry hook.
// The manager keeps its last state and can still be used for explicit calls.
func (m *SessionManager) Dispose() {
	m.lifeMu.Lock()
	cancel, unhook := m.cancel, m.unhook
	m.cancel, m.unhook = nil, nil
	m.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	unhook()
	m.wg.Wait()
}

// revalidateLoop re-verifies an authenticated session on every tick. A tick that is still
// pending when the next fires is left to finish on its own.
func (m *SessionManager) revalidateLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State().Status() != domainauth.StatusAuthenticated {
				continue
			}
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				_ = m.CheckAuth(ctx, true)
			}()
		}
	}
}

// State returns a snapshot of the current session state.
func (m *SessionManager) State() domainauth.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// HasRole reports whether the current identity holds role; false when unauthenticated.
func (m *SessionManager) HasRole(role domainauth.Role) bool {
	return m.State().HasRole(role)
}

// ClearError drops the retained error message without touching identity or auth flags.
func (m *SessionManager) ClearError() {
	m.mu.Lock()
	if m.state.LastError == "" {
		m.mu.Unlock()
		return
	}
	m.state.LastError = ""
	snap := m.state.Clone()
	m.mu.Unlock()
	m.publish(snap)
}

// Subscribe registers fn to receive a snapshot after every applied state change.
func (m *SessionManager) Subscribe(fn func(domainauth.SessionState)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *SessionManager) publish(s domainauth.SessionState) {
	m.subsMu.Lock()
	fns := make([]func(domainauth.SessionState), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn(s.Clone())
	}
}

// transition replaces the state; callers hold m.mu and publish the returned snapshot after
// unlocking.
func (m *SessionManager) transition(next domainauth.SessionState, cause string) domainauth.SessionState {
	prev := m.state
	m.state = next
	if prev.Status() != next.Status() {
		m.metrics.EmitTransition(prev.Status().String(), next.Status().String(), cause)
		m.logger.Info("session transition", "from", prev.Status().String(), "to", next.Status().String(), "cause", cause)
	}
	return m.state.Clone()
}

// storedCredential returns the stored credential unless it is absent or locally expired.
func (m *SessionManager) storedCredential(ctx context.Context) (domainauth.Credential, bool) {
	raw, ok := m.store.Get(ctx, m.client.CredentialName())
	if !ok {
		return domainauth.Credential{}, false
	}
	cred := domainauth.ParseCredential(raw)
	if cred.Expired(m.now()) {
		m.logger.DebugContext(ctx, "stored credential expired locally", "expires_at", cred.ExpiresAt)
		return domainauth.Credential{}, false
	}
	return cred, true
}

// CheckAuth verifies the stored credential with the backend. Any failure ends in the Anonymous
// state with the credential deleted; the error is returned only when silent is false.
// A check abandoned because ctx ended changes nothing.
func (m *SessionManager) CheckAuth(ctx context.Context, silent bool) error {
	m.mu.Lock()
	gen := m.authGen
	m.mu.Unlock()

	if _, ok := m.storedCredential(ctx); !ok {
		if ctx.Err() != nil {
			return m.abandoned(ctx, apperrors.Canceled(ctx.Err()), silent)
		}
		m.applyAnonymous(ctx, gen, nil, "no_credential")
		return nil
	}

	var env apiclient.Envelope
	err := m.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: m.endpoints.Me}, &env)
	var id domainauth.Identity
	if err == nil {
		id, err = parseUserEnvelope(env)
	}
	if err != nil && (apperrors.IsCanceled(err) || ctx.Err() != nil) {
		return m.abandoned(ctx, err, silent)
	}
	if err != nil {
		m.logger.InfoContext(ctx, "session verification failed", "error", err, "silent", silent)
		var lastErr error
		if !silent {
			lastErr = err
		}
		m.applyAnonymous(ctx, gen, lastErr, "verification_failed")
		if silent {
			return nil
		}
		return err
	}

	m.mu.Lock()
	if gen != m.authGen {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding stale verification result")
		return nil
	}
	snap := m.transition(domainauth.AuthenticatedState(id), "verified")
	m.mu.Unlock()
	m.publish(snap)
	return nil
}

func (m *SessionManager) abandoned(ctx context.Context, err error, silent bool) error {
	m.logger.DebugContext(ctx, "session verification abandoned", "error", err)
	if silent {
		return nil
	}
	return err
}

// applyAnonymous deletes the credential and moves to Anonymous unless a newer transition
// happened since gen was captured.
func (m *SessionManager) applyAnonymous(ctx context.Context, gen uint64, cause error, reason string) {
	m.mu.Lock()
	if gen != m.authGen {
		m.mu.Unlock()
		return
	}
	if err := m.store.Delete(ctx, m.client.CredentialName()); err != nil {
		m.logger.WarnContext(ctx, "failed to delete credential", "error", err)
	}
	next := domainauth.AnonymousState()
	if cause != nil {
		next.LastError = apperrors.UserMessage(cause)
	}
	snap := m.transition(next, reason)
	m.mu.Unlock()
	m.publish(snap)
}

// expire is the client's session-expired hook: the credential was rejected by some call.
func (m *SessionManager) expire(ctx context.Context) {
	m.mu.Lock()
	m.logoutGen++
	m.authGen++
	if err := m.store.Delete(ctx, m.client.CredentialName()); err != nil {
		m.logger.WarnContext(ctx, "failed to delete credential", "error", err)
	}
	next := domainauth.AnonymousState()
	next.LastError = apperrors.MsgSessionExpired
	snap := m.transition(next, "session_expired")
	m.mu.Unlock()
	m.publish(snap)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password. Nothing is committed unless the response is a
// success envelope carrying both a credential and a well-formed identity.
func (m *SessionManager) Login(ctx context.Context, email, password string) (domainauth.Identity, error) {
	m.mu.Lock()
	gen := m.logoutGen
	m.mu.Unlock()

	var env apiclient.Envelope
	err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   m.endpoints.Login,
		Body:   loginRequest{Email: strings.TrimSpace(email), Password: password},
	}, &env)

	var (
		token string
		id    domainauth.Identity
	)
	if err == nil {
		token, id, err = parseLoginEnvelope(env)
	}
	if err != nil {
		m.loginFailed(ctx, gen, err)
		return domainauth.Identity{}, err
	}

	m.mu.Lock()
	if gen != m.logoutGen {
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "discarding login that resolved after sign-out")
		return domainauth.Identity{}, ErrLoginSuperseded
	}
	opts := m.client.CookieOptions(m.client.CredentialMaxAge())
	if err := m.store.Set(ctx, m.client.CredentialName(), token, opts); err != nil {
		m.mu.Unlock()
		wrapped := apperrors.Wrap(err, apperrors.ErrCodeInternal, "Unable to save the session.")
		m.loginFailed(ctx, gen, wrapped)
		return domainauth.Identity{}, wrapped
	}
	m.authGen++
	snap := m.transition(domainauth.AuthenticatedState(id), "login")
	m.mu.Unlock()
	m.publish(snap)

	m.logger.InfoContext(ctx, "login succeeded", "user_id", id.ID, "roles", id.Roles)
	return id, nil
}

// loginFailed restores the prior state (Anonymous if it was Unknown) and retains the error.
// A malformed response additionally forces Anonymous and deletes the credential.
func (m *SessionManager) loginFailed(ctx context.Context, gen uint64, err error) {
	m.mu.Lock()
	if gen != m.logoutGen {
		m.mu.Unlock()
		return
	}

	next := m.state.Clone()
	cause := "login_failed"
	if apperrors.IsProtocol(err) {
		if delErr := m.store.Delete(ctx, m.client.CredentialName()); delErr != nil {
			m.logger.WarnContext(ctx, "failed to delete credential", "error", delErr)
		}
		m.authGen++
		next = domainauth.AnonymousState()
		cause = "protocol_error"
	} else if next.IsLoading {
		next = domainauth.AnonymousState()
	}
	next.LastError = apperrors.UserMessage(err)
	snap := m.transition(next, cause)
	m.mu.Unlock()
	m.publish(snap)
}

// Logout notifies the backend on a best-effort basis, then always deletes the credential,
// moves to Anonymous and navigates to redirectTarget (when non-empty).
func (m *SessionManager) Logout(ctx context.Context, redirectTarget string) {
	m.mu.Lock()
	m.logoutGen++
	m.authGen++
	m.mu.Unlock()

	if err := m.client.Do(ctx, apiclient.Request{
		Method:           http.MethodPost,
		Path:             m.endpoints.Logout,
		NoExpiryRedirect: true,
	}, nil); err != nil {
		m.logger.InfoContext(ctx, "backend logout failed; continuing locally", "error", err)
	}

	m.mu.Lock()
	m.logoutGen++
	m.authGen++
	if err := m.store.Delete(ctx, m.client.CredentialName()); err != nil {
		m.logger.WarnContext(ctx, "failed to delete credential", "error", err)
	}
	snap := m.transition(domainauth.AnonymousState(), "logout")
	m.mu.Unlock()
	m.publish(snap)

	if redirectTarget != "" && m.nav != nil {
		m.nav.Navigate(ctx, redirectTarget)
	}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Register creates an account. It does not sign the user in.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	var env apiclient.Envelope
	if err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   m.endpoints.Register,
		Body:   in,
	}, &env); err != nil {
		return "", err
	}
	if err := requireSuccess(env); err != nil {
		return "", err
	}
	return envelopeMessage(env), nil
}

// ProfileUpdate is a partial identity update; nil fields are left unchanged.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// UpdateProfile saves profile changes and stores the identity the backend returns.
func (m *SessionManager) UpdateProfile(ctx context.Context, in ProfileUpdate) (domainauth.Identity, error) {
	m.mu.Lock()
	gen := m.authGen
	m.mu.Unlock()

	var env apiclient.Envelope
	if err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPut,
		Path:   m.endpoints.Me,
		Body:   in,
	}, &env); err != nil {
		return domainauth.Identity{}, err
	}
	id, err := parseUserEnvelope(env)
	if err != nil {
		return domainauth.Identity{}, err
	}

	m.mu.Lock()
	if gen != m.authGen || m.state.Status() != domainauth.StatusAuthenticated {
		m.mu.Unlock()
		return id, nil
	}
	snap := m.transition(domainauth.AuthenticatedState(id), "profile_updated")
	m.mu.Unlock()
	m.publish(snap)
	return id, nil
}

// ForgotPassword requests a password reset email.
func (m *SessionManager) ForgotPassword(ctx context.Context, email string) error {
	return m.post(ctx, m.endpoints.ForgotPassword, map[string]string{"email": strings.TrimSpace(email)})
}

// ResetPassword sets a new password using a reset token.
func (m *SessionManager) ResetPassword(ctx context.Context, token, password string) error {
	return m.post(ctx, m.endpoints.ResetPassword, map[string]string{"token": token, "password": password})
}

// ChangePassword changes the password of the signed-in user.
func (m *SessionManager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return m.post(ctx, m.endpoints.ChangePassword, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
}

func (m *SessionManager) post(ctx context.Context, path string, body any) error {
	var env apiclient.Envelope
	if err := m.client.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body}, &env); err != nil {
		return err
	}
	return requireSuccess(env)
}

func requireSuccess(env apiclient.Envelope) error {
	if env.Success() {
		return nil
	}
	if env.Message != "" {
		return apperrors.Protocol(env.Message)
	}
	return apperrors.Protocolf("unexpected response status %q", env.Status)
}

func envelopeMessage(env apiclient.Envelope) string {
	if env.Message != "" {
		return env.Message
	}
	var data struct {
		Message string `json:"message"`
	}
	if env.HasData() && json.Unmarshal(env.Data, &data) == nil {
		return data.Message
	}
	return ""
}

type userPayload struct {
	User json.RawMessage `json:"user"`
}

type loginPayload struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

func parseUserEnvelope(env apiclient.Envelope) (domainauth.Identity, error) {
	if err := requireSuccess(env); err != nil {
		return domainauth.Identity{}, err
	}
	if !env.HasData() {
		return domainauth.Identity{}, apperrors.Protocol("response has no data")
	}
	var p userPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeProtocol, "response data is not an object")
	}
	return parseIdentity(p.User)
}

func parseLoginEnvelope(env apiclient.Envelope) (string, domainauth.Identity, error) {
	if err := requireSuccess(env); err != nil {
		return "", domainauth.Identity{}, err
	}
	if !env.HasData() {
		return "", domainauth.Identity{}, apperrors.Protocol("login response has no data")
	}
	var p loginPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return "", domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeProtocol, "login response data is malformed")
	}
	if strings.TrimSpace(p.Token) == "" {
		return "", domainauth.Identity{}, apperrors.Protocol("login response has no token")
	}
	id, err := parseIdentity(p.User)
	if err != nil {
		return "", domainauth.Identity{}, err
	}
	return strings.TrimSpace(p.Token), id, nil
}

func parseIdentity(raw json.RawMessage) (domainauth.Identity, error) {
	id, err := domainauth.ParseIdentity(raw)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeProtocol, "malformed user in response")
	}
	return id, nil
}
