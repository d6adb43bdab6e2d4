// Package navigator provides ports.Navigator implementations for hosts without a browser.
package navigator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// Terminal models the current view of a command-line session. Navigating to the login
// view prints a hint so the operator knows to sign in again.
type Terminal struct {
	mu        sync.Mutex
	path      string
	out       io.Writer
	loginPath string
	logger    *slog.Logger
}

// TerminalOptions configures a Terminal.
type TerminalOptions struct {
	// Path is the view the command represents, e.g. "/invoices".
	Path      string
	Out       io.Writer
	LoginPath string
	Logger    *slog.Logger
}

// NewTerminal creates a Terminal navigator.
func NewTerminal(opts TerminalOptions) *Terminal {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	login := opts.LoginPath
	if login == "" {
		login = "/login"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{path: opts.Path, out: out, loginPath: login, logger: logger}
}

func (t *Terminal) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Navigate records target as the current view.
func (t *Terminal) Navigate(ctx context.Context, target string) {
	u, err := url.Parse(target)
	if err != nil {
		t.logger.WarnContext(ctx, "ignoring invalid navigation target", "target", target, "error", err)
		return
	}

	t.mu.Lock()
	t.path = u.Path
	t.mu.Unlock()

	t.logger.DebugContext(ctx, "navigate", "target", target)
	if u.Path != t.loginPath {
		return
	}
	if strings.Contains(u.RawQuery, "session=expired") {
		fmt.Fprintln(t.out, "Your session has expired. Run `bizdesk login` to sign in again.")
		return
	}
	fmt.Fprintln(t.out, "Not signed in. Run `bizdesk login` first.")
}

// Static reports a fixed path and ignores navigation. It suits background processes that
// have no view to redirect.
type Static struct {
	Path string
}

func (s Static) CurrentPath() string { return s.Path }

func (Static) Navigate(context.Context, string) {}
