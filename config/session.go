package config

import (
	"strings"
	"time"
)

const (
	defaultRevalidateInterval = 5 * time.Minute
	defaultInactivityTimeout  = 30 * time.Minute
)

// SessionConfig controls session revalidation and route guarding.
type SessionConfig struct {
	RevalidateInterval time.Duration `env:"REVALIDATE_INTERVAL" envDefault:"5m"`
	InactivityTimeout  time.Duration `env:"INACTIVITY_TIMEOUT"  envDefault:"30m"`

	LoginPath    string `env:"LOGIN_PATH"    envDefault:"/login"`
	ExpiredParam string `env:"EXPIRED_PARAM" envDefault:"session=expired"`
	HomePath     string `env:"HOME_PATH"     envDefault:"/dashboard"`

	// AuthPaths are public-only views; 401s there never redirect.
	AuthPaths []string `env:"AUTH_PATHS" envDefault:"/login;/register;/forgot-password;/reset-password" envSeparator:";"`
	// ProtectedPaths require a signed-in user.
	ProtectedPaths []string `env:"PROTECTED_PATHS" envDefault:"/dashboard;/clients;/invoices;/payments;/projects;/debts;/profile" envSeparator:";"`
}

// Sanitize restores defaults and normalizes paths.
func (c *SessionConfig) Sanitize() {
	if c.RevalidateInterval <= 0 {
		c.RevalidateInterval = defaultRevalidateInterval
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = defaultInactivityTimeout
	}
	c.LoginPath = leadingSlash(c.LoginPath, "/login")
	c.HomePath = leadingSlash(c.HomePath, "/dashboard")
	c.ExpiredParam = strings.TrimPrefix(strings.TrimSpace(c.ExpiredParam), "?")
	if c.ExpiredParam == "" {
		c.ExpiredParam = "session=expired"
	}
	c.AuthPaths = sanitizePaths(c.AuthPaths)
	c.ProtectedPaths = sanitizePaths(c.ProtectedPaths)
}

func sanitizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = leadingSlash(p, ""); p != "" {
			out = append(out, p)
		}
	}
	return out
}
