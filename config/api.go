package config

import (
	"strings"
	"time"
)

const (
	defaultAPITimeout       = 15 * time.Second
	defaultCredentialHeader = "X-Auth-Token"
	defaultForgeryHeader    = "X-CSRF-Token"
	defaultForgeryPath      = "/api/csrf-token"
	defaultNonceParam       = "_t"
)

// APIConfig describes the backend the request client talks to.
type APIConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:3000"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"15s"`

	// CredentialHeader carries a renewed credential on responses.
	CredentialHeader string `env:"CREDENTIAL_HEADER" envDefault:"X-Auth-Token"`
	// ForgeryHeader carries the forgery token on requests and responses.
	ForgeryHeader string `env:"FORGERY_HEADER" envDefault:"X-CSRF-Token"`
	// ForgeryPath is fetched to obtain a fresh forgery token.
	ForgeryPath string `env:"FORGERY_PATH" envDefault:"/api/csrf-token"`
	// NonceParam is the cache-defeating query parameter added to GET requests.
	NonceParam string `env:"NONCE_PARAM" envDefault:"_t"`
}

// Sanitize restores defaults for blank or non-positive values.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultAPITimeout
	}
	if c.CredentialHeader = strings.TrimSpace(c.CredentialHeader); c.CredentialHeader == "" {
		c.CredentialHeader = defaultCredentialHeader
	}
	if c.ForgeryHeader = strings.TrimSpace(c.ForgeryHeader); c.ForgeryHeader == "" {
		c.ForgeryHeader = defaultForgeryHeader
	}
	c.ForgeryPath = leadingSlash(c.ForgeryPath, defaultForgeryPath)
	if c.NonceParam = strings.TrimSpace(c.NonceParam); c.NonceParam == "" {
		c.NonceParam = defaultNonceParam
	}
}
