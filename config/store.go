package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StoreKind selects the credential store backend.
type StoreKind string

const (
	// StoreMemory keeps credentials in a process-local cookie jar.
	StoreMemory StoreKind = "memory"
	// StoreFile persists credentials to a YAML file for the CLI.
	StoreFile StoreKind = "file"
	// StoreRedis shares credentials across instances through Redis.
	StoreRedis StoreKind = "redis"
	// StorePostgres keeps credentials in the credentials table.
	StorePostgres StoreKind = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreKind.
func (k *StoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch StoreKind(v) {
	case StoreMemory, StoreFile, StoreRedis, StorePostgres:
		*k = StoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid StoreKind: %q (valid options: memory, file, redis, postgres)", v)
	}
}

// StoreConfig configures where the credential and forgery token live.
type StoreConfig struct {
	Kind StoreKind `env:"CREDENTIAL_STORE" envDefault:"file"`
	File string    `env:"CREDENTIAL_FILE"  envDefault:"~/.bizdesk/credentials.yaml"`

	CredentialMaxAge time.Duration `env:"CREDENTIAL_MAX_AGE" envDefault:"24h"`
	ForgeryMaxAge    time.Duration `env:"FORGERY_MAX_AGE"    envDefault:"12h"`

	// Namespace isolates one browser session inside a shared store.
	Namespace      string `env:"CREDENTIAL_NAMESPACE" envDefault:"default"`
	CredentialName string `env:"CREDENTIAL_NAME"      envDefault:"token"`
	ForgeryName    string `env:"FORGERY_NAME"         envDefault:"csrf_token"`
}

// Sanitize restores defaults and expands a leading ~ in File.
func (c *StoreConfig) Sanitize() {
	if c.Kind == "" {
		c.Kind = StoreFile
	}
	if c.CredentialMaxAge <= 0 {
		c.CredentialMaxAge = 24 * time.Hour
	}
	if c.ForgeryMaxAge <= 0 {
		c.ForgeryMaxAge = 12 * time.Hour
	}
	if c.Namespace = strings.TrimSpace(c.Namespace); c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.CredentialName = strings.TrimSpace(c.CredentialName); c.CredentialName == "" {
		c.CredentialName = "token"
	}
	if c.ForgeryName = strings.TrimSpace(c.ForgeryName); c.ForgeryName == "" {
		c.ForgeryName = "csrf_token"
	}
	c.File = expandHome(strings.TrimSpace(c.File))
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
