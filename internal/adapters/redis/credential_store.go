// Package redis provides Redis-based adapters for the session layer.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

// CredentialStore keeps the tokens of one browser session in Redis so several frontend
// instances share them. Expiry is delegated to Redis TTLs derived from the cookie max age.
type CredentialStore struct {
	client    redis.UniversalClient
	prefix    string
	namespace string
	logger    *slog.Logger
}

// CredentialStoreOptions configures a CredentialStore.
type CredentialStoreOptions struct {
	Client redis.UniversalClient
	// Prefix is prepended to every key (default "credential:").
	Prefix string
	// Namespace identifies the browser session the tokens belong to (default "default").
	Namespace string
	Logger    *slog.Logger
}

// NewCredentialStore creates a Redis-based credential store.
func NewCredentialStore(opts CredentialStoreOptions) (*CredentialStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "credential:"
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{client: opts.Client, prefix: prefix, namespace: ns, logger: logger}, nil
}

func (s *CredentialStore) key(name string) string {
	return s.prefix + s.namespace + ":" + name
}

func (s *CredentialStore) Get(ctx context.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "redis credential read failed", "name", name, "error", err)
		}
		return "", false
	}
	return val, val != ""
}

// Set stores value; a non-positive MaxAge stores it without expiry.
func (s *CredentialStore) Set(ctx context.Context, name, value string, opts domainauth.CookieOptions) error {
	if name == "" {
		return errors.New("credential name cannot be empty")
	}
	ttl := opts.MaxAge
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(name), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return nil // Nothing to delete
	}
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}
