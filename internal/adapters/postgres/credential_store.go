// Package postgres stores session credentials in PostgreSQL for deployments that share
// tokens between hosts and want them to survive a Redis flush.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	apperrors "github.com/target/bizdesk/internal/errors"
)

// CredentialStore persists credentials in the credentials table, one row per (namespace, name).
type CredentialStore struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
	logger    *slog.Logger
}

// CredentialStoreOptions configures a CredentialStore.
type CredentialStoreOptions struct {
	DB        *sql.DB
	Namespace string
	Now       func() time.Time
	Logger    *slog.Logger
}

type credentialRow struct {
	Value     string     `db:"value"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// NewCredentialStore creates a CredentialStore. The schema is created by migrate.Run.
func NewCredentialStore(opts CredentialStoreOptions) (*CredentialStore, error) {
	if opts.DB == nil {
		return nil, errors.New("database handle is required")
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{db: opts.DB, namespace: ns, now: now, logger: logger}, nil
}

const selectCredential = `
	SELECT value, expires_at
	FROM credentials
	WHERE namespace = $1 AND name = $2`

func (s *CredentialStore) Get(ctx context.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	var row credentialRow
	err := withPgxConn(ctx, s.db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, selectCredential, s.namespace, name)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[credentialRow])
		return err
	})
	if err != nil {
		if mapped := apperrors.MapDBError(err); !apperrors.IsNotFound(mapped) {
			s.logger.WarnContext(ctx, "credential read failed", "name", name, "error", mapped)
		}
		return "", false
	}
	if row.Value == "" {
		return "", false
	}
	if row.ExpiresAt != nil && !s.now().Before(*row.ExpiresAt) {
		return "", false
	}
	return row.Value, true
}

const upsertCredential = `
	INSERT INTO credentials (namespace, name, value, path, secure, same_site, expires_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (namespace, name) DO UPDATE SET
		value = EXCLUDED.value,
		path = EXCLUDED.path,
		secure = EXCLUDED.secure,
		same_site = EXCLUDED.same_site,
		expires_at = EXCLUDED.expires_at,
		updated_at = EXCLUDED.updated_at`

func (s *CredentialStore) Set(ctx context.Context, name, value string, opts domainauth.CookieOptions) error {
	if name == "" {
		return apperrors.ValidationField("name", "credential name cannot be empty")
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	if opts.MaxAge > 0 {
		exp := now.Add(opts.MaxAge)
		expiresAt = &exp
	}
	path := opts.Path
	if path == "" {
		path = "/"
	}

	if _, err := s.db.ExecContext(ctx, upsertCredential,
		s.namespace, name, value, path, opts.Secure, sameSiteName(opts.SameSite), expiresAt, now,
	); err != nil {
		return fmt.Errorf("store credential %s: %w", name, apperrors.MapDBError(err))
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE namespace = $1 AND name = $2`, s.namespace, name,
	); err != nil {
		return fmt.Errorf("delete credential %s: %w", name, apperrors.MapDBError(err))
	}
	return nil
}

// PurgeExpired removes expired rows across all namespaces and returns how many were deleted.
func (s *CredentialStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired credentials: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired credentials: %w", err)
	}
	return n, nil
}

func sameSiteName(v http.SameSite) string {
	switch v {
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteNoneMode:
		return "none"
	default:
		return "strict"
	}
}
