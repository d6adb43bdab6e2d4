package postgres

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	"github.com/target/bizdesk/internal/testutil"
)

func TestNewCredentialStore_RequiresDB(t *testing.T) {
	_, err := NewCredentialStore(CredentialStoreOptions{})
	require.Error(t, err)
}

func TestSameSiteName(t *testing.T) {
	assert.Equal(t, "strict", sameSiteName(http.SameSiteStrictMode))
	assert.Equal(t, "strict", sameSiteName(http.SameSiteDefaultMode))
	assert.Equal(t, "lax", sameSiteName(http.SameSiteLaxMode))
	assert.Equal(t, "none", sameSiteName(http.SameSiteNoneMode))
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		store, err := NewCredentialStore(CredentialStoreOptions{
			DB:        db,
			Namespace: "browser-1",
			Now:       func() time.Time { return now },
		})
		require.NoError(t, err)

		_, ok := store.Get(ctx, domainauth.CredentialName)
		assert.False(t, ok)

		opts := domainauth.DefaultCookieOptions("app.example.com", domainauth.CredentialMaxAge)
		require.NoError(t, store.Set(ctx, domainauth.CredentialName, "T1", opts))
		require.NoError(t, store.Set(ctx, domainauth.CredentialName, "T2", opts))

		v, ok := store.Get(ctx, domainauth.CredentialName)
		require.True(t, ok)
		assert.Equal(t, "T2", v)

		var secure bool
		var sameSite string
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT secure, same_site FROM credentials WHERE namespace = $1 AND name = $2`,
			"browser-1", domainauth.CredentialName).Scan(&secure, &sameSite))
		assert.True(t, secure)
		assert.Equal(t, "strict", sameSite)

		require.NoError(t, store.Delete(ctx, domainauth.CredentialName))
		_, ok = store.Get(ctx, domainauth.CredentialName)
		assert.False(t, ok)
	})
}

func TestCredentialStore_ExpiryAndPurge(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		store, err := NewCredentialStore(CredentialStoreOptions{
			DB:  db,
			Now: func() time.Time { return now },
		})
		require.NoError(t, err)

		require.NoError(t, store.Set(ctx, domainauth.ForgeryName, "C", domainauth.CookieOptions{MaxAge: time.Hour}))
		require.NoError(t, store.Set(ctx, domainauth.CredentialName, "T", domainauth.CookieOptions{}))

		now = now.Add(2 * time.Hour)
		_, ok := store.Get(ctx, domainauth.ForgeryName)
		assert.False(t, ok)

		n, err := store.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		v, ok := store.Get(ctx, domainauth.CredentialName)
		require.True(t, ok)
		assert.Equal(t, "T", v)
	})
}

func TestCredentialStore_EmptyNameIsValidationError(t *testing.T) {
	store, err := NewCredentialStore(CredentialStoreOptions{DB: &sql.DB{}})
	require.NoError(t, err)
	require.Error(t, store.Set(context.Background(), "", "v", domainauth.CookieOptions{}))
	require.NoError(t, store.Delete(context.Background(), ""))
}
