package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

func newTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")
	s, err := NewStore(Options{Path: path, Now: func() time.Time { return *now }})
	require.NoError(t, err)
	return s
}

func TestNewStore_RequiresPath(t *testing.T) {
	_, err := NewStore(Options{})
	require.Error(t, err)
}

func TestStore_RoundTripAcrossInstances(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(t, &now)
	ctx := context.Background()

	opts := domainauth.DefaultCookieOptions("api.example.com", domainauth.CredentialMaxAge)
	require.NoError(t, s.Set(ctx, domainauth.CredentialName, "T", opts))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	other, err := NewStore(Options{Path: s.Path(), Now: func() time.Time { return now }})
	require.NoError(t, err)
	v, ok := other.Get(ctx, domainauth.CredentialName)
	require.True(t, ok)
	assert.Equal(t, "T", v)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "same_site: strict")
	assert.Contains(t, string(data), "secure: true")
}

func TestStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "token", "T", domainauth.CookieOptions{MaxAge: time.Hour}))
	_, ok := s.Get(ctx, "token")
	require.True(t, ok)

	now = now.Add(time.Hour)
	_, ok = s.Get(ctx, "token")
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, &now)
	ctx := context.Background()

	// deleting from a missing file is fine
	require.NoError(t, s.Delete(ctx, "token"))

	require.NoError(t, s.Set(ctx, "token", "T", domainauth.CookieOptions{}))
	require.NoError(t, s.Set(ctx, "csrf_token", "C", domainauth.CookieOptions{}))
	require.NoError(t, s.Delete(ctx, "token"))

	_, ok := s.Get(ctx, "token")
	assert.False(t, ok)
	v, ok := s.Get(ctx, "csrf_token")
	assert.True(t, ok)
	assert.Equal(t, "C", v)
}

func TestStore_CorruptFileReadsAbsentAndIsReplaced(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("entries: [not: a map"), 0o600))

	_, ok := s.Get(ctx, "token")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "token", "fresh", domainauth.CookieOptions{}))
	v, ok := s.Get(ctx, "token")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}
