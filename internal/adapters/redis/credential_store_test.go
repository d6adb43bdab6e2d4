package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	"github.com/target/bizdesk/internal/testutil"
)

func TestNewCredentialStore_RequiresClient(t *testing.T) {
	_, err := NewCredentialStore(CredentialStoreOptions{})
	require.Error(t, err)
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store, err := NewCredentialStore(CredentialStoreOptions{Client: client, Namespace: "browser-1"})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := store.Get(ctx, domainauth.CredentialName)
	assert.False(t, ok)

	opts := domainauth.DefaultCookieOptions("localhost", domainauth.CredentialMaxAge)
	require.NoError(t, store.Set(ctx, domainauth.CredentialName, "T1", opts))

	v, ok := store.Get(ctx, domainauth.CredentialName)
	require.True(t, ok)
	assert.Equal(t, "T1", v)

	ttl, err := client.TTL(ctx, "credential:browser-1:token").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 23*time.Hour)

	require.NoError(t, store.Delete(ctx, domainauth.CredentialName))
	_, ok = store.Get(ctx, domainauth.CredentialName)
	assert.False(t, ok)
}

func TestCredentialStore_NamespacesAreIsolated(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	a, err := NewCredentialStore(CredentialStoreOptions{Client: client, Namespace: "a"})
	require.NoError(t, err)
	b, err := NewCredentialStore(CredentialStoreOptions{Client: client, Namespace: "b"})
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, domainauth.ForgeryName, "C", domainauth.CookieOptions{MaxAge: time.Minute}))
	_, ok := b.Get(ctx, domainauth.ForgeryName)
	assert.False(t, ok)
}

func TestCredentialStore_ExpiresWithTTL(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	store, err := NewCredentialStore(CredentialStoreOptions{Client: client})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "token", "T", domainauth.CookieOptions{MaxAge: 100 * time.Millisecond}))
	require.Eventually(t, func() bool {
		_, ok := store.Get(ctx, "token")
		return !ok
	}, 2*time.Second, 50*time.Millisecond)
}
