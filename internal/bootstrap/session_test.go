package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bizdesk/config"
	"github.com/target/bizdesk/internal/adapters/cookiejar"
	"github.com/target/bizdesk/internal/adapters/filestore"
	domainauth "github.com/target/bizdesk/internal/domain/auth"
	mockauth "github.com/target/bizdesk/internal/mocks/auth"
)

func testConfig(t *testing.T, baseURL string) config.AppConfig {
	t.Helper()
	cfg := config.AppConfig{
		API:   config.APIConfig{BaseURL: baseURL},
		Store: config.StoreConfig{Kind: config.StoreFile, File: filepath.Join(t.TempDir(), "creds.yaml")},
	}
	cfg.Sanitize()
	return cfg
}

func TestBuildCredentialStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory uses the cookie jar", func(t *testing.T) {
		cfg := testConfig(t, "http://localhost:3000")
		cfg.Store.Kind = config.StoreMemory
		store, closer, err := BuildCredentialStore(ctx, cfg, slog.Default())
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.IsType(t, &cookiejar.Store{}, store)
	})

	t.Run("file writes the configured path", func(t *testing.T) {
		cfg := testConfig(t, "http://localhost:3000")
		store, closer, err := BuildCredentialStore(ctx, cfg, slog.Default())
		require.NoError(t, err)
		assert.Nil(t, closer)
		require.IsType(t, &filestore.Store{}, store)

		require.NoError(t, store.Set(ctx, "token", "abc", domainauth.DefaultCookieOptions("localhost", time.Hour)))
		_, statErr := os.Stat(cfg.Store.File)
		assert.NoError(t, statErr)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		cfg := testConfig(t, "http://localhost:3000")
		cfg.Store.Kind = "etcd"
		_, _, err := BuildCredentialStore(ctx, cfg, slog.Default())
		assert.ErrorContains(t, err, "unsupported credential store")
	})
}

func TestBuildStack_WiresClientAndSession(t *testing.T) {
	var sawCredential string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCredential = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":1,"email":"ops@example.com","role":"admin"}}`))
	}))
	t.Cleanup(backend.Close)

	store := mockauth.NewMemoryStore()
	store.Seed("token", "opaque-credential")

	st, err := BuildStack(context.Background(), StackOptions{
		Config:     testConfig(t, backend.URL),
		Navigator:  &mockauth.RecordingNavigator{Path: "/dashboard"},
		HTTPClient: backend.Client(),
		Store:      store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, st.Close()) })

	require.NoError(t, st.Session.CheckAuth(context.Background(), false))
	state := st.Session.State()
	require.True(t, state.IsAuthenticated)
	assert.Equal(t, "ops@example.com", state.Identity.Email)
	assert.True(t, st.Session.HasRole(domainauth.RoleAdmin))
	assert.Equal(t, "Bearer opaque-credential", sawCredential)

	families, err := st.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "bizdesk_api_requests_total")
	assert.Contains(t, names, "bizdesk_session_transitions_total")
}

func TestBuildStack_RejectsBadBaseURL(t *testing.T) {
	cfg := testConfig(t, "ftp://files.example.com")
	_, err := BuildStack(context.Background(), StackOptions{Config: cfg, Store: mockauth.NewMemoryStore()})
	assert.ErrorContains(t, err, "create api client")
}

func TestInitLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := InitLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Same(t, logger, slog.Default())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_TIMEOUT=7s\nCREDENTIAL_STORE=memory\n"), 0o600))
	t.Chdir(dir)
	// godotenv does not override variables that are already set.
	t.Setenv("CREDENTIAL_NAME", "access")
	for _, k := range []string{"API_TIMEOUT", "CREDENTIAL_STORE"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.API.Timeout)
	assert.Equal(t, config.StoreMemory, cfg.Store.Kind)
	assert.Equal(t, "access", cfg.Store.CredentialName)
}
