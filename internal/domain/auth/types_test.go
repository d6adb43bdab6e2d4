package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Identity
	}{
		{
			name: "single role",
			raw:  `{"email":"a@b.com","role":"admin"}`,
			want: Identity{Email: "a@b.com", Role: RoleAdmin, Roles: []Role{RoleAdmin}},
		},
		{
			name: "roles array and userId",
			raw:  `{"userId":"u-1","email":"a@b.com","roles":["manager","user"]}`,
			want: Identity{ID: "u-1", Email: "a@b.com", Role: RoleManager, Roles: []Role{RoleManager, RoleUser}},
		},
		{
			name: "numeric id and display name",
			raw:  `{"id":42,"email":"x@y.z","displayName":"Ada"}`,
			want: Identity{ID: "42", Email: "x@y.z", Name: "Ada", Roles: []Role{}},
		},
		{
			name: "role and roles merged without duplicates",
			raw:  `{"_id":"m1","email":"q@r.s","name":"Q","role":"admin","roles":["admin","accountant"]}`,
			want: Identity{ID: "m1", Email: "q@r.s", Name: "Q", Role: RoleAdmin, Roles: []Role{RoleAdmin, RoleAccountant}},
		},
		{
			name: "null role fields",
			raw:  `{"id":"1","role":null,"roles":null}`,
			want: Identity{ID: "1", Roles: []Role{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotNil(t, got.Roles)
		})
	}
}

func TestParseIdentity_Malformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`null`,
		`"user"`,
		`[]`,
		`{}`,
		`{"email":"a@b.com","role":7}`,
		`{"email":"a@b.com","roles":"admin"}`,
		`{"id":true,"email":"a@b.com"}`,
		`{"email":12}`,
	} {
		_, err := ParseIdentity(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrMalformedIdentity), raw)
	}
}

func TestSessionState_Invariants(t *testing.T) {
	assert.Equal(t, StatusUnknown, UnknownState().Status())
	assert.True(t, UnknownState().Valid())

	anon := AnonymousState()
	assert.Equal(t, StatusAnonymous, anon.Status())
	assert.True(t, anon.Valid())
	assert.False(t, anon.HasRole(RoleAdmin))

	id := Identity{Email: "a@b.com", Role: RoleAdmin, Roles: []Role{RoleAdmin}}
	st := AuthenticatedState(id)
	assert.Equal(t, StatusAuthenticated, st.Status())
	assert.True(t, st.Valid())
	assert.True(t, st.HasRole(RoleAdmin))
	assert.True(t, st.HasRole(RoleAdmin))
	assert.False(t, st.HasRole(RoleUser))

	assert.False(t, SessionState{IsAuthenticated: true}.Valid())
	assert.False(t, SessionState{Identity: &id}.Valid())
}

func TestSessionState_CloneDoesNotAlias(t *testing.T) {
	st := AuthenticatedState(Identity{Email: "a@b.com", Roles: []Role{RoleUser}})
	cp := st.Clone()
	cp.Identity.Roles[0] = RoleAdmin
	cp.Identity.Email = "changed"

	assert.Equal(t, RoleUser, st.Identity.Roles[0])
	assert.Equal(t, "a@b.com", st.Identity.Email)
}

func TestParseCredential(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	c := ParseCredential(signed)
	assert.Equal(t, signed, c.Value)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp.Add(time.Second)))

	tok := c.Token()
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, signed, tok.AccessToken)

	opaque := ParseCredential("opaque-token")
	assert.True(t, opaque.ExpiresAt.IsZero())
	assert.False(t, opaque.Expired(time.Now().Add(100*time.Hour)))
}

func TestDefaultCookieOptions(t *testing.T) {
	tests := []struct {
		host   string
		secure bool
	}{
		{"localhost", false},
		{"localhost:3000", false},
		{"127.0.0.1:8080", false},
		{"[::1]:8080", false},
		{"app.localhost", false},
		{"api.example.com", true},
		{"10.0.0.5", true},
	}
	for _, tt := range tests {
		opts := DefaultCookieOptions(tt.host, CredentialMaxAge)
		assert.Equal(t, tt.secure, opts.Secure, tt.host)
		assert.Equal(t, "/", opts.Path)
		assert.Equal(t, http.SameSiteStrictMode, opts.SameSite)
		assert.Equal(t, 24*time.Hour, opts.MaxAge)
	}
}
