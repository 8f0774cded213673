package jwtware_test

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/quillhub/blog-auth"
	"github.com/quillhub/blog-auth/middleware/jwtware"
)

var signingKey = []byte("jwtware-test-signing-key")

type failingStore struct{}

func (failingStore) FindByUsername(context.Context, string) (*auth.User, error) {
	return nil, stderrors.New("connection refused")
}

func (failingStore) FindByID(context.Context, int64) (*auth.User, error) {
	return nil, stderrors.New("connection refused")
}

type fixture struct {
	store   *auth.MemoryIdentityStore
	tokens  *auth.TokenService
	clock   time.Time
	rejects []string
}

func newFixture() *fixture {
	f := &fixture{
		store: auth.NewMemoryIdentityStore(),
		clock: time.Now(),
	}
	f.store.Put(auth.User{ID: 7, Username: "alice", Enabled: true, Authorities: auth.AuthorityUser})
	f.tokens = auth.NewTokenService(signingKey, time.Hour, "quillhub",
		auth.WithTokenClock(func() time.Time { return f.clock }))
	return f
}

func (f *fixture) app(store auth.IdentityStore, extra ...fiber.Handler) *fiber.App {
	resolver := auth.NewIdentityResolver(store, f.tokens, nil)

	app := fiber.New()
	app.Use(jwtware.New(jwtware.Config{
		Resolver: resolver,
		OnReject: func(reason string) { f.rejects = append(f.rejects, reason) },
	}))

	handlers := append(extra, func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromContext(c.UserContext())
		if !ok {
			return c.SendString("anonymous")
		}
		claims, _ := auth.GetClaims(c.UserContext())
		local, _ := c.Locals("identity").(auth.Identity)
		return c.JSON(fiber.Map{
			"username": identity.Username,
			"uid":      claims.IdentityID(),
			"local":    local.Username,
		})
	})
	app.Get("/", handlers...)
	return app
}

func (f *fixture) token(t *testing.T, subject string, uid int64) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(subject, uid, f.clock)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, app *fiber.App, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestJWTMiddleware_NoCredentialPassesThrough(t *testing.T) {
	f := newFixture()
	app := f.app(f.store)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer", "Bearer   "} {
		status, body := call(t, app, header)
		assert.Equal(t, http.StatusOK, status, header)
		assert.Equal(t, "anonymous", body, header)
	}
	assert.Empty(t, f.rejects)
}

func TestJWTMiddleware_BindsIdentity(t *testing.T) {
	f := newFixture()
	app := f.app(f.store)

	status, body := call(t, app, "Bearer "+f.token(t, "alice", 7))
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"username":"alice","uid":7,"local":"alice"}`, body)

	// scheme matching is case insensitive
	status, _ = call(t, app, "bearer "+f.token(t, "alice", 7))
	assert.Equal(t, http.StatusOK, status)
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	f := newFixture()

	expired := f.token(t, "alice", 7)
	f.clock = f.clock.Add(2 * time.Hour)

	tests := []struct {
		name       string
		store      auth.IdentityStore
		header     string
		wantStatus int
		wantBody   string
		wantReason string
	}{
		{
			name:       "malformed",
			store:      f.store,
			header:     "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"error","message":"token is malformed"}`,
			wantReason: auth.TextCodeTokenMalformed,
		},
		{
			name:       "expired",
			store:      f.store,
			header:     "Bearer " + expired,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"error","message":"token is expired"}`,
			wantReason: auth.TextCodeTokenExpired,
		},
		{
			name:       "unknown subject",
			store:      f.store,
			header:     "Bearer " + f.token(t, "ghost", 99),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"error","message":"user not found"}`,
			wantReason: auth.TextCodeIdentityNotFound,
		},
		{
			name:       "stale uid",
			store:      f.store,
			header:     "Bearer " + f.token(t, "alice", 3),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"error","message":"token identity mismatch"}`,
			wantReason: auth.TextCodeIdentityMismatch,
		},
		{
			name:       "store failure",
			store:      failingStore{},
			header:     "Bearer " + f.token(t, "alice", 7),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"status":"error","message":"Internal server error"}`,
			wantReason: auth.TextCodeInternalAuthFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.rejects = nil
			status, body := call(t, f.app(tt.store), tt.header)
			assert.Equal(t, tt.wantStatus, status)
			assert.JSONEq(t, tt.wantBody, body)
			assert.Equal(t, []string{tt.wantReason}, f.rejects)
		})
	}
}

func TestJWTMiddleware_ValidationListener(t *testing.T) {
	f := newFixture()
	resolver := auth.NewIdentityResolver(f.store, f.tokens, nil)

	var seen string
	app := fiber.New()
	app.Use(jwtware.New(jwtware.Config{
		Resolver: resolver,
		ValidationListeners: []jwtware.ValidationListener{
			func(c *fiber.Ctx, identity auth.Identity, claims *auth.JWTClaims) error {
				seen = identity.Username
				return auth.ErrForbidden
			},
		},
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	status, body := call(t, app, "Bearer "+f.token(t, "alice", 7))
	assert.Equal(t, "alice", seen)
	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, `{"error":"Forbidden","message":"access denied"}`, body)
}

func TestRequireAuthority(t *testing.T) {
	f := newFixture()
	f.store.Put(auth.User{ID: 1, Username: "root", Enabled: true, Authorities: "ROLE_USER,ROLE_ADMIN"})

	var reasons []string
	app := f.app(f.store, jwtware.RequireAuthority(auth.AuthorityAdmin, func(r string) { reasons = append(reasons, r) }))

	status, _ := call(t, app, "Bearer "+f.token(t, "root", 1))
	assert.Equal(t, http.StatusOK, status)

	status, body := call(t, app, "Bearer "+f.token(t, "alice", 7))
	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, `{"error":"Forbidden","message":"access denied"}`, body)

	status, _ = call(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Equal(t, []string{auth.TextCodeForbidden, auth.TextCodeAuthenticationRequired}, reasons)
}

func TestRequireIdentity(t *testing.T) {
	f := newFixture()
	app := f.app(f.store, jwtware.RequireIdentity())

	status, body := call(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"status":"error","message":"authentication required"}`, body)

	status, _ = call(t, app, "Bearer "+f.token(t, "alice", 7))
	assert.Equal(t, http.StatusOK, status)
}

func TestTokenFromHeaderValue(t *testing.T) {
	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Bearer  abc ", "abc", false},
		{"Bearer", "", true},
		{"Bearerabc", "", true},
		{"Token abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := jwtware.TokenFromHeaderValue(tt.value, "Bearer")
		if tt.wantErr {
			assert.ErrorIs(t, err, jwtware.ErrJWTMissing, tt.value)
			continue
		}
		assert.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}
}

func TestGetExtractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, query:token, cookie:jwt, bogus")
	assert.Len(t, extractors, 3)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		raw, err := jwtware.ExtractRawToken(c, extractors)
		if err != nil {
			return c.SendString("none")
		}
		return c.SendString(raw)
	})

	req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "from-query", string(body))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "from-cookie", string(body))
}

func TestGetDefaultConfigRequiresResolver(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })
	assert.Panics(t, func() {
		jwtware.GetDefaultConfig(jwtware.Config{Resolver: auth.NewIdentityResolver(auth.NewMemoryIdentityStore(), nil, nil)})
	})
}
