package accountstatus_test

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
	"github.com/quillhub/blog-auth/middleware/accountstatus"
	"github.com/quillhub/blog-auth/middleware/jwtware"
)

const disabledBody = `{"error":"Account disabled","message":"Your account has been banned."}`

type flakyStore struct {
	*auth.MemoryIdentityStore
	failByID bool
}

func (s *flakyStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.failByID {
		return nil, stderrors.New("connection reset")
	}
	return s.MemoryIdentityStore.FindByID(ctx, id)
}

type harness struct {
	app     *fiber.App
	store   *flakyStore
	tokens  *auth.TokenService
	rejects []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  &flakyStore{MemoryIdentityStore: auth.NewMemoryIdentityStore()},
		tokens: auth.NewTokenService([]byte("accountstatus-test-key"), time.Hour, "quillhub"),
	}
	h.store.Put(auth.User{ID: 7, Username: "alice", Enabled: true, Authorities: auth.AuthorityUser})

	resolver := auth.NewIdentityResolver(h.store, h.tokens, nil)

	h.app = fiber.New()
	h.app.Use(jwtware.New(jwtware.Config{Resolver: resolver}))
	h.app.Use(accountstatus.New(accountstatus.Config{
		Resolver: resolver,
		OnReject: func(reason string) { h.rejects = append(h.rejects, reason) },
	}))
	h.app.Post("/api/posts", func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromContext(c.UserContext())
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString("created by " + identity.Username)
	})

	return h
}

func (h *harness) post(t *testing.T, authorization string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (h *harness) bearer(t *testing.T) string {
	t.Helper()
	token, _, err := h.tokens.Issue("alice", 7, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAccountStatus_DisableTakesEffectImmediately(t *testing.T) {
	h := newHarness(t)
	bearer := h.bearer(t)

	status, body := h.post(t, bearer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "created by alice", body)

	_, err := h.store.SetEnabled(context.Background(), 7, false)
	require.NoError(t, err)

	// same token, still unexpired
	status, body = h.post(t, bearer)
	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, disabledBody, body)
	assert.Equal(t, []string{auth.TextCodeAccountDisabled}, h.rejects)

	_, err = h.store.SetEnabled(context.Background(), 7, true)
	require.NoError(t, err)

	status, _ = h.post(t, bearer)
	assert.Equal(t, http.StatusOK, status)
}

func TestAccountStatus_AnonymousPassesThrough(t *testing.T) {
	h := newHarness(t)

	status, body := h.post(t, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)
	assert.Empty(t, h.rejects)
}

func TestAccountStatus_StoreFailure(t *testing.T) {
	h := newHarness(t)
	bearer := h.bearer(t)
	h.store.failByID = true

	status, body := h.post(t, bearer)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, body)
	assert.Equal(t, []string{auth.TextCodeInternalAuthFailure}, h.rejects)
}

func TestAccountStatus_Filter(t *testing.T) {
	store := auth.NewMemoryIdentityStore()
	store.Put(auth.User{ID: 7, Username: "alice", Enabled: false})
	tokens := auth.NewTokenService([]byte("accountstatus-test-key"), time.Hour, "quillhub")
	resolver := auth.NewIdentityResolver(store, tokens, nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(auth.WithIdentity(c.UserContext(), auth.Identity{ID: 7, Username: "alice"}))
		return c.Next()
	})
	app.Use(accountstatus.New(accountstatus.Config{
		Resolver: resolver,
		Filter:   func(c *fiber.Ctx) bool { return c.Path() == "/health" },
	}))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/private", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/private", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAccountStatus_RequiresResolver(t *testing.T) {
	assert.Panics(t, func() { accountstatus.New(accountstatus.Config{}) })
}
