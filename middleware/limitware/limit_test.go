package limitware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/quillhub/blog-auth"
	"github.com/quillhub/blog-auth/middleware/limitware"
	"github.com/quillhub/blog-auth/ratelimit"
)

const limitedBody = `{"error":"Too Many Requests","message":"Slow down! Please wait a minute."}`

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newApp(cfg limitware.Config) *fiber.App {
	app := fiber.New()
	app.Use(limitware.New(cfg))
	handler := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/api/posts", handler)
	app.Post("/api/posts", handler)
	return app
}

func send(t *testing.T, app *fiber.App, method, authorization string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/api/posts", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestLimit_RejectsAfterLimit(t *testing.T) {
	clk := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(ratelimit.Config{Clock: clk.Now})

	rejected := 0
	app := newApp(limitware.Config{Limiter: limiter, OnReject: func() { rejected++ }})

	for i := 0; i < ratelimit.DefaultLimit; i++ {
		resp := send(t, app, http.MethodPost, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	clk.now = clk.now.Add(15 * time.Second)
	resp := send(t, app, http.MethodPost, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "45", resp.Header.Get(fiber.HeaderRetryAfter))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, limitedBody, string(body))
	assert.Equal(t, 1, rejected)

	// reads are never throttled
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodGet, "").StatusCode)

	clk.now = clk.now.Add(46 * time.Second)
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "").StatusCode)
}

func TestLimit_KeysBySubject(t *testing.T) {
	tokens := auth.NewTokenService([]byte("limitware-test-signing-key"), time.Hour, "quillhub")
	limiter := ratelimit.New(ratelimit.Config{Limit: 2})

	app := newApp(limitware.Config{Limiter: limiter, Tokens: tokens})

	alice, _, err := tokens.Issue("alice", 7, time.Now())
	require.NoError(t, err)
	bob, _, err := tokens.Issue("bob", 8, time.Now())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "Bearer "+alice).StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(t, app, http.MethodPost, "Bearer "+alice).StatusCode)

	// same address, different subject
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "Bearer "+bob).StatusCode)
	// an invalid token falls back to the address
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "Bearer garbage").StatusCode)
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, send(t, app, http.MethodPost, "").StatusCode)

	assert.Equal(t, 3, limiter.Len())
}

func TestLimit_CustomMethodsAndKey(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Limit: 1})

	var keys []string
	app := newApp(limitware.Config{
		Limiter: limiter,
		Methods: []string{"get"},
		KeyFunc: func(c *fiber.Ctx) string {
			k := c.Get("X-Client")
			keys = append(keys, k)
			return k
		},
	})

	req := func(client string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		r.Header.Set("X-Client", client)
		resp, err := app.Test(r)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, req("a"))
	assert.Equal(t, http.StatusTooManyRequests, req("a"))
	assert.Equal(t, http.StatusOK, req("b"))
	assert.Equal(t, http.StatusOK, send(t, app, http.MethodPost, "").StatusCode)
	assert.Equal(t, []string{"a", "a", "b"}, keys)
}

func TestLimit_RequiresLimiter(t *testing.T) {
	assert.Panics(t, func() { limitware.New(limitware.Config{}) })
}
