package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"parking_backend/internal/config"
	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticVerifier map[string]*service.Identity

func (v staticVerifier) VerifyToken(_ context.Context, token string) (*service.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, service.ErrInvalidCredential
}

func newAuthRouter() *gin.Engine {
	m := NewAuthMiddleware(staticVerifier{
		"user-token":  {UserID: "u1", Role: domain.RoleUser},
		"admin-token": {UserID: "a1", Role: domain.RoleAdmin},
	})
	r := gin.New()
	r.GET("/me", m.Authenticate(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})
	r.GET("/admin", m.Authenticate(), m.AuthorizeRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/no-auth", m.AuthorizeRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := newAuthRouter()

	w := get(r, "/me", "Bearer user-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/me", "bearer user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Basic user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer nope").Code)
}

func TestAuthorizeRole(t *testing.T) {
	r := newAuthRouter()
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", "Bearer admin-token").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", "Bearer user-token").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/no-auth", "").Code)
}

// fakeScripter answers the token bucket script with a fixed reply.
type fakeScripter struct {
	redis.Scripter
	reply []interface{}
	err   error
	calls int
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	f.calls++
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(f.reply)
	}
	return cmd
}

func newLimitedRouter(rdb redis.Scripter, enabled bool) *gin.Engine {
	cfg := config.RateLimitConfig{
		Enabled:        enabled,
		Capacity:       10,
		RefillTokens:   1,
		RefillInterval: 6 * time.Second,
		TTL:            10 * time.Minute,
		Prefix:         "rl",
	}
	r := gin.New()
	r.GET("/limited", RateLimit(cfg, rdb), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitAllowsAndDenies(t *testing.T) {
	allow := &fakeScripter{reply: []interface{}{int64(1), int64(9), int64(0)}}
	w := get(newLimitedRouter(allow, true), "/limited", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, allow.calls)

	deny := &fakeScripter{reply: []interface{}{int64(0), int64(0), int64(2500)}}
	w = get(newLimitedRouter(deny, true), "/limited", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	broken := &fakeScripter{err: errors.New("connection refused")}
	assert.Equal(t, http.StatusOK, get(newLimitedRouter(broken, true), "/limited", "").Code)

	unused := &fakeScripter{}
	assert.Equal(t, http.StatusOK, get(newLimitedRouter(unused, false), "/limited", "").Code)
	assert.Zero(t, unused.calls)
	assert.Equal(t, http.StatusOK, get(newLimitedRouter(nil, true), "/limited", "").Code)
}
