package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"pickup-push-backend/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(0.001), 2, func(c *gin.Context) string { return c.GetHeader("X-Key") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	a := http.Header{"X-Key": []string{"a"}}
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", a).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", a).Code)
	limited := perform(r, http.MethodGet, "/", a)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// Other keys have their own bucket.
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", http.Header{"X-Key": []string{"b"}}).Code)
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Set(CtxUserIDKey, u)
		}
	})
	r.Use(Cache(store, time.Minute))
	r.GET("/key", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls, "user": c.GetString(CtxUserIDKey)})
	})
	r.GET("/fail", func(c *gin.Context) {
		calls++
		c.Status(http.StatusInternalServerError)
	})

	first := perform(r, http.MethodGet, "/key", http.Header{"X-User": []string{"u1"}})
	second := perform(r, http.MethodGet, "/key", http.Header{"X-User": []string{"u1"}})
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	other := perform(r, http.MethodGet, "/key", http.Header{"X-User": []string{"u2"}})
	assert.Contains(t, other.Body.String(), `"user":"u2"`)
	assert.Equal(t, 2, calls)

	perform(r, http.MethodGet, "/fail", nil)
	perform(r, http.MethodGet, "/fail", nil)
	assert.Equal(t, 4, calls)
}

func TestAuth(t *testing.T) {
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: "s3cret"})
	require.NoError(t, err)
	userToken, err := svc.GenerateAccessToken("u1", auth.RoleUser)
	require.NoError(t, err)
	adminToken, err := svc.GenerateAccessToken("boss", auth.RoleAdmin)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Auth(svc), func(c *gin.Context) {
		id, ok := auth.UserIDFromContext(c.Request.Context())
		assert.True(t, ok)
		c.String(http.StatusOK, c.GetString(CtxUserIDKey)+"/"+id)
	})
	r.GET("/admin", Auth(svc), RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	bearer := func(tok string) http.Header { return http.Header{"Authorization": []string{"Bearer " + tok}} }

	w := perform(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", bearer("garbage")).Code)

	w = perform(r, http.MethodGet, "/me", bearer(userToken))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1/u1", w.Body.String())

	w = perform(r, http.MethodGet, "/admin", bearer(userToken))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/admin", bearer(adminToken)).Code)

	// Query tokens only count on websocket upgrades.
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me?access_token="+userToken, nil).Code)
	w = perform(r, http.MethodGet, "/me?access_token="+userToken, http.Header{"Upgrade": []string{"websocket"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthWithoutService(t *testing.T) {
	r := gin.New()
	r.GET("/", Auth(nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/", nil).Code)
}
