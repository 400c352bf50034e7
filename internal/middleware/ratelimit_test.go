package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitedRouter(counters services.CounterStore, limit int, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RateLimit(counters, "search", limit, window), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func TestRateLimitRejectsPastCeiling(t *testing.T) {
	store := services.NewMemoryCounterStore()
	r := newRateLimitedRouter(store, 3, time.Minute)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.Contains(t, w.Body.String(), "retry_after")
}

func TestRateLimitResetsNextWindow(t *testing.T) {
	store := services.NewMemoryCounterStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	r := newRateLimitedRouter(store, 1, time.Minute)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	now = now.Add(61 * time.Second)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitSeparatesIdentities(t *testing.T) {
	store := services.NewMemoryCounterStore()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping",
		func(c *gin.Context) {
			c.Set("user_id", c.GetHeader("X-User-ID"))
		},
		RateLimit(store, "billing", 1, time.Minute),
		func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		},
	)

	reqFor := func(userID string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-User-ID", userID)
		return req
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, reqFor("u1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, reqFor("u1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different user gets a fresh window
	w = httptest.NewRecorder()
	r.ServeHTTP(w, reqFor("u2"))
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingCounterStore struct{}

func (failingCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("counter store down")
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	r := newRateLimitedRouter(failingCounterStore{}, 1, time.Minute)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
