package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func doPing(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitEnforcesBurst(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.001, 2))

	// burst of 2 with a near-zero refill: two through, third rejected
	assert.Equal(t, http.StatusOK, doPing(r, "10.1.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, doPing(r, "10.1.0.1:1000").Code)

	w := doPing(r, "10.1.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
}

func TestRateLimitIsPerClient(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.001, 1))

	assert.Equal(t, http.StatusOK, doPing(r, "10.2.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, doPing(r, "10.2.0.1:1000").Code)

	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, doPing(r, "10.2.0.2:1000").Code)
}

func TestRateLimitKeysOnUsername(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v := fakeValidator{users: map[string]string{"tok": "admin"}}
	r.GET("/ping", OptionalSession(v), RateLimitMiddleware(0.001, 1), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	authedPing := func(remoteAddr string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remoteAddr
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
		r.ServeHTTP(w, req)
		return w
	}

	// the same user shares one bucket across client addresses
	assert.Equal(t, http.StatusOK, authedPing("10.5.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, authedPing("10.5.0.2:1000").Code)

	// an anonymous request from one of those addresses has its own bucket
	assert.Equal(t, http.StatusOK, doPing(r, "10.5.0.2:1000").Code)
}

func TestRedisRateLimitEnforcesWindow(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	// rps*window=0 plus burst 2 allows two per window
	r := limitedRouter(RedisRateLimitMiddleware(client, 0, 2, time.Minute))

	assert.Equal(t, http.StatusOK, doPing(r, "10.3.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, doPing(r, "10.3.0.1:1000").Code)

	w := doPing(r, "10.3.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRedisRateLimitNilClientFallsBack(t *testing.T) {
	r := limitedRouter(RedisRateLimitMiddleware(nil, 0.001, 1, time.Minute))

	assert.Equal(t, http.StatusOK, doPing(r, "10.4.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, doPing(r, "10.4.0.1:1000").Code)
}
