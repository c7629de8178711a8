package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/blog-platform/internal/config"
	"github.com/iliyamo/blog-platform/internal/utils"
)

func protectedServer(tokens *utils.TokenService, rev Revoker) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"userId": id})
	}, JWTAuth(tokens, rev))
	return e
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthChannels(t *testing.T) {
	tokens := utils.NewTokenService("secret", time.Hour)
	e := protectedServer(tokens, NewMemoryRevoker())
	tok, err := tokens.Issue(9, "a@x.com")
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		rec := do(e, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"No token provided or invalid format."}`, rec.Body.String())
	})
	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := do(e, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "No token provided")
	})
	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := do(e, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
	})
	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Raw)
		rec := do(e, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"userId":9}`, rec.Body.String())
	})
	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tok.Raw})
		rec := do(e, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("header wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tok.Raw})
		rec := do(e, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJWTAuthRejectsRevoked(t *testing.T) {
	tokens := utils.NewTokenService("secret", time.Hour)
	rev := NewMemoryRevoker()
	e := protectedServer(tokens, rev)
	tok, err := tokens.Issue(3, "")
	require.NoError(t, err)

	require.NoError(t, rev.Revoke(context.Background(), tok.ID, tok.Exp))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Raw)
	rec := do(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
}

func TestMemoryRevokerForgetsExpired(t *testing.T) {
	rev := NewMemoryRevoker()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rev.Revoke(ctx, "a", now.Add(time.Minute)))
	require.NoError(t, rev.Revoke(ctx, "old", now.Add(-time.Minute)))
	hit, _ := rev.IsRevoked(ctx, "a")
	assert.True(t, hit)
	hit, _ = rev.IsRevoked(ctx, "old")
	assert.False(t, hit)

	rev.now = func() time.Time { return now.Add(2 * time.Minute) }
	hit, _ = rev.IsRevoked(ctx, "a")
	assert.False(t, hit)
	require.NoError(t, rev.Revoke(ctx, "b", now.Add(time.Hour)))
	assert.NotContains(t, rev.entries, "a")
}

func TestMemoryRateLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewRateLimiter(cfg, nil))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(e, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	rec := do(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests")
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, http.StatusOK, do(e, other).Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiter(config.RateLimitConfig{Enabled: false}, nil))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(e, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/private/blog/getall", nil)
	req.RemoteAddr = "1.2.3.4:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/private/blog/getall")
	c.Set(ctxUserID, uint64(7))

	cases := map[string]string{
		"ip":         "rl:ip:1.2.3.4",
		"user":       "rl:user:7",
		"ip_route":   "rl:ip:1.2.3.4:route:GET /api/private/blog/getall",
		"":           "rl:ip:1.2.3.4:user:7:route:GET /api/private/blog/getall",
	}
	for strategy, want := range cases {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
		assert.Equal(t, want, buildRateKey(cfg, c), strategy)
	}

	anon := e.NewContext(req, httptest.NewRecorder())
	anon.SetPath("/api/private/blog/getall")
	user := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}
	assert.Equal(t, "rl:ip:1.2.3.4", buildRateKey(user, anon))
	mixed := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:1.2.3.4:route:GET /api/private/blog/getall", buildRateKey(mixed, anon))
}

func TestUserRateLimiterSeparatesClients(t *testing.T) {
	tokens := utils.NewTokenService("secret", time.Hour)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewPublicRateLimiter(cfg, nil, "/api/private"))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/api/private/me", ok, JWTAuth(tokens, NewMemoryRevoker()), NewRateLimiter(cfg, nil))
	e.GET("/public", ok)

	call := func(path, ip string, uid uint64) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":1000"
		if uid != 0 {
			tok, err := tokens.Issue(uid, "u@x.com")
			require.NoError(t, err)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Raw)
		}
		return do(e, req).Code
	}

	assert.Equal(t, http.StatusOK, call("/api/private/me", "10.0.0.1", 1))
	assert.Equal(t, http.StatusOK, call("/api/private/me", "10.0.0.2", 2))
	assert.Equal(t, http.StatusTooManyRequests, call("/api/private/me", "10.0.0.3", 1))

	// anonymous requests fall back to per-IP buckets
	assert.Equal(t, http.StatusOK, call("/public", "10.0.0.1", 0))
	assert.Equal(t, http.StatusOK, call("/public", "10.0.0.2", 0))
	assert.Equal(t, http.StatusTooManyRequests, call("/public", "10.0.0.1", 0))
}

func TestCacheKeyUsesConcretePath(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "path_query"}
	key := func(target string) string {
		return cacheKey(cfg, httptest.NewRequest(http.MethodGet, target, nil))
	}
	assert.NotEqual(t, key("/api/private/blog/getbyid/1"), key("/api/private/blog/getbyid/2"))
	assert.Equal(t, key("/x?a=1"), key("/x?a=1"))
	assert.NotEqual(t, key("/x?a=1"), key("/x?a=2"))

	cfg.KeyStrategy = "path"
	assert.Equal(t, key("/x?a=1"), key("/x?a=2"))
	assert.Regexp(t, `^cache:[0-9a-f]{32}$`, key("/x"))
}

func TestBodyRecorderOverflow(t *testing.T) {
	rec := &bodyRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, limit: 4}
	_, _ = rec.Write([]byte("ab"))
	_, _ = rec.Write([]byte("cd"))
	assert.False(t, rec.overflow)
	assert.Equal(t, "abcd", rec.buf.String())

	_, _ = rec.Write([]byte("e"))
	assert.True(t, rec.overflow)
	assert.Zero(t, rec.buf.Len())
}

func TestReplayRestoresResponse(t *testing.T) {
	e := echo.New()
	w := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), w)
	cr := cachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}, "Content-Length": {"99"}},
		Body:   []byte(`{"a":1}`),
	}
	require.NoError(t, replay(c, cr))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Equal(t, `{"a":1}`, w.Body.String())
}

// testRedis connects to REDIS_TEST_ADDR when set.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	return rdb
}

func TestRedisRevoker(t *testing.T) {
	rdb := testRedis(t)
	rev := NewRedisRevoker(rdb)
	ctx := context.Background()

	require.NoError(t, rev.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	hit, err := rev.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = rev.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, hit)

	ttl, err := rdb.TTL(ctx, "revoked:jti-1").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisCacheHitAndPurge(t *testing.T) {
	rdb := testRedis(t)
	cfg := config.CacheConfig{
		Enabled:      true,
		TTL:          time.Minute,
		KeyStrategy:  "path_query",
		Prefix:       "cache-test",
		MaxBodyBytes: 1 << 20,
	}
	calls := 0
	e := echo.New()
	e.GET("/list", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, NewRedisCache(cfg, rdb))
	e.POST("/write", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, NewCachePurge(cfg, rdb))

	first := do(e, httptest.NewRequest(http.MethodGet, "/list", nil))
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, httptest.NewRequest(http.MethodGet, "/list", nil))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	assert.Equal(t, http.StatusCreated, do(e, httptest.NewRequest(http.MethodPost, "/write", nil)).Code)
	third := do(e, httptest.NewRequest(http.MethodGet, "/list", nil))
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}
