package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/iliyamo/blog-platform/internal/config"
)

const rateLimitMessage = "Too many requests, please try again later."

// bucketScript atomically refills and takes one token.
// KEYS[1] bucket; ARGV now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local now, cap, refill, interval, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(b[1]), tonumber(b[2])
if tokens == nil or ts == nil then
    tokens, ts = cap, now
end
local steps = math.floor(math.max(0, now - ts) / interval)
if steps > 0 then
    tokens = math.min(cap, tokens + steps * refill)
    ts = ts + steps * interval
end
local allowed, retry = 0, 0
if tokens > 0 then
    allowed, tokens = 1, tokens - 1
else
    retry = math.max(0, interval - (now - ts))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tokens, retry}
`)

type bucketResult struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

func takeToken(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketResult, error) {
    vals, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
        now.UnixMilli(),
        cfg.Capacity,
        cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(),
        int64(cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return bucketResult{}, err
    }
    if len(vals) != 3 {
        return bucketResult{}, fmt.Errorf("unexpected bucket reply %v", vals)
    }
    return bucketResult{
        Allowed:    vals[0] == 1,
        Remaining:  vals[1],
        RetryAfter: time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

func tooManyRequests(c echo.Context, cfg config.RateLimitConfig, retry time.Duration) error {
    secs := int(math.Ceil(retry.Seconds()))
    if secs < 0 {
        secs = 0
    }
    h := c.Response().Header()
    h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
    h.Set("Retry-After", strconv.Itoa(secs))
    return c.JSON(http.StatusTooManyRequests, echo.Map{"message": rateLimitMessage})
}

// NewRateLimiter picks the shared Redis token bucket when a client is
// available and echo's in-process limiter otherwise, both sized from the
// same settings.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if rdb == nil {
        return NewMemoryRateLimiter(cfg)
    }
    return NewTokenBucket(cfg, rdb)
}

// NewMemoryRateLimiter limits per key inside this process only.
func NewMemoryRateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
    store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
        Rate:      rate.Limit(cfg.PerSecond()),
        Burst:     cfg.Capacity,
        ExpiresIn: cfg.TTL,
    })
    return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
        Store: store,
        IdentifierExtractor: func(c echo.Context) (string, error) {
            return buildRateKey(cfg, c), nil
        },
        DenyHandler: func(c echo.Context, _ string, _ error) error {
            return tooManyRequests(c, cfg, cfg.RefillInterval)
        },
    })
}

// NewTokenBucket enforces the limit in Redis so every instance shares one
// budget per key.  Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            res, err := takeToken(c, rdb, cfg, key, time.Now())
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] %s: %v", key, err)
                }
                return next(c)
            }
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
            if !res.Allowed {
                return tooManyRequests(c, cfg, res.RetryAfter)
            }
            return next(c)
        }
    }
}

// NewPublicRateLimiter is the global limiter.  When keys depend on the
// session user, routes under privatePrefix are skipped here and limited
// behind JWTAuth instead, so unauthenticated requests never share a bucket.
func NewPublicRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, privatePrefix string) echo.MiddlewareFunc {
    limit := NewRateLimiter(cfg, rdb)
    if !cfg.KeysByUser() {
        return limit
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        limited := limit(next)
        return func(c echo.Context) error {
            if strings.HasPrefix(c.Request().URL.Path, privatePrefix+"/") {
                return next(c)
            }
            return limited(c)
        }
    }
}

// buildRateKey derives the bucket key.  Without a session user the user
// segment falls back to the client IP.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()
    uid := currentUserID(c)

    var b strings.Builder
    b.WriteString(cfg.Prefix)
    add := func(kind, v string) {
        b.WriteString(":" + kind + ":" + v)
    }
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        add("ip", ip)
    case "user":
        if uid != "" {
            add("user", uid)
        } else {
            add("ip", ip)
        }
    case "ip_route":
        add("ip", ip)
        add("route", route)
    default:
        add("ip", ip)
        if uid != "" {
            add("user", uid)
        }
        add("route", route)
    }
    return b.String()
}
