package middleware

import (
    "bytes"
    "context"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/blog-platform/internal/config"
)

// cachedResponse is one stored read.
type cachedResponse struct {
    Status int         `json:"status"`
    Header http.Header `json:"header"`
    Body   []byte      `json:"body"`
}

// bodyRecorder tees the response body into a buffer.  Once the body grows
// past limit the buffer is dropped and the response is not cached.
type bodyRecorder struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (r *bodyRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if !r.overflow {
        if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
            r.overflow = true
            r.buf.Reset()
        } else {
            r.buf.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// cacheKey hashes the method and concrete path (plus the query string for
// the path_query strategy) so /getbyid/1 and /getbyid/2 never collide.
func cacheKey(cfg config.CacheConfig, r *http.Request) string {
    target := r.URL.Path
    if cfg.KeyStrategy != "path" && r.URL.RawQuery != "" {
        target += "?" + r.URL.RawQuery
    }
    sum := sha256.Sum256([]byte(r.Method + " " + target))
    return cfg.Prefix + ":" + hex.EncodeToString(sum[:16])
}

func replay(c echo.Context, cr cachedResponse) error {
    h := c.Response().Header()
    for k, vals := range cr.Header {
        if k == echo.HeaderContentLength {
            continue
        }
        h[k] = append([]string(nil), vals...)
    }
    h.Set("X-Cache", "HIT")
    c.Response().WriteHeader(cr.Status)
    _, err := c.Response().Write(cr.Body)
    return err
}

// NewRedisCache serves repeated GETs from Redis.  Only 200 responses within
// MaxBodyBytes are stored; Redis errors fall through to the handler.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            if req.Method != http.MethodGet && req.Method != http.MethodHead {
                return next(c)
            }
            key := cacheKey(cfg, req)

            if raw, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
                var cr cachedResponse
                if json.Unmarshal(raw, &cr) == nil && cr.Status != 0 {
                    return replay(c, cr)
                }
            } else if err != redis.Nil {
                c.Logger().Warnf("[cache] get %s: %v", key, err)
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.overflow {
                return nil
            }
            payload, err := json.Marshal(cachedResponse{
                Status: rec.status,
                Header: c.Response().Header().Clone(),
                Body:   rec.buf.Bytes(),
            })
            if err != nil {
                return nil
            }
            // the client already has its response; do not tie the write to it
            sctx, cancel := context.WithTimeout(context.Background(), time.Second)
            defer cancel()
            if err := rdb.Set(sctx, key, payload, ttl).Err(); err != nil {
                c.Logger().Warnf("[cache] set %s: %v", key, err)
            }
            return nil
        }
    }
}

// NewCachePurge drops every cached response after a successful write so
// lists never serve data older than the last mutation.
func NewCachePurge(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := next(c)
            switch c.Request().Method {
            case http.MethodGet, http.MethodHead, http.MethodOptions:
                return err
            }
            if err == nil && c.Response().Status < http.StatusBadRequest {
                if perr := PurgeCache(c.Request().Context(), rdb, cfg.Prefix); perr != nil {
                    c.Logger().Warnf("[cache] purge failed: %v", perr)
                }
            }
            return err
        }
    }
}

// PurgeCache deletes all keys under prefix.  SCAN keeps Redis responsive
// where KEYS would block it.
func PurgeCache(ctx context.Context, rdb *redis.Client, prefix string) error {
    iter := rdb.Scan(ctx, 0, prefix+":*", 100).Iterator()
    var batch []string
    flush := func() error {
        if len(batch) == 0 {
            return nil
        }
        err := rdb.Del(ctx, batch...).Err()
        batch = batch[:0]
        return err
    }
    for iter.Next(ctx) {
        if batch = append(batch, iter.Val()); len(batch) == 100 {
            if err := flush(); err != nil {
                return err
            }
        }
    }
    if err := iter.Err(); err != nil {
        return err
    }
    return flush()
}
