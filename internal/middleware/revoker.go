package middleware

import (
    "context"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"
)

// Revoker is the set of session token ids (jti) invalidated before their
// natural expiry, e.g. by logout.
type Revoker interface {
    Revoke(ctx context.Context, jti string, exp time.Time) error
    IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevoker keeps revoked ids as keys that expire together with the
// token, so the set never outgrows the live sessions.
type RedisRevoker struct {
    rdb    *redis.Client
    prefix string
    now    func() time.Time
}

func NewRedisRevoker(rdb *redis.Client) *RedisRevoker {
    return &RedisRevoker{rdb: rdb, prefix: "revoked", now: time.Now}
}

func (r *RedisRevoker) key(jti string) string { return r.prefix + ":" + jti }

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, exp time.Time) error {
    ttl := exp.Sub(r.now())
    if jti == "" || ttl <= 0 {
        return nil
    }
    return r.rdb.Set(ctx, r.key(jti), 1, ttl).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
    if jti == "" {
        return false, nil
    }
    n, err := r.rdb.Exists(ctx, r.key(jti)).Result()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// MemoryRevoker is the single-process fallback used when Redis is not
// configured.
type MemoryRevoker struct {
    mu      sync.Mutex
    entries map[string]time.Time
    now     func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
    return &MemoryRevoker{entries: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, exp time.Time) error {
    if jti == "" {
        return nil
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    for k, e := range m.entries {
        if !e.After(now) {
            delete(m.entries, k)
        }
    }
    if exp.After(now) {
        m.entries[jti] = exp
    }
    return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    exp, ok := m.entries[jti]
    return ok && exp.After(m.now()), nil
}
