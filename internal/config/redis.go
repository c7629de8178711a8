package config

import (
    "context"
    "crypto/tls"
    "log"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server behind the rate limiter, the token
// revocation set and the blog response cache.  REDIS_URL wins over the
// individual fields; REDIS_HOST plus REDIS_PORT win over REDIS_ADDR.
type RedisConfig struct {
    Disabled bool   `env:"REDIS_DISABLED"`
    URL      string `env:"REDIS_URL"`
    Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
    Host     string `env:"REDIS_HOST"`
    Port     string `env:"REDIS_PORT"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB"`
    TLS      bool   `env:"REDIS_TLS"`
}

func (rc RedisConfig) options() (*redis.Options, error) {
    if rc.URL != "" {
        return redis.ParseURL(rc.URL)
    }
    addr := rc.Addr
    if rc.Host != "" && rc.Port != "" {
        addr = rc.Host + ":" + rc.Port
    }
    opts := &redis.Options{Addr: addr, Password: rc.Password, DB: rc.DB}
    if rc.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects and pings Redis.  It returns nil when Redis is
// disabled, misconfigured or unreachable; every caller has an in-process
// fallback.
func NewRedisClient(rc RedisConfig) *redis.Client {
    if rc.Disabled {
        return nil
    }
    opts, err := rc.options()
    if err != nil {
        log.Printf("redis: invalid REDIS_URL: %v", err)
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Printf("redis: %s unreachable, continuing without it: %v", opts.Addr, err)
        _ = client.Close()
        return nil
    }
    return client
}
