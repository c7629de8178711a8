package config

import "time"

// CacheConfig controls the Redis response cache in front of the blog list.
// It is off unless CACHE_ENABLED=true and Redis is reachable.
type CacheConfig struct {
    Enabled      bool          `env:"CACHE_ENABLED"`
    TTL          time.Duration `env:"CACHE_TTL" envDefault:"30s"`
    KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" envDefault:"path_query"` // path | path_query
    Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache"`
    MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"` // larger responses are not stored
}
