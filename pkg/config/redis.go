package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis attempt ledger configuration
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"login_guard:attempts"`
	Retention string `env:"REDIS_RETENTION" env-default:"P2D"`
}

// ToOptions converts the config to go-redis client options
func (r RedisConfig) ToOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

// validate requires the retention to outlast longestSpan, since the Redis
// ledger trims attempts and expires keys after the retention.
func (r RedisConfig) validate(longestSpan time.Duration) ValidationErrors {
	retention, _ := ParseDuration(r.Retention)
	return CollectErrors(
		RequireNonEmpty("redis.addr", r.Addr),
		RequireNonNegative("redis.db", r.DB),
		RequireLongerThan("redis.retention", retention, longestSpan),
	)
}
