package attempts

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RepositoryConfig contains configuration for creating an attempt ledger
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories (DBTX interface)
	DB DBTX
	// Redis is required for Redis repositories
	Redis redis.UniversalClient
	// RedisOptions are applied to Redis repositories
	RedisOptions []RedisOption
}

// NewRepository creates a new attempt ledger based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(config.DB), nil
	case "redis":
		if config.Redis == nil {
			return nil, fmt.Errorf("redis client required for redis repository")
		}
		return NewRedisRepository(config.Redis, config.RedisOptions...), nil
	case "memory", "inmem":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, redis, memory)", persistenceType)
	}
}
