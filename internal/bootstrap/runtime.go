// Package bootstrap wires shared runtime dependencies for the binaries.
package bootstrap

import (
	"fmt"

	"alumnet/internal/cache"
	"alumnet/internal/config"
	"alumnet/internal/database"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRuntime connects to the database and Redis. The Redis client may be
// nil when the server is unreachable; callers degrade to single-instance
// behavior in that case.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return db, cache.GetClient(), nil
}
