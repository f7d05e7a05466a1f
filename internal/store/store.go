package store

import (
	"fmt"

	"classcast/internal/database"
	"classcast/pkg/interfaces"
)

// Backend names accepted by config.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// New selects the durable session store backend. The SQLite backend shares
// the database manager with the class directory; the Redis backend is an
// independent connection with native TTL retention.
func New(backend, redisURL string, dbManager *database.Manager) (interfaces.SessionStore, error) {
	switch backend {
	case BackendSQLite:
		return dbManager, nil
	case BackendRedis:
		return NewRedisStore(redisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
