package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

const (
	sessionKeyPrefix = "classcast:session:"
	studentKeyPrefix = "classcast:student:"
)

// RedisStore implements interfaces.SessionStore on Redis. Retention is
// enforced by native key TTLs, so PurgeExpired is a no-op for this backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// CreateRecord writes a fresh session hash keyed by connection ID plus a
// student index key used by the rejoin path. Both expire at the record's
// retention deadline.
func (s *RedisStore) CreateRecord(ctx context.Context, record *types.SessionRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session record already expired")
	}

	sessionKey := sessionKeyPrefix + record.ConnectionID

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey, map[string]interface{}{
		"student_id":   record.StudentID,
		"student_name": record.StudentName,
		"class_code":   record.ClassCode,
		"html":         record.Document.HTML,
		"css":          record.Document.CSS,
		"last_update":  record.LastUpdate.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, sessionKey, ttl)
	pipe.Set(ctx, studentKeyPrefix+record.StudentID, record.ConnectionID, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

// RejoinRecord moves the durable state for a student onto a new connection
// key, carrying the prior document forward when one survives.
func (s *RedisStore) RejoinRecord(ctx context.Context, record *types.SessionRecord) error {
	oldConnID, err := s.client.Get(ctx, studentKeyPrefix+record.StudentID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to look up student index: %w", err)
	}

	carried := types.Document{}
	if err == nil && oldConnID != record.ConnectionID {
		oldKey := sessionKeyPrefix + oldConnID
		fields, getErr := s.client.HGetAll(ctx, oldKey).Result()
		if getErr != nil {
			return fmt.Errorf("failed to read prior session record: %w", getErr)
		}
		carried.HTML = fields["html"]
		carried.CSS = fields["css"]
		if delErr := s.client.Del(ctx, oldKey).Err(); delErr != nil {
			return fmt.Errorf("failed to drop prior session record: %w", delErr)
		}
	}

	rekeyed := *record
	rekeyed.Document = carried
	return s.CreateRecord(ctx, &rekeyed)
}

// UpsertDocument writes the latest document into an existing session hash.
// Field-level HSET leaves the key's TTL intact.
func (s *RedisStore) UpsertDocument(ctx context.Context, connectionID string, doc types.Document, lastUpdate time.Time) error {
	sessionKey := sessionKeyPrefix + connectionID

	exists, err := s.client.Exists(ctx, sessionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check session record: %w", err)
	}
	if exists == 0 {
		return interfaces.ErrRecordNotFound
	}

	err = s.client.HSet(ctx, sessionKey, map[string]interface{}{
		"html":        doc.HTML,
		"css":         doc.CSS,
		"last_update": lastUpdate.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op; Redis expires keys natively.
func (s *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// HealthCheck verifies Redis connectivity.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
