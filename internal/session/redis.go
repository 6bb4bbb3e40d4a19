package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces registry keys.
const DefaultRedisPrefix = "kotoba:session:"

// RedisRegistry stores one hash per source under <prefix><sourceID>, letting several server
// processes share readiness. Entries expire through Redis EXPIRE when a TTL is set.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// ConnectRedis opens a client for addr and verifies it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisRegistry wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisRegistry(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) key(sourceID string) string {
	return r.prefix + sourceID
}

func (r *RedisRegistry) Register(ctx context.Context, entry models.SessionEntry) error {
	key := r.key(entry.SourceID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"source_id":       entry.SourceID,
			"collection_name": entry.CollectionName,
			"total_chunks":    entry.TotalChunks,
			"indexed_at":      entry.IndexedAt.UTC().Format(time.RFC3339Nano),
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register session %s: %w", entry.SourceID, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, sourceID string) (*models.SessionEntry, error) {
	fields, err := r.client.HGetAll(ctx, r.key(sourceID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get session %s: %w", sourceID, err)
	}
	if len(fields) == 0 {
		return nil, notIndexed(sourceID)
	}
	total, err := strconv.Atoi(fields["total_chunks"])
	if err != nil {
		return nil, fmt.Errorf("session %s: bad total_chunks %q: %w", sourceID, fields["total_chunks"], err)
	}
	indexedAt, err := time.Parse(time.RFC3339Nano, fields["indexed_at"])
	if err != nil {
		return nil, fmt.Errorf("session %s: bad indexed_at %q: %w", sourceID, fields["indexed_at"], err)
	}
	return &models.SessionEntry{
		SourceID:       fields["source_id"],
		CollectionName: fields["collection_name"],
		TotalChunks:    total,
		IndexedAt:      indexedAt,
	}, nil
}

func (r *RedisRegistry) IsReady(ctx context.Context, sourceID string) bool {
	_, err := r.Get(ctx, sourceID)
	return err == nil
}

func (r *RedisRegistry) Evict(ctx context.Context, sourceID string) error {
	if err := r.client.Del(ctx, r.key(sourceID)).Err(); err != nil {
		return fmt.Errorf("evict session %s: %w", sourceID, err)
	}
	return nil
}

// Len counts keys under the prefix. It returns 0 when Redis is unreachable.
func (r *RedisRegistry) Len(ctx context.Context) int {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if iter.Err() != nil {
		return 0
	}
	return n
}
