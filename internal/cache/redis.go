package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/segment-rules/internal/domain"
)

// setIfCurrentScript writes KEYS[2] only while the generation in KEYS[1]
// still equals ARGV[1]. A missing generation key counts as 0.
var setIfCurrentScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// Redis stores JSON-encoded segment reads with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisFromURL connects to redisURL and verifies the connection.
func NewRedisFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// Client exposes the underlying client for health checks.
func (r *Redis) Client() *redis.Client { return r.client }

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A corrupt entry is a miss; the next write replaces it.
		return false, nil
	}
	return true, nil
}

func (r *Redis) set(ctx context.Context, tenantID int64, gen uint64, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = setIfCurrentScript.Run(ctx, r.client,
		[]string{genKey(tenantID), key},
		strconv.FormatUint(gen, 10), data, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Generation(ctx context.Context, tenantID int64) (uint64, error) {
	gen, err := r.client.Get(ctx, genKey(tenantID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", genKey(tenantID), err)
	}
	return gen, nil
}

func (r *Redis) GetList(ctx context.Context, tenantID int64) ([]domain.Segment, bool, error) {
	var segments []domain.Segment
	ok, err := r.get(ctx, listKey(tenantID), &segments)
	return segments, ok, err
}

func (r *Redis) SetList(ctx context.Context, tenantID int64, gen uint64, segments []domain.Segment) error {
	return r.set(ctx, tenantID, gen, listKey(tenantID), segments)
}

func (r *Redis) GetSegment(ctx context.Context, tenantID, id int64) (*domain.Segment, bool, error) {
	var seg domain.Segment
	ok, err := r.get(ctx, segmentKey(tenantID, id), &seg)
	if !ok {
		return nil, false, err
	}
	return &seg, true, nil
}

func (r *Redis) SetSegment(ctx context.Context, tenantID int64, gen uint64, seg *domain.Segment) error {
	return r.set(ctx, tenantID, gen, segmentKey(tenantID, seg.ID), seg)
}

// Invalidate advances the tenant's generation and deletes the list and the
// given segment keys in one MULTI/EXEC.
func (r *Redis) Invalidate(ctx context.Context, tenantID int64, ids ...int64) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey(tenantID))
	for _, id := range ids {
		keys = append(keys, segmentKey(tenantID, id))
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(tenantID))
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}
