package fetcher

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// QuotaCounter counts requests per day key.
type QuotaCounter interface {
	// Incr adds one request to day and returns the new total.
	Incr(ctx context.Context, day string) (int64, error)
	// Get returns the total for day.
	Get(ctx context.Context, day string) (int64, error)
}

// MemoryQuota counts requests in process memory.
type MemoryQuota struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryQuota creates an empty in-memory counter.
func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{counts: make(map[string]int64)}
}

func (m *MemoryQuota) Incr(_ context.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[day]++
	return m.counts[day], nil
}

func (m *MemoryQuota) Get(_ context.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[day], nil
}

// redisCounter is the subset of redis.Cmdable the quota uses.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// quotaTTL keeps a day's counter around long enough to cover every timezone.
const quotaTTL = 48 * time.Hour

// RedisQuota shares the daily count between processes through Redis.
type RedisQuota struct {
	client redisCounter
	prefix string
}

// NewRedisQuota creates a counter storing keys as <prefix>:<day>.
func NewRedisQuota(client redisCounter, prefix string) *RedisQuota {
	return &RedisQuota{client: client, prefix: prefix}
}

// DialRedisQuota connects to the Redis server at url and verifies it answers.
func DialRedisQuota(ctx context.Context, url, prefix string) (*RedisQuota, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetcher: parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, eris.Wrap(err, "fetcher: ping redis")
	}
	return NewRedisQuota(rdb, prefix), rdb, nil
}

func (r *RedisQuota) key(day string) string {
	return r.prefix + ":" + day
}

func (r *RedisQuota) Incr(ctx context.Context, day string) (int64, error) {
	key := r.key(day)
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: redis incr")
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, quotaTTL).Err(); err != nil {
			return n, eris.Wrap(err, "fetcher: redis expire")
		}
	}
	return n, nil
}

func (r *RedisQuota) Get(ctx context.Context, day string) (int64, error) {
	s, err := r.client.Get(ctx, r.key(day)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: redis get")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: parse quota count %q", s)
	}
	return n, nil
}
