package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript refills and consumes atomically. KEYS[1] is the bucket hash;
// ARGV is now (ms), capacity, rate (tokens/s), ttl (ms).
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "last")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = (now - last) / 1000
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * rate)
  last = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last", tostring(last))
redis.call("PEXPIRE", KEYS[1], ttl)
return allowed
`)

// RedisStore shares buckets across processes. Idle buckets expire after ttl.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store using keys prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Take implements AtomicStore.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, capacity, rate float64) (bool, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), capacity, rate, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit take %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Bucket, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "tokens", "last").Result()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("ratelimit get %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Bucket{}, false, nil
	}
	tokens, err := strconv.ParseFloat(fmt.Sprint(vals[0]), 64)
	if err != nil {
		return Bucket{}, false, fmt.Errorf("ratelimit decode tokens: %w", err)
	}
	last, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return Bucket{}, false, fmt.Errorf("ratelimit decode last: %w", err)
	}
	return Bucket{Tokens: tokens, LastRefill: time.UnixMilli(last)}, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, b Bucket) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(key), "tokens", strconv.FormatFloat(b.Tokens, 'f', -1, 64), "last", b.LastRefill.UnixMilli())
	pipe.PExpire(ctx, s.key(key), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit put %s: %w", key, err)
	}
	return nil
}

// Len counts bucket keys with SCAN.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return 0, fmt.Errorf("ratelimit scan: %w", err)
		}
		n += len(keys)
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}
