// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/slopped-in/pkg/types"
)

// DefaultKeyPrefix namespaces limiter keys when RedisConfig.KeyPrefix is empty.
const DefaultKeyPrefix = "slopped-in:ratelimit:"

// slidingWindowScript prunes, counts, and appends in one atomic step.
// KEYS[1] window key; ARGV: now ms, window start ms, max, ttl ms, member.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// RedisStore is a sliding-window limiter backed by one sorted set per
// client. Scores are request times in milliseconds. Keys expire one window
// after their newest request, which takes the place of Window's sweep.
type RedisStore struct {
	client      redis.Scripter
	prefix      string
	window      time.Duration
	maxRequests int
	now         func() time.Time
}

// NewRedisClient opens a client for cfg. The connection is verified with PING.
func NewRedisClient(ctx context.Context, cfg types.RedisConfig) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore builds a limiter on client. A nil now uses time.Now.
func NewRedisStore(client redis.Scripter, cfg types.RateLimitConfig, now func() time.Time) *RedisStore {
	cfg = applyDefaults(cfg)
	if now == nil {
		now = time.Now
	}
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		now:         now,
	}
}

// Allow reports whether key is under its limit and, if so, records the request.
func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	startMs := now.Add(-s.window).UnixMilli()

	// Two requests in the same millisecond need distinct members.
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	allowed, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		nowMs, startMs, s.maxRequests, s.window.Milliseconds(), member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	return allowed == 1, nil
}
