package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

var tracer = otel.Tracer("leads.internal.ratelimit")

// slidingWindowScript prunes, counts and conditionally appends in one step so
// concurrent instances cannot both take the last slot.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", tostring(now - window))
local count = redis.call("ZCARD", key)
if count >= max then
  return 0
end
redis.call("ZADD", key, ARGV[1], ARGV[4])
redis.call("PEXPIRE", key, ARGV[2])
return 1
`)

// RedisWindow is a sliding window limiter shared by every instance that
// points at the same Redis. Keys expire with the window, so no capacity
// eviction is needed.
type RedisWindow struct {
	redis  *redis.Client
	cfg    Config
	prefix string
	logger *logging.Logger
}

// NewRedisWindow creates a Redis-backed limiter.
func NewRedisWindow(client *redis.Client, cfg Config, logger *logging.Logger) *RedisWindow {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisWindow{
		redis:  client,
		cfg:    cfg.withDefaults(),
		prefix: "ratelimit:lead:",
		logger: logger,
	}
}

// Allow reports whether another attempt fits in identifier's window. Redis
// failures allow the attempt.
func (r *RedisWindow) Allow(ctx context.Context, identifier string, now time.Time) bool {
	ctx, span := tracer.Start(ctx, "ratelimit.redis_allow")
	defer span.End()

	key := r.prefix + identifier
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	res, err := slidingWindowScript.Run(ctx, r.redis, []string{key},
		now.UnixMilli(),
		r.cfg.Window.Milliseconds(),
		r.cfg.Max,
		member,
	).Int()
	if err != nil {
		r.logger.Error("rate limit check failed", "error", err)
		span.SetAttributes(attribute.Bool("ratelimit.fail_open", true))
		return true
	}

	allowed := res == 1
	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed
}

// Reset clears identifier's window (admin use).
func (r *RedisWindow) Reset(ctx context.Context, identifier string) error {
	return r.redis.Del(ctx, r.prefix+identifier).Err()
}

var (
	_ Limiter = (*Window)(nil)
	_ Limiter = (*RedisWindow)(nil)
)
