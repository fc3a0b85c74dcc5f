package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	Prefix         string
}

// tokenBucket refills in whole intervals and returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
	tokens = math.min(capacity, tokens + intervals * refill_tokens)
	last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimiter is a per-caller token bucket kept in Redis. A nil client
// disables limiting; Redis failures let the request through.
type RateLimiter struct {
	rdb    *redis.Client
	cfg    RateLimitConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &RateLimiter{rdb: rdb, cfg: cfg, logger: logger, now: time.Now}
}

type limitResult struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

func (l *RateLimiter) take(ctx context.Context, key string) (limitResult, error) {
	ttl := 5 * l.cfg.RefillInterval
	if ttl < time.Second {
		ttl = time.Second
	}

	vals, err := tokenBucket.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(ttl/time.Second),
	).Int64Slice()
	if err != nil {
		return limitResult{}, err
	}
	if len(vals) != 3 {
		return limitResult{}, fmt.Errorf("unexpected script result %v", vals)
	}

	return limitResult{
		allowed:   vals[0] == 1,
		remaining: vals[1],
		retry:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Middleware keys the bucket by actor when authenticated, by client IP otherwise.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	if l == nil || l.rdb == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := l.cfg.Prefix + ":ip:" + c.ClientIP()
		if actor, ok := ActorFrom(c); ok {
			key = l.cfg.Prefix + ":user:" + actor.ID.String()
		}

		res, err := l.take(c.Request.Context(), key)
		if err != nil {
			l.logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))

		if !res.allowed {
			secs := int(math.Ceil(res.retry.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Next()
	}
}
