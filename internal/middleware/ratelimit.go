package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/pkg/response"
)

const localLimiterSize = 10000

// RateLimiter is a fixed-window limiter keyed per caller. Counters live in
// Redis when configured so all instances share them; otherwise in a bounded
// local LRU. Redis failures fail open.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration

	mu    sync.Mutex
	local *lru.Cache
	now   func() time.Time
}

type windowCounter struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter allowing limit hits per window.
func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	cache, _ := lru.New(localLimiterSize)
	return &RateLimiter{
		redis:  client,
		prefix: prefix,
		limit:  limit,
		window: window,
		local:  cache,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.limit <= 0 {
		return true
	}
	if rl.redis != nil {
		return rl.allowRedis(ctx, key)
	}
	return rl.allowLocal(key)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) bool {
	redisKey := "ratelimit:" + rl.prefix + ":" + key

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", redisKey).Msg("Rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		rl.redis.Expire(ctx, redisKey, rl.window)
	}
	return count <= int64(rl.limit)
}

func (rl *RateLimiter) allowLocal(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if v, ok := rl.local.Get(key); ok {
		c := v.(*windowCounter)
		if now.Sub(c.start) < rl.window {
			c.count++
			return c.count <= rl.limit
		}
	}
	rl.local.Add(key, &windowCounter{start: now, count: 1})
	return true
}

// Middleware limits authenticated callers by user id, anonymous ones by IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := getClientIP(r)
		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			key = userID.String()
		}

		if !rl.Allow(r.Context(), key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			response.TooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
