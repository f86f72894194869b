package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
	"todo_service/internal/common"
	"todo_service/internal/platform/observability"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter is a fixed-window request counter shared across instances
// through Redis.
type RateLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	prefix  string
	log     *logrus.Logger
	metrics *observability.Metrics
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string, log *logrus.Logger, metrics *observability.Metrics) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		log:     log,
		metrics: metrics,
	}
}

// Allow counts one request against key. It reports whether the request fits
// in the current window and how long until the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		// First hit in this window.
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.window
	}

	return incr.Val() <= int64(rl.limit), reset, nil
}

// Handler limits requests per client IP. Redis failures let the request
// through.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, reset, err := rl.Allow(r.Context(), "ip:"+clientIP(r))
		if err != nil {
			rl.log.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if !allowed {
			rl.metrics.ObserveRateLimited(rl.prefix)
			seconds := int(reset.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("X-RateLimit-Remaining", "0")
			common.RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP is the host part of RemoteAddr, which TrustedRealIP may have
// replaced with a forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
