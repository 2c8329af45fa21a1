// pkg/middleware/ratelimit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiter counts requests per client over a sliding window. Counts are
// held in process memory, so each instance enforces its own limit.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimiter allows limit requests per client per window. A limit of
// zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a request for key if it is within the limit. When it is
// not, reset is the time the oldest counted request leaves the window.
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int, reset time.Time) {
	now := rl.now()
	if rl.limit <= 0 {
		return true, math.MaxInt32, now
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) > rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	kept := recent(rl.hits[key], cutoff)
	if len(kept) >= rl.limit {
		rl.hits[key] = kept
		return false, 0, kept[0].Add(rl.window)
	}
	kept = append(kept, now)
	rl.hits[key] = kept
	return true, rl.limit - len(kept), kept[0].Add(rl.window)
}

// sweep drops clients with no request inside the window.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, ts := range rl.hits {
		if kept := recent(ts, cutoff); len(kept) == 0 {
			delete(rl.hits, key)
		} else {
			rl.hits[key] = kept
		}
	}
}

// recent returns the suffix of ts newer than cutoff; ts is in arrival order.
func recent(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// RateLimit rejects clients over the limiter's budget with 429. Clients are
// keyed by gin's ClientIP.
func RateLimit(rl *RateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, reset := rl.Allow(c.ClientIP())
		if rl.limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			retry := int(math.Ceil(reset.Sub(rl.now()).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			log.Warn("rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.FullPath()),
				zap.String("request_id", GetRequestID(c)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests, retry later",
			})
			return
		}
		c.Next()
	}
}
