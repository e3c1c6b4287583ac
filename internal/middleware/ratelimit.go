package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"live-session-service/internal/response"
)

const (
	rateLimiterCacheSize = 10000
	rateLimiterIdleTTL   = 10 * time.Minute
)

// RateLimiter hands out one token bucket per caller. Idle buckets expire.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](rateLimiterCacheSize, nil, rateLimiterIdleTTL),
		limit:    rate.Limit(float64(requestsPerMinute) / 60),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, limiter)
	return limiter
}

// Allow consumes a token for key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

// Limit keys on the authenticated user, falling back to the client IP.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := UserID(c); ok {
			key = userID.String()
		}

		if !rl.Allow(key) {
			response.AbortWithError(c, http.StatusTooManyRequests, response.ErrCodeRateLimited, "Too many requests")
			return
		}
		c.Next()
	}
}
