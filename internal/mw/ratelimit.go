package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientKey buckets authenticated requests by user and the rest by client IP.
func ClientKey(c *gin.Context) string {
	if id := c.GetString(CtxUserIDKey); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

// KeyedRateLimiter stores a rate limiter per key. Idle keys expire so the
// set of limiters does not grow without bound.
type KeyedRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewKeyedRateLimiter creates a limiter allowing r events per second with burst b.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	idle := 10 * time.Minute
	return &KeyedRateLimiter{
		limiters: cache.New(idle, idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// GetLimiter returns the limiter for key, creating it on first use.
func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Get(key); ok {
		limiter := v.(*rate.Limiter)
		l.limiters.Set(key, limiter, l.idle)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.limiters.Add(key, limiter, l.idle); err != nil {
		// Lost a race with another request for the same key.
		if v, ok := l.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimiter is a middleware for keyed rate limiting.
func RateLimiter(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientKey
	}
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(key(c)).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
				"code":    "RATE_LIMITED",
				"message": "Too many requests",
			}})
			return
		}
		c.Next()
	}
}
