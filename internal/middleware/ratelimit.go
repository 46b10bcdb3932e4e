package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window per-IP counter. State is in-process; each
// instance enforces its own window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether the key may proceed, and the remaining window
// duration when it may not.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &rateWindow{count: 1, resetAt: now.Add(rl.window)}
		rl.sweep(now)
		return true, 0
	}
	if w.count >= rl.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// sweep drops expired windows. Called under mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if len(rl.windows) < 10000 {
		return
	}
	for key, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// Middleware enforces the limit per client IP and answers 429 with a
// Retry-After header when exceeded.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.Allow(c.ClientIP())
		if !ok {
			seconds := int(retryAfter.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				response.Error(response.CodeRateLimited, "too many requests, slow down"))
			return
		}
		c.Next()
	}
}
