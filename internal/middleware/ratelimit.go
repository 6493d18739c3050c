package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/asciimotion/api/pkg/response"
)

// RateLimiter enforces per-user fixed windows. Counters live in process
// memory, consistent with the rest of the system's state.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window)}
}

// Limit creates a rate limiting middleware for one key prefix.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, windowSize time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Next() // auth middleware rejects anonymous callers
		}

		key := fmt.Sprintf("%s:%s", keyPrefix, userID)
		now := time.Now()

		rl.mu.Lock()
		w, ok := rl.windows[key]
		if !ok || now.After(w.resetAt) {
			w = &window{resetAt: now.Add(windowSize)}
			rl.windows[key] = w
		}
		w.count++
		count := w.count
		resetAt := w.resetAt
		rl.mu.Unlock()

		if count > maxRequests {
			c.Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetAt).Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-count))
		return c.Next()
	}
}

// ConvertLimit limits conversion starts per hour.
func (rl *RateLimiter) ConvertLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("convert", maxPerHour, time.Hour)
}

// DownloadLimit limits archive downloads per hour.
func (rl *RateLimiter) DownloadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("download", maxPerHour, time.Hour)
}
