package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/loomworks/loom/pkg/ratelimit"
)

// RateLimitMiddleware throttles requests per client IP with the fixed-window
// limiter. Both allowed and limited responses carry the standard headers.
func RateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c fiber.Ctx) error {
		result := limiter.Check(c.IP())

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			return tooManyRequests(c, "rate limit exceeded")
		}

		return c.Next()
	}
}
