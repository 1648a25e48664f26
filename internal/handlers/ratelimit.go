package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tobyv/vidrelay/internal/cache"
	"github.com/tobyv/vidrelay/internal/middleware"
)

// RateLimitOptions configures one fixed-window counter.
type RateLimitOptions struct {
	Max       int
	Window    time.Duration
	KeyPrefix string
	// ByUser keys the counter by authenticated identity instead of client IP.
	// Requires JWTAuth to run first.
	ByUser bool
}

// RateLimit is a Redis fixed-window rate limiter. When Redis is unavailable
// it fails open: a degraded cache must never take the API down with it.
func RateLimit(c *cache.Cache, opts RateLimitOptions) gin.HandlerFunc {
	return func(g *gin.Context) {
		identifier := g.ClientIP()
		if opts.ByUser {
			if id := middleware.Identity(g); id != "" {
				identifier = id
			}
		}
		key := opts.KeyPrefix + identifier

		count, resetIn, ok := c.Count(g.Request.Context(), key, opts.Window)
		if !ok {
			g.Next()
			return
		}

		resetAt := time.Now().Add(resetIn).Unix()
		g.Header("X-RateLimit-Limit", strconv.Itoa(opts.Max))
		g.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, opts.Max-int(count))))
		g.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if int(count) > opts.Max {
			g.Header("Retry-After", fmt.Sprintf("%d", int(resetIn.Seconds())))
			g.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later",
			})
			return
		}

		g.Next()
	}
}
