// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/services/cache"
)

// RateLimiter is a sliding-window limiter keyed by prefix, path and client IP.
// The window lives in the cache store so limits hold across replicas when
// redis is used.
type RateLimiter struct {
	store     cache.Store
	window    time.Duration
	limit     int
	keyPrefix string
}

// NewRateLimiter creates a new rate limiter with the specified configuration
func NewRateLimiter(store cache.Store, window time.Duration, limit int, keyPrefix string) *RateLimiter {
	if window == 0 {
		window = time.Minute
	}
	if limit == 0 {
		limit = 60
	}
	return &RateLimiter{
		store:     store,
		window:    window,
		limit:     limit,
		keyPrefix: keyPrefix,
	}
}

// RateLimit returns a Gin middleware function that implements rate limiting.
// Store failures let the request through.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not determine client IP"})
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%s%s:%s", rl.keyPrefix, c.FullPath(), clientIP)
		// Hits are scored in nanoseconds so requests within the same second
		// stay distinct members of the window.
		now := time.Now()
		windowStart := now.Add(-rl.window).UnixNano()
		reset := strconv.FormatInt(now.Add(rl.window).Unix(), 10)

		if err := rl.store.CleanAndCount(ctx, key, windowStart); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to clean rate limit data")
			c.Next()
			return
		}

		count, err := rl.store.GetCount(ctx, key)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to get rate limit count")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Reset", reset)

		if count >= int64(rl.limit) {
			retryAfter := int64(rl.window.Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"limit":       rl.limit,
				"window":      rl.window.String(),
				"retry_after": retryAfter,
			})
			return
		}

		if err := rl.store.Increment(ctx, key, now.UnixNano()); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to record request")
			c.Next()
			return
		}
		if err := rl.store.Expire(ctx, key, rl.window); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to set rate limit expiration")
		}

		remaining := rl.limit - int(count) - 1
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}
