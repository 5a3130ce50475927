package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window limit per key, counting in redis so the
// window survives restarts and is shared across replicas. If redis is down the
// limiter fails open; slowing logins down is not worth taking them out.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

// Middleware returns a gin.HandlerFunc that enforces the limit for a derived key.

func (rl *RateLimiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rdb == nil {
			c.Next()
			return
		}

		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		redisKey := rl.prefix + ":" + key

		ctx := c.Request.Context()

		count, err := rl.rdb.Incr(ctx, redisKey).Result()

		if err != nil {
			c.Next()
			return
		}

		if count == 1 {
			// first hit opens the window
			_ = rl.rdb.Expire(ctx, redisKey, rl.window).Err()
		} else if ttl, terr := rl.rdb.TTL(ctx, redisKey).Result(); terr == nil && ttl < 0 {
			// The opening EXPIRE can be lost (redis blip, process killed
			// between INCR and EXPIRE). A counter with no TTL never resets
			// and would lock the key out permanently, so re-arm it here.
			_ = rl.rdb.Expire(ctx, redisKey, rl.window).Err()
		}

		if count > int64(rl.limit) {
			ttl, err := rl.rdb.TTL(ctx, redisKey).Result()

			retryAfter := int(rl.window.Seconds())

			if err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"code":    "rate_limited",
				"message": "Too many requests. Please try again shortly.",
			})

			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
