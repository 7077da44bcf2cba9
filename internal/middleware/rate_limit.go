package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/gaitkeepr/internal/metrics"
	"github.com/osvaldoandrade/gaitkeepr/internal/ratelimit"
	"github.com/osvaldoandrade/gaitkeepr/pkg/config"
)

func RateLimitUpload(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitClient(lim, "upload", "upload_video", cfg.RateLimit.Upload)
}

func RateLimitChat(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitClient(lim, "chat", "coach_chat", cfg.RateLimit.Chat)
}

// rateLimitClient keys buckets by authenticated subject when auth ran first,
// otherwise by client IP.
func rateLimitClient(lim ratelimit.Limiter, scope string, operation string, bcfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		subject := c.GetString("subject")
		if subject == "" {
			subject = c.ClientIP()
		}

		dec, err := lim.Allow(c.Request.Context(), scope, subject, bucket)
		if err != nil {
			// Fail open to avoid turning Redis hiccups into outages.
			Logger(c).Warn("rate limit check failed", "scope", scope, "op", operation, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			c.Next()
			return
		}

		retryAfterSeconds := int(math.Ceil(dec.RetryAfter.Seconds()))
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(scope, operation).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"scope":             scope,
			"operation":         operation,
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
