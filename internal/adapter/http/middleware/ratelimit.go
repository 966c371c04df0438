package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "shop-ingest/internal/adapter/storage/redis"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group. The webhook
// rule is per shop and comes from configuration; a zero limit leaves the
// group unlimited.
func DefaultRateLimitRules(webhookLimit int, webhookWindow time.Duration) map[string]RateLimitRule {
	rules := map[string]RateLimitRule{
		"backfill": {Limit: 30, Window: time.Minute},
	}
	if webhookLimit > 0 {
		if webhookWindow < time.Second {
			webhookWindow = time.Minute
		}
		rules["webhooks"] = RateLimitRule{Limit: int64(webhookLimit), Window: webhookWindow}
	}
	return rules
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Redis failures let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			log.Warn().Str("group", group).Str("identifier", identifier).Msg("rate limit exceeded")
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source: the shop that sent
// a webhook, then the authenticated operator, then the client address.
func extractIdentifier(c *gin.Context) string {
	if shop := c.GetHeader(HeaderShopDomain); shop != "" {
		return "shop:" + shop
	}
	if op := c.GetString(CtxOperator); op != "" {
		return "operator:" + op
	}
	return "ip:" + c.ClientIP()
}
