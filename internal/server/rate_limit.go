package server

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sentinel/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonKeyRate      = "key-rate"
	rateLimitReasonEndpointRate = "endpoint-rate"
)

// apiLimiter is the slice of ratelimit.APILimiter the request gate needs.
type apiLimiter interface {
	Enabled() bool
	AllowKey(ctx context.Context, keyID string) (*ratelimit.RateLimitResult, error)
	AllowEndpoint(ctx context.Context, route string) (*ratelimit.RateLimitResult, error)
}

// APIRateLimit admits authenticated requests against the per-key budget
// first and the shared endpoint budget second. It must run after
// APIKeyRequired.
func (s *Server) APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.limiter.AllowKey(ctx, identity.KeyID)
		if err != nil {
			logger.FromContext(ctx).Warn("api key rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyRateLimit(c, result, endpoint, identity.KeyID, rateLimitReasonKeyRate, s.obsMetrics)
			return
		}
		setRateLimitHeaders(c, result)

		result, err = s.limiter.AllowEndpoint(ctx, endpoint)
		if err != nil {
			logger.FromContext(ctx).Warn("endpoint rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyRateLimit(c, result, endpoint, identity.KeyID, rateLimitReasonEndpointRate, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, identity.KeyID, s.obsMetrics)
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, result *ratelimit.RateLimitResult, endpoint, keyID, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
		zap.String("key_id", keyID),
	)
	recordRateLimitDenied(ctx, endpoint, keyID, reason, metrics)

	setRateLimitHeaders(c, result)
	retryAfter := int64(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}

func recordRateLimitAllowed(ctx context.Context, endpoint, keyID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, keyID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, keyID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, keyID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
