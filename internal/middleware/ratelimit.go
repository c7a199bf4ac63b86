package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/service"
)

// UnknownClient is the bucket key for requests with no usable address.
const UnknownClient = "unknown"

// RateLimiter admits or rejects a request for a client key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	TrustProxy bool
	Logger     *zap.Logger
	Metrics    *service.MetricsService
}

// RateLimit rejects clients that exhaust their token bucket with 429. Any
// failure inside the limiter admits the request.
func RateLimit(limiter RateLimiter, opts RateLimitOptions) gin.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		allowed, failOpen := admit(c, limiter, opts.TrustProxy, logger)
		opts.Metrics.RecordRateLimit(allowed, failOpen)
		if allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Too many requests"})
	}
}

func admit(c *gin.Context, limiter RateLimiter, trustProxy bool, logger *zap.Logger) (allowed, failOpen bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("rate limiter panicked, admitting request", zap.String("panic", fmt.Sprint(r)))
			allowed, failOpen = true, true
		}
	}()

	key := ClientKey(c.Request, trustProxy)
	ok, err := limiter.Allow(c.Request.Context(), key)
	if err != nil {
		logger.Warn("rate limiter failed, admitting request", zap.String("client", key), zap.Error(err))
		return true, true
	}
	return ok, false
}

// ClientKey identifies the caller: the first X-Forwarded-For entry when
// proxies are trusted, else the remote host, else UnknownClient.
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
