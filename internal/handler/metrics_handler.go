package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-portal-api/internal/service"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/ratelimit"
	"github.com/noah-isme/alumni-portal-api/pkg/response"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type limiterStats interface {
	Stats(ctx context.Context) (ratelimit.Stats, error)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      pinger
	limiter limiterStats
}

// NewMetricsHandler constructs a metrics handler. db and limiter may be nil.
func NewMetricsHandler(metrics *service.MetricsService, db pinger, limiter limiterStats) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, limiter: limiter}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database answers.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// RateLimit godoc
// @Summary Rate limiter statistics
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/rate-limit [get]
func (h *MetricsHandler) RateLimit(c *gin.Context) {
	if h.limiter == nil {
		response.JSON(c, http.StatusOK, gin.H{"enabled": false}, nil)
		return
	}
	stats, err := h.limiter.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read rate limiter stats"))
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
