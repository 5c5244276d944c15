package server

import (
	"github.com/faturolabs/faturo/internal/webhook/asaas"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	obslogger "github.com/faturolabs/faturo/internal/observability/logger"
)

// WebhookRateLimit throttles provider deliveries. Limiter errors fail open:
// losing redis must not drop payment notifications.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		allowed, err := s.limiter.AllowWebhook(c.Request.Context(), asaas.ProviderName)
		if err != nil {
			obslogger.FromContext(c.Request.Context()).Warn("webhook rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			s.recordRateLimit(c, "", "webhook", false)
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		s.recordRateLimit(c, "", "webhook", true)
		c.Next()
	}
}

func (s *Server) OrderRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		tenantID, ok := tenantIDFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, err := s.limiter.AllowOrder(c.Request.Context(), tenantID.String())
		if err != nil {
			obslogger.FromContext(c.Request.Context()).Warn("order rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			s.recordRateLimit(c, tenantID.String(), "orders", false)
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		s.recordRateLimit(c, tenantID.String(), "orders", true)
		c.Next()
	}
}

func (s *Server) recordRateLimit(c *gin.Context, tenantID, endpoint string, allowed bool) {
	if s.obsMetrics == nil {
		return
	}
	if allowed {
		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), tenantID, endpoint)
		return
	}
	s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), tenantID, endpoint, "token_bucket")
}
