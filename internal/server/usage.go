package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCurrentUsage returns the tenant's open usage period. OVER_LIMIT and
// SUSPENDED are data here, not errors.
func (s *Server) GetCurrentUsage(c *gin.Context) {
	tenantID, ok := tenantIDFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rec, err := s.usageSvc.Current(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant_id":      rec.TenantID.String(),
		"consumed_units": rec.ConsumedUnits,
		"limit_units":    rec.LimitUnits,
		"status":         rec.Status,
		"period_start":   rec.PeriodStart,
		"period_end":     rec.PeriodEnd,
	})
}
