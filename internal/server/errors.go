package server

import (
	"errors"
	"net/http"

	orderdomain "github.com/faturolabs/faturo/internal/order/domain"
	tenantdomain "github.com/faturolabs/faturo/internal/tenant/domain"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
	ErrInternal        = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last handler error after the chain
// completes. Handlers report errors via AbortWithError and never write
// error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, why := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Status: "error", Reason: why})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func mapError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal_error"

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, webhookdomain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, ErrForbidden),
		errors.Is(err, orderdomain.ErrTenantSuspended):
		return http.StatusForbidden, reason(err, "forbidden")

	// Terminal bad input: the caller must not retry unchanged.
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, webhookdomain.ErrMalformedPayload),
		errors.Is(err, webhookdomain.ErrUnknownTenant),
		errors.Is(err, orderdomain.ErrInvalidOrder),
		errors.Is(err, usagedomain.ErrInvalidDelta),
		errors.Is(err, usagedomain.ErrInvalidTenant):
		return http.StatusBadRequest, reason(err, "invalid_request")

	// Transient: the same delivery may succeed on retry.
	case errors.Is(err, webhookdomain.ErrEventInFlight),
		errors.Is(err, orderdomain.ErrQuotaExceeded):
		return http.StatusConflict, reason(err, "conflict")

	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "too_many_requests"

	case errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, usagedomain.ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func reason(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

// classifyErrorForLog labels known business outcomes in the request log so
// they can be told apart from faults.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, webhookdomain.ErrUnauthorized), errors.Is(err, ErrUnauthorized):
		return "auth", "unauthorized"
	case errors.Is(err, webhookdomain.ErrMalformedPayload):
		return "client", "malformed_payload"
	case errors.Is(err, webhookdomain.ErrUnknownTenant):
		return "client", "unknown_tenant"
	case errors.Is(err, webhookdomain.ErrEventAlreadyProcessed):
		return "idempotency", "duplicate"
	case errors.Is(err, webhookdomain.ErrEventInFlight):
		return "idempotency", "in_flight"
	case errors.Is(err, webhookdomain.ErrReconciliationFailed):
		return "fault", "reconciliation_failed"
	case errors.Is(err, ErrTooManyRequests):
		return "throttle", "rate_limited"
	default:
		return "fault", "internal"
	}
}
