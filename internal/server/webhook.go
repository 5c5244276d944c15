package server

import (
	"errors"
	"io"
	"net/http"

	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
	"github.com/gin-gonic/gin"
)

// HandleAsaasWebhook accepts Asaas deliveries. Duplicates of finished events
// are acknowledged with 200 so the provider stops redelivering.
func (s *Server) HandleAsaasWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.HandleIncoming(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
