package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook answers 200 whatever happens; the body tells the
// gateway whether to redeliver.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider == "" {
		provider = s.cfg.Payment.Provider
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.log.Warn("payment.webhook.read_failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusOK, paymentdomain.WebhookResult{Success: false})
		return
	}

	result := s.paymentSvc.HandleWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	c.JSON(http.StatusOK, result)
}
