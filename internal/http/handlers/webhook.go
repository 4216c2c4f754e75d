package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mementolink/mementolink-backend/internal/http/response"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log     *logger.Logger
	payment services.PaymentEventHandler
}

func NewWebhookHandler(baseLog *logger.Logger, payment services.PaymentEventHandler) *WebhookHandler {
	return &WebhookHandler{
		log:     baseLog.With("handler", "WebhookHandler"),
		payment: payment,
	}
}

// PaymentEvent receives provider webhook deliveries. The raw body is read
// before any parsing because the signature covers the exact bytes sent.
func (wh *WebhookHandler) PaymentEvent(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	signature := c.GetHeader("X-Payment-Signature")

	result, err := wh.payment.Handle(c.Request.Context(), payload, signature)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"received":  true,
		"duplicate": result.Duplicate,
		"handled":   result.Handled,
	})
}
