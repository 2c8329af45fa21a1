package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/middleware"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "Stripe-Signature"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (models.EventOutcome, error)
}

type WebhookHandler struct {
	events EventHandler
	secret string
	logger *zap.Logger
}

func NewWebhookHandler(events EventHandler, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		events: events,
		secret: secret,
		logger: logger,
	}
}

// StripeWebhook handles POST /api/v1/webhooks/stripe. The signature is
// checked before anything is recorded; a non-2xx makes the provider retry.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "payload_too_large", Message: "webhook body exceeds 1MiB"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "failed to read request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader(signatureHeader), h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("rejected webhook signature",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_signature", Message: "invalid webhook signature"})
		return
	}

	outcome, err := h.events.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "processing_failed", Message: "failed to process webhook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "status": outcome})
}
