// internal/handler/payment_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/middleware"
)

// IdempotencyKeyHeader is read when the body carries no idempotencyKey.
const IdempotencyKeyHeader = "Idempotency-Key"

type PaymentStarter interface {
	StartPayment(ctx context.Context, req *models.StartPaymentRequest) (*models.StartPaymentResponse, error)
	GetAttempt(ctx context.Context, id string) (*models.PaymentAttempt, error)
}

type PaymentHandler struct {
	service PaymentStarter
	logger  *zap.Logger
}

func NewPaymentHandler(service PaymentStarter, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

// StartPayment handles POST /api/v1/payments/start
func (h *PaymentHandler) StartPayment(c *gin.Context) {
	var req models.StartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(IdempotencyKeyHeader)
	}

	log := h.logger.With(
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("idempotency_key", req.IdempotencyKey))

	resp, err := h.service.StartPayment(c.Request.Context(), &req)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetAttempt handles GET /api/v1/payments/attempts/:id
func (h *PaymentHandler) GetAttempt(c *gin.Context) {
	attempt, err := h.service.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": attempt.StatusView()})
}
