package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

type errorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Field            string `json:"field,omitempty"`
	IdempotencyKey   string `json:"idempotencyKey,omitempty"`
	PaymentAttemptID string `json:"paymentAttemptId,omitempty"`
}

// writeError maps service errors onto HTTP responses. Anything unrecognised
// is logged and reported as a bare 500.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var (
		validation *models.ValidationError
		transient  *models.TransientConflictError
		gw         *models.GatewayError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: validation.Message,
			Field:   validation.Field,
		})
	case errors.Is(err, models.ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, errorResponse{
			Error:   "idempotency_conflict",
			Message: "idempotency key was already used for a different payment",
		})
	case errors.As(err, &transient):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, errorResponse{
			Error:            "payment_in_progress",
			Message:          "payment is still being created, retry with the same idempotency key",
			IdempotencyKey:   transient.IdempotencyKey,
			PaymentAttemptID: transient.AttemptID,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden", Message: err.Error()})
	case errors.As(err, &gw):
		if gw.UserFacing {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "payment_rejected", Message: gw.Err.Error()})
			return
		}
		log.Error("payment provider error", zap.String("op", gw.Op), zap.Error(gw.Err))
		c.JSON(http.StatusBadGateway, errorResponse{Error: "gateway_error", Message: "payment provider unavailable"})
	default:
		log.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
	}
}
