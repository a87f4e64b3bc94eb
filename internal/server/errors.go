package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

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

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var gatewayErr *fiscaldomain.GatewayError

	switch {
	case errors.Is(err, invoicedomain.ErrDuplicateInvoice):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, invoicedomain.ErrInvoiceNotRetriable):
		return http.StatusUnprocessableEntity, errorPayload{Type: "invalid_state", Message: err.Error()}
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, storeconfigdomain.ErrConfigNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, invoicedomain.ErrAllocationFailed):
		return http.StatusServiceUnavailable, errorPayload{Type: "allocation_failed", Message: err.Error()}
	case errors.Is(err, fiscaldomain.ErrMissingCredentials):
		return http.StatusBadGateway, errorPayload{Type: "gateway_auth", Message: err.Error()}
	case errors.As(err, &gatewayErr):
		return http.StatusBadGateway, errorPayload{Type: "gateway_error", Message: gatewayErr.Message}
	case errors.Is(err, invoicedomain.ErrMissingSerial):
		return http.StatusUnprocessableEntity, errorPayload{Type: "invalid_config", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal", Message: "internal error"}
	}
}
