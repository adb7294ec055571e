package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/mpesa"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/phone"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/reconcile"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
)

// APIResponse is the envelope every JSON endpoint except the webhook returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// callbackAck is what the gateway expects back from the webhook.
type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// respondError maps a domain error onto an HTTP status and writes it.
func respondError(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, APIResponse{
		Success: false,
		Message: message,
		Detail:  err.Error(),
	})
}

func errorStatus(err error) (int, string) {
	var gwErr *mpesa.Error
	switch {
	case errors.Is(err, phone.ErrInvalidPhoneNumber):
		return http.StatusBadRequest, "Invalid phone number format. Use format: 0722000000 or 254722000000"
	case errors.Is(err, reconcile.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be greater than 0"
	case errors.Is(err, reconcile.ErrMissingMerchantRequestID):
		return http.StatusBadRequest, "Merchant request ID not found for this transaction"
	case errors.Is(err, transactions.ErrNotFound):
		return http.StatusNotFound, "Transaction not found"
	case errors.Is(err, transactions.ErrAlreadyExists):
		return http.StatusConflict, "Transaction already recorded"
	case errors.As(err, &gwErr):
		switch gwErr.Kind {
		case mpesa.KindConfiguration:
			return http.StatusInternalServerError, "M-Pesa is not configured"
		case mpesa.KindUnreachable:
			return http.StatusBadGateway, "Failed to communicate with M-Pesa API"
		case mpesa.KindAuth:
			return http.StatusBadGateway, "Failed to authenticate with M-Pesa API"
		default:
			return http.StatusBadGateway, "M-Pesa request failed: " + gwErr.Message
		}
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}
