package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/zenbill/zenbill/internal/customer/domain"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	productdomain "github.com/zenbill/zenbill/internal/product/domain"
	"github.com/zenbill/zenbill/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the first error attached to the context as
// a JSON payload with a domain-derived status code.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := statusFor(err)
		c.JSON(status, errorResponse{Error: errorPayload{
			Type:    typeFor(status),
			Message: err.Error(),
		}})
	}
}

// AbortWithError stops the handler chain and records err for the error
// middleware.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrCustomerNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, invoicedomain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, productdomain.ErrInsufficientStock),
		errors.Is(err, loyaltydomain.ErrInsufficientBalance),
		errors.Is(err, invoicedomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, invoicedomain.ErrInvalidTenant):
		return http.StatusUnauthorized
	case errors.Is(err, invoicedomain.ErrValidation),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrNoItems),
		errors.Is(err, loyaltydomain.ErrInvalidAmount),
		errors.Is(err, pagination.ErrInvalidCursor):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func typeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadRequest:
		return "invalid_request"
	default:
		return "internal_error"
	}
}
