package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/middleware"
)

// respond writes the success envelope shared by every endpoint.
func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, gin.H{
		"status":  true,
		"message": message,
		"data":    data,
	})
}

// respondDomainError maps service errors to HTTP codes. Unknown errors are a
// 500 with a generic message; the real cause stays in the logs.
func respondDomainError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		middleware.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrOperationUnavailable),
		errors.Is(err, domain.ErrInvalidOTP),
		errors.Is(err, domain.ErrExpiredOTP):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrAccountNotVerified),
		errors.Is(err, domain.ErrInvalidToken):
		middleware.RespondWithError(c, http.StatusUnauthorized, err.Error())
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
