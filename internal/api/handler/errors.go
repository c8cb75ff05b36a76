package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
	"parking_backend/internal/service"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, repository.ErrDuplicateEntry),
		errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrLoginNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, service.ErrNoTextFound), errors.Is(err, service.ErrPlateNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Handler: %s %s: %s: %v", c.Request.Method, c.FullPath(), message, err)
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
}
