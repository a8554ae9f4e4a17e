package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluelabel/contentmind/services"
)

// respondServiceError maps the service-layer error taxonomy onto HTTP
// status codes, keeping every handler's error branch to one line.
func respondServiceError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, services.ErrUnavailable), errors.Is(err, services.ErrProviderError):
		status = http.StatusBadGateway
	case errors.Is(err, services.ErrCancelled):
		status = http.StatusRequestTimeout
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}
