package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/services"
)

func respondError(c *gin.Context, status int, title, message, code string) {
	c.JSON(status, models.ErrorResponse{
		Error:     title,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

// respondServiceError maps service errors to HTTP responses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRUC):
		respondError(c, http.StatusBadRequest, "Invalid RUC format",
			"RUC must contain 13 digits with a valid province code and establishment", models.ErrorCodeInvalidRUC)
	case errors.Is(err, services.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, "Invalid request", err.Error(), models.ErrorCodeInvalidRequest)
	case errors.Is(err, services.ErrRunInProgress):
		respondError(c, http.StatusConflict, "Run in progress", err.Error(), models.ErrorCodeRunInProgress)
	case errors.Is(err, services.ErrStatusNotFound):
		respondError(c, http.StatusNotFound, "Run not found", "No run is known for this RUC", models.ErrorCodeRunNotFound)
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, "Company not found", "No company is registered with this RUC", models.ErrorCodeCompanyNotFound)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred", models.ErrorCodeInternalError)
	}
}
