package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"sarthi/distress"
	"sarthi/reflection"
)

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps workflow errors to statuses. Business errors carry
// their message to the client; anything else is logged and hidden.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reflection.ErrNotFound):
		RespondError(c, err.Error(), http.StatusNotFound)
	case errors.Is(err, reflection.ErrInvalidState):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, reflection.ErrInvalidInput):
		RespondError(c, err.Error(), http.StatusBadRequest)
	case errors.Is(err, reflection.ErrPersistenceConflict):
		RespondError(c, "the reflection was updated concurrently, please retry", http.StatusConflict)
	case errors.Is(err, distress.ErrClassificationUnavailable):
		RespondError(c, "message screening is temporarily unavailable, please retry", http.StatusServiceUnavailable)
	default:
		log.WithError(err).WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"request_id": c.GetString(RequestIDKey),
		}).Error("internal error")
		RespondError(c, "internal server error", http.StatusInternalServerError)
	}
}
