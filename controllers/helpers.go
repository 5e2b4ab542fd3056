package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sarthi/reflection"
)

// RequestIDKey is the gin context key set by middleware.RequestID.
const RequestIDKey = "request_id"

const serviceKey = "reflection_service"

func ParamUUID(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		RespondError(c, name+" is required", http.StatusBadRequest)
		return "", false
	}
	if _, err := uuid.Parse(v); err != nil {
		RespondError(c, name+" must be a UUID", http.StatusBadRequest)
		return "", false
	}
	return v, true
}

// SetServiceToContext makes the workflow service available to handlers.
func SetServiceToContext(svc *reflection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(serviceKey, svc)
		c.Next()
	}
}

func serviceInstance(c *gin.Context) (*reflection.Service, bool) {
	v, ok := c.Get(serviceKey)
	if !ok {
		RespondError(c, "reflection service not configured", http.StatusInternalServerError)
		return nil, false
	}
	svc, ok := v.(*reflection.Service)
	if !ok || svc == nil {
		RespondError(c, "reflection service not configured", http.StatusInternalServerError)
		return nil, false
	}
	return svc, true
}
