package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	dbpkg "sarthi/db"
)

// GET /
func Root(c *gin.Context) {
	RespondSuccess(c, gin.H{"message": "Reflection Platform API is running!"})
}

// GET /health
func Health(c *gin.Context) {
	if err := dbpkg.Ping(c); err != nil {
		log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	RespondSuccess(c, gin.H{"status": "ok", "database": "up"})
}
