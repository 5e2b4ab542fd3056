package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"sarthi/controllers"
	dbpkg "sarthi/db"
	"sarthi/middleware"
	"sarthi/reflection"
)

// Initialize wires all routes and middlewares.
func Initialize(r *gin.Engine, database *gorm.DB, svc *reflection.Service) {
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware())
	r.Use(dbpkg.SetDBToContext(database))
	r.Use(controllers.SetServiceToContext(svc))

	r.GET("/", controllers.Root)
	r.GET("/health", controllers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(Logger())

	api.GET("/categories", controllers.GetCategories)

	api.POST("/reflection/start", controllers.StartReflection)
	api.POST("/reflection/category", controllers.SetReflectionCategory)
	api.POST("/reflection/next", controllers.AdvanceReflection)
	api.GET("/reflection/:id", controllers.GetReflection)
	api.GET("/reflection/:id/messages", controllers.GetReflectionMessages)

	log.Info("Routes initialized")
}
