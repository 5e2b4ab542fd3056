package db

import (
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

const dbKey = "db"

// SetDBToContext exposes the connection to handlers that need it directly
// (health checks); workflow handlers go through the reflection service.
func SetDBToContext(database *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(dbKey, database)
		c.Next()
	}
}

func DBInstance(c *gin.Context) *gorm.DB {
	v, ok := c.Get(dbKey)
	if !ok {
		return nil
	}
	db, _ := v.(*gorm.DB)
	return db
}

// Ping checks the connection stored in the request context.
func Ping(c *gin.Context) error {
	database := DBInstance(c)
	if database == nil {
		return errors.New("db não configurado no contexto")
	}
	return database.DB().PingContext(c.Request.Context())
}
