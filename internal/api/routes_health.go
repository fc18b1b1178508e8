package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/safeguard/internal/handlers"
	"github.com/charlesng35/safeguard/internal/kvstore"
)

func registerHealthRoutes(r *gin.Engine, store kvstore.Store) {
	r.GET("/health", handlers.Health())
	r.GET("/health/ready", handlers.Readiness(store))
}
