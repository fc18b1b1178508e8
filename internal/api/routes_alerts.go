package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/safeguard/internal/handlers"
)

func registerAlertRoutes(api *gin.RouterGroup, handler *handlers.AlertHandler) {
	alerts := api.Group("/alerts")
	{
		alerts.POST("/create", handler.Create)
		alerts.POST("/link-family", handler.LinkFamily)
		alerts.POST("/cleanup", handler.Cleanup)
		alerts.GET("/links/:elderlyUserId", handler.ListFamilyMembers)

		alerts.GET("/family/:familyMemberId", handler.ListForFamilyMember)
		alerts.GET("/family/:familyMemberId/active", handler.ListActiveForFamilyMember)
		alerts.GET("/family/:familyMemberId/unread-count", handler.UnreadCount)

		alerts.GET("/:alertId", handler.Get)
		alerts.PUT("/:alertId/status", handler.UpdateStatus)
		alerts.POST("/:alertId/read", handler.MarkRead)
	}
}
