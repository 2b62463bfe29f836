package dashboard

import (
	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/db"
)

// SetupRoutes mounts the user-facing API behind the identity bridge.
func SetupRoutes(router *gin.Engine, handler *Handler, database db.Service) {
	session := auth.SessionMiddleware(database)

	dashboardGroup := router.Group("/dashboard")
	dashboardGroup.Use(session)
	{
		dashboardGroup.GET("/apps", handler.ListAppsHandler)
		dashboardGroup.POST("/apps", handler.CreateAppHandler)
		dashboardGroup.POST("/apps/:id/keys", handler.CreateKeyHandler)
		dashboardGroup.PATCH("/keys/:id", handler.RenameKeyHandler)
		dashboardGroup.DELETE("/keys/:id", handler.RevokeKeyHandler)
		dashboardGroup.POST("/keys/:id/request-access", handler.RequestAccessHandler)
		dashboardGroup.GET("/models", handler.ListModelsHandler)
	}

	notificationsGroup := router.Group("/notifications")
	notificationsGroup.Use(session)
	{
		notificationsGroup.GET("", handler.ListNotificationsHandler)
		notificationsGroup.DELETE("/:id", handler.DismissNotificationHandler)
	}
}
