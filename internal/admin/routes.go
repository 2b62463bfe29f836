package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/config"
)

// SetupRoutes mounts the admin API behind basic auth.
func SetupRoutes(router *gin.Engine, handler *Handler, cfg *config.Config) {
	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.Password))
	{
		enginesGroup := adminGroup.Group("/engines")
		{
			enginesGroup.GET("", handler.ListEnginesHandler)
			enginesGroup.POST("", handler.CreateEngineHandler)
			enginesGroup.POST("/health", handler.HealthCheckHandler)
			enginesGroup.GET("/:id", handler.GetEngineHandler)
			enginesGroup.PUT("/:id", handler.UpdateEngineHandler)
			enginesGroup.PATCH("/:id/status", handler.ToggleEngineHandler)
			enginesGroup.DELETE("/:id", handler.DeleteEngineHandler)
		}

		modelsGroup := adminGroup.Group("/models")
		{
			modelsGroup.GET("", handler.ListModelsHandler)
			modelsGroup.POST("", handler.CreateModelHandler)
			modelsGroup.PUT("/:id", handler.UpdateModelHandler)
			modelsGroup.PATCH("/:id/status", handler.ToggleModelHandler)
			modelsGroup.DELETE("/:id", handler.DeleteModelHandler)
		}

		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.PATCH("/:id/status", handler.ToggleKeyHandler)
			keysGroup.PUT("/:id/models", handler.ReplaceKeyModelsHandler)
			keysGroup.POST("/:id/approve-access", handler.ApproveAccessHandler)
			keysGroup.DELETE("/:id", handler.DeleteKeyHandler)
		}
	}
}
