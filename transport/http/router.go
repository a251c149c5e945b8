package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router with the full API surface.
func SetupRouter(handlers *Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), CORSMiddleware(), MetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", handlers.Health)

		api.GET("/stands", handlers.ListStands)
		api.POST("/stands", handlers.CreateStand)
		api.GET("/stands/:id", handlers.GetStand)
		api.PUT("/stands/:id", handlers.UpdateStand)
		api.DELETE("/stands/:id", handlers.DeleteStand)

		api.POST("/passkey/challenge", handlers.Challenge)
		api.POST("/stands/:id/passkey/register", handlers.RegisterCredential)
		api.POST("/passkey/authenticate", handlers.Authenticate)

		api.GET("/my/stands", handlers.MyStands)
	}

	return router
}
