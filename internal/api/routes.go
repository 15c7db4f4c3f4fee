package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"texResume/internal/api/middleware"
	"texResume/internal/auth"
	"texResume/internal/config"
	"texResume/internal/latex"
	"texResume/internal/resume"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	renderer *latex.Renderer,
	asynqClient TaskEnqueuer,
	authService *auth.AuthService,
	redisClient *redis.Client,
	storageClient ExportStorage,
	logger *slog.Logger,
) {
	service := resume.NewService(db, logger)

	blockHandler := NewBlockHandler(service, logger)
	resumeHandler := NewResumeHandler(service, renderer, asynqClient, storageClient, logger)
	renderHandler := NewRenderHandler(renderer, logger)
	authHandler := NewAuthHandler(db, authService, redisClient, cfg.Auth, logger)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.WSAllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(authService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware, passwordGate)

		blockGroup := protected.Group("/blocks")
		{
			blockGroup.GET("", blockHandler.ListBlocks)
			blockGroup.POST("", blockHandler.AppendBlock)
			blockGroup.PUT("", blockHandler.SyncCanvas)
			blockGroup.POST("/reorder", blockHandler.ReorderBlocks)
			blockGroup.PATCH("/:id", blockHandler.UpdateBlock)
			blockGroup.DELETE("/:id", blockHandler.DeleteBlock)
		}

		protected.GET("/library", blockHandler.Library)
		protected.POST("/render", renderHandler.Render)

		resumeGroup := protected.Group("/resumes")
		{
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
			resumeGroup.GET("/:id/blocks", resumeHandler.ResumeBlocks)
			resumeGroup.POST("/:id/blocks", resumeHandler.AppendBlockToResume)
			resumeGroup.GET("/:id/latex", resumeHandler.ResumeLatex)
			resumeGroup.POST("/:id/export", resumeHandler.ExportResume)
			resumeGroup.GET("/:id/download-link", resumeHandler.GetDownloadLink)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
	{
		internal.GET("/users/:user_id/resumes/:id/latex", resumeHandler.InternalResumeLatex)
	}
}
