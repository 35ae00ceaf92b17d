package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/controllers"
	"github.com/regcheck/backend/internal/middleware"
)

// Controllers groups every handler the router mounts
type Controllers struct {
	Auth      *controllers.AuthController
	User      *controllers.UserController
	Document  *controllers.DocumentController
	WebSocket *controllers.WebSocketController
	LLM       *controllers.LLMController
	Cache     *controllers.CacheController
	Health    *controllers.HealthController
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, ctrl Controllers, jwtSecret string) {
	r.GET("/health", ctrl.Health.Health)
	r.GET("/ping", ctrl.Health.Ping)

	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", ctrl.Auth.Login)
			auth.POST("/register", ctrl.Auth.Register)
		}

		// Authenticates inside the socket with the first message
		api.GET("/ws/documents/:id", ctrl.WebSocket.DocumentStatus)

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.POST("/auth/refresh", ctrl.Auth.RefreshToken)
			protected.POST("/auth/change-password", ctrl.Auth.ChangePassword)

			// Users
			users := protected.Group("/users")
			{
				users.GET("/me", ctrl.User.GetCurrentUser)
				users.PUT("/me", ctrl.User.UpdateCurrentUser)
				users.GET("", middleware.AdminOnly(), ctrl.User.GetUsers)
			}

			// Documents
			documents := protected.Group("/documents")
			{
				documents.POST("/upload", ctrl.Document.UploadDocument)
				documents.GET("", ctrl.Document.GetDocuments)
				documents.GET("/:id", ctrl.Document.GetDocument)
				documents.DELETE("/:id", ctrl.Document.DeleteDocument)
				documents.POST("/:id/reanalyze", ctrl.Document.ReanalyzeDocument)
				documents.GET("/:id/jobs", ctrl.Document.GetDocumentJobs)
				documents.GET("/:id/analysis", ctrl.Document.GetAnalysis)
			}

			// LLM Status endpoint
			llm := protected.Group("/llm")
			{
				llm.GET("/status", ctrl.LLM.GetLLMStatus)
				llm.GET("/api-calls", middleware.AdminOnly(), ctrl.LLM.GetLLMAPICalls)
				llm.DELETE("/api-calls", middleware.AdminOnly(), ctrl.LLM.ClearLLMAPICalls)
			}

			// Cache administration
			cacheGroup := protected.Group("/cache", middleware.AdminOnly())
			{
				cacheGroup.GET("/stats", ctrl.Cache.GetStats)
				cacheGroup.DELETE("", ctrl.Cache.ClearCache)
			}
		}
	}
}
