package routes

import (
	"net/http"
	"time"

	"pathbank/handlers"
	"pathbank/middleware"
	"pathbank/models"
	"pathbank/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	questionHandler *handlers.QuestionHandler,
	workflowHandler *handlers.WorkflowHandler,
	notificationHandler *handlers.NotificationHandler,
	taxonomyHandler *handlers.TaxonomyHandler,
	hub *services.NotificationHub,
	authService *services.AuthService,
	redisClient *redis.Client,
	flagRateLimit int,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			// User profile
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Question bank (published questions, any authenticated user)
			protected.GET("/questions", questionHandler.GetQuestionBank)
			protected.GET("/questions/:id", questionHandler.GetQuestion)

			// Flagging a published question; rate limited per user
			protected.POST("/questions/:id/flag",
				middleware.RateLimit(redisClient, "flag", flagRateLimit, time.Hour),
				workflowHandler.FlagQuestion)

			// Creator routes
			creators := protected.Group("/")
			creators.Use(middleware.RequireRole(models.RoleCreator, models.RoleAdmin))
			{
				creators.POST("/questions", questionHandler.CreateQuestion)
				creators.PUT("/questions/:id", questionHandler.UpdateQuestion)
				creators.DELETE("/questions/:id", workflowHandler.DeleteQuestion)
				creators.GET("/my-questions", questionHandler.GetMyQuestions)
			}

			// Workflow transitions (role checks live in the engine)
			protected.POST("/questions/:id/actions", workflowHandler.ApplyAction)
			protected.GET("/questions/:id/actions", workflowHandler.GetPermittedActions)

			// Reviewer routes
			reviewers := protected.Group("/")
			reviewers.Use(middleware.RequireRole(models.RoleReviewer, models.RoleAdmin))
			{
				reviewers.GET("/review-queue", questionHandler.GetReviewQueue)
				reviewers.GET("/flagged-questions", questionHandler.GetFlaggedQuestions)
			}

			// Notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", notificationHandler.GetNotifications)
				notifications.PUT("/:id/read", notificationHandler.MarkRead)
			}

			// Taxonomy
			protected.GET("/categories", taxonomyHandler.ListCategories)
			protected.GET("/tags", taxonomyHandler.ListTags)

			// Admin routes
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(models.RoleAdmin))
			{
				admin.GET("/users", authHandler.ListUsers)
				admin.PUT("/users/:id/role", authHandler.UpdateUserRole)
				admin.PUT("/users/:id/status", authHandler.UpdateUserStatus)
				admin.POST("/categories", taxonomyHandler.CreateCategory)
				admin.POST("/tags", taxonomyHandler.CreateTag)
			}
		}
	}

	// WebSocket endpoint for live notifications. Browsers cannot set headers
	// on websocket upgrades, so the token rides in the query string.
	router.GET("/ws/notifications", func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
			return
		}

		userID, _, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("websocket upgrade failed")
			return
		}

		logrus.WithField("user_id", userID).Info("notification websocket connected")
		hub.RegisterClient(conn, userID)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
