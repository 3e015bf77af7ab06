package main

import (
	"pathbank/config"
	"pathbank/handlers"
	"pathbank/middleware"
	"pathbank/models"
	"pathbank/routes"
	"pathbank/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env if present; real deployments set env vars directly
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using environment")
	}

	// Load configuration
	cfg := config.Load()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Question{},
		&models.AnswerOption{},
		&models.QuestionImage{},
		&models.Category{},
		&models.Tag{},
		&models.ReviewAction{},
		&models.QuestionFlag{},
		&models.Notification{},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to migrate database")
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	questionService := services.NewQuestionService(db)
	taxonomyService := services.NewTaxonomyService(db)
	notificationService := services.NewNotificationService(db, redisClient)
	workflowStore := services.NewGormWorkflowStore(db)
	workflowService := services.NewWorkflowService(workflowStore, notificationService)

	// Initialize notification hub
	hub := services.NewNotificationHub(redisClient)
	go hub.Run()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	questionHandler := handlers.NewQuestionHandler(questionService)
	workflowHandler := handlers.NewWorkflowHandler(workflowService, questionService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	taxonomyHandler := handlers.NewTaxonomyHandler(taxonomyService)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, questionHandler, workflowHandler, notificationHandler, taxonomyHandler, hub, authService, redisClient, cfg.FlagRateLimit)

	// Start server
	logrus.WithField("port", cfg.Port).Info("Server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
}
