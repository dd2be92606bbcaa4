package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"chatui/config"
	"chatui/database"
	"chatui/handlers"
	"chatui/middleware"
	"chatui/models"
	"chatui/services"
)

func main() {
	cfg := config.Load()

	// Database
	database.Connect(cfg)
	database.Migrate()
	database.ConnectRedis(cfg)

	// Seed demo user
	seedAdminUser(cfg)

	// Services
	events := services.NewEventPublisher(database.RDB)
	aiService := services.NewAIService(cfg)
	mcpClient := services.NewMCPClient(cfg.MCPServerURL)
	chatService := services.NewChatService(database.DB, aiService, mcpClient, events)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg)
	sessionsHandler := handlers.NewSessionsHandler(cfg, events)
	chatHandler := handlers.NewChatHandler(cfg, chatService)
	mcpHandler := handlers.NewMCPHandler(cfg, chatService, mcpClient)
	prefsHandler := handlers.NewPreferencesHandler()
	syncHandler := handlers.NewSyncHandler(cfg)

	// Router
	r := gin.Default()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	// Rate limiter for auth endpoints
	authLimiter := middleware.NewRateLimiter(10, 1*time.Minute)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Auth routes
	auth := r.Group("/api/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Protected routes
	protected := r.Group("/api")
	protected.Use(middleware.AuthRequired(cfg.JWTSecret))
	{
		// User
		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/logout", authHandler.Logout)

		// Sessions
		protected.GET("/sessions", sessionsHandler.List)
		protected.POST("/sessions", sessionsHandler.Create)
		protected.DELETE("/sessions/:id", sessionsHandler.Delete)
		protected.GET("/sessions/:id/messages", sessionsHandler.Messages)

		// Chat
		protected.POST("/sessions/:id/send", chatHandler.SendMessage)

		// MCP tools
		protected.POST("/sessions/:id/mcp-tool", mcpHandler.CallTool)
		protected.GET("/sessions/:id/operations", mcpHandler.Operations)
		protected.GET("/mcp/capabilities", mcpHandler.Capabilities)

		// Preferences
		protected.GET("/preferences", prefsHandler.Get)
		protected.PUT("/preferences", prefsHandler.Update)
	}

	// WebSocket routes (auth via query param)
	r.GET("/ws/sync", syncHandler.HandleWebSocket)

	fmt.Printf("Server starting on :%s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func seedAdminUser(cfg *config.Config) {
	if cfg.AdminPassword == "" {
		return
	}

	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}

	user := models.User{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminUsername + "@example.com",
		PasswordHash: string(hash),
	}

	if err := database.DB.Create(&user).Error; err != nil {
		log.Printf("Failed to create admin user: %v", err)
		return
	}

	fmt.Printf("Admin user '%s' created\n", cfg.AdminUsername)
}
