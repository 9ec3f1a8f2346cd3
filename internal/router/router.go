// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/dipm-backend/internal/config"
	"github.com/javajoker/dipm-backend/internal/handlers"
	"github.com/javajoker/dipm-backend/internal/ledger"
	"github.com/javajoker/dipm-backend/internal/middleware"
	"github.com/javajoker/dipm-backend/internal/services"
	"github.com/javajoker/dipm-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, book *ledger.Book, chain *ledger.Chain) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	storageService, _ := services.NewStorageService(cfg)
	ledgerService := services.NewLedgerService(chain, cfg)

	authService := services.NewAuthService(db, cfg)
	fileService := services.NewFileService(db, storageService, ledgerService)
	paymentService := services.NewPaymentService(db, cfg, book, ledgerService, notificationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	marketHandler := handlers.NewMarketHandler(ledgerService, fileService, authService, notificationService)
	fileHandler := handlers.NewFileHandler(fileService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		ledgerHealthy := true
		if _, err := chain.GetTotalItems(); err != nil {
			ledgerHealthy = false
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"ledger":  ledgerHealthy,
			"storage": storageService.Configured(),
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Marketplace routes
		market := v1.Group("/market")
		{
			market.GET("/items", middleware.OptionalAuth(), marketHandler.ListActiveItems)
			market.GET("/items/:id", middleware.OptionalAuth(), marketHandler.GetItem)
			market.GET("/items/:id/history", marketHandler.GetOwnershipHistory)
			market.GET("/items/:id/renters", marketHandler.GetItemRenters)
			market.GET("/items/:id/quote", marketHandler.QuoteRental)
			market.GET("/rentals/:id", marketHandler.GetRental)
			market.GET("/stats", marketHandler.GetStats)

			// Authenticated routes
			protected := market.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("/items", marketHandler.RegisterItem)
				protected.POST("/items/:id/purchase", marketHandler.PurchaseItem)
				protected.POST("/items/:id/rent", marketHandler.RentItem)
				protected.PUT("/items/:id/prices", marketHandler.UpdateItemPrices)
				protected.POST("/items/:id/deactivate", marketHandler.DeactivateItem)
				protected.GET("/my/items", marketHandler.GetMyItems)
				protected.GET("/my/rentals", marketHandler.GetMyRentals)
				protected.GET("/balance", marketHandler.GetBalance)
			}
		}

		// File routes
		files := v1.Group("/files")
		{
			files.GET("", middleware.OptionalAuth(), fileHandler.ListPublic)
			files.GET("/:id", middleware.OptionalAuth(), fileHandler.GetFile)

			// Authenticated routes
			protected := files.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", middleware.UploadRateLimit(), fileHandler.Upload)
				protected.GET("/my", fileHandler.ListMine)
				protected.GET("/:id/download", fileHandler.Download)
			}
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("/deposits", paymentHandler.CreateDeposit)
			payments.POST("/deposits/confirm", paymentHandler.ConfirmDeposit)
			payments.GET("/deposits", paymentHandler.GetDepositHistory)
			payments.GET("/balance", paymentHandler.GetUserBalance)
		}

		// Notification routes
		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.List)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", "./uploads")
	}

	return r
}
