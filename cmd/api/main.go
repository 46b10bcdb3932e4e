package main

import (
	"log"
	"time"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           SaaS Platform API
// @version         1.0
// @description     Multi-tenant backend: auth with refresh rotation, onboarding wizard, Stripe billing.
// @host            localhost:8080
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg := config.Load()

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	secret := []byte(cfg.AccessTokenSecret)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	storeRepo := repository.NewStoreRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	onboardingRepo := repository.NewOnboardingRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)

	emailSender := service.NewResendSender(cfg.ResendAPIKey, cfg.ResendEmail)
	stripeGateway := service.NewStripeGateway(cfg.StripeSecretKey)

	authService := service.NewAuthService(
		userRepo, codeRepo, sessionRepo, companyRepo, storeRepo, emailSender,
		secret, time.Duration(cfg.AccessTokenTTLMin)*time.Minute, cfg.RefreshLifetimeDay,
	)
	companyService := service.NewCompanyService(
		companyRepo, storeRepo, onboardingRepo, invitationRepo, userRepo, txManager, emailSender,
	)
	onboardingService := service.NewOnboardingService(
		onboardingRepo, catalogRepo, storeRepo, companyRepo, billingRepo, txManager,
	)
	pricingService := service.NewPricingService(catalogRepo)
	billingService := service.NewBillingService(
		companyRepo, catalogRepo, onboardingRepo, billingRepo, userRepo,
		onboardingService, pricingService, stripeGateway, txManager,
	)
	webhookService := service.NewWebhookService(
		catalogRepo, billingRepo, companyRepo, userRepo, emailSender, wsHub,
	)

	// Initialize Handlers
	authHandler := handler.NewAuthHandler(
		authService, cfg.AllowedOrigins, cfg.RefreshLifetimeDay,
		middleware.NewRateLimiter(5, time.Minute),
		middleware.NewRateLimiter(10, time.Minute),
	)
	sharedHandler := handler.NewSharedHandler(companyService, onboardingService, pricingService)
	billingHandler := handler.NewBillingHandler(billingService, pricingService, onboardingService)
	webhookHandler := handler.NewWebhookHandler(webhookService, cfg.StripeWebhookKey)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Fingerprint"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret)
	})

	// Register API Routes
	requireAuth := middleware.RequireAuth(secret, authService.TouchSession)
	api := router.Group("/api")
	authHandler.RegisterRoutes(api.Group("/auth"), requireAuth)
	sharedHandler.RegisterRoutes(api.Group("/shared"), requireAuth)
	billingHandler.RegisterRoutes(api.Group("/billing"), requireAuth)
	webhookHandler.RegisterRoutes(api.Group("/webhook"))

	log.Printf("Server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
