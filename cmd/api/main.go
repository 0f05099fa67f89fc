package main

import (
	"database/sql"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/larexx40/gowagr-test/internal/auth"
	"github.com/larexx40/gowagr-test/internal/cache"
	"github.com/larexx40/gowagr-test/internal/config"
	"github.com/larexx40/gowagr-test/internal/events"
	"github.com/larexx40/gowagr-test/internal/handler"
	"github.com/larexx40/gowagr-test/internal/ledger"
	"github.com/larexx40/gowagr-test/internal/middleware"
	"github.com/larexx40/gowagr-test/internal/query"
	"github.com/larexx40/gowagr-test/internal/storage/postgres"
	"github.com/larexx40/gowagr-test/internal/users"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database connection
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Redis connection
	redisClient, err := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	store := postgres.NewStore(db)
	balanceCache := cache.NewBalanceCache(redisClient)
	publisher := events.NewPublisher(redisClient)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authSvc := auth.NewService(store, auth.LogMailer{}, publisher, tokens, cfg.OTPTTL)
	userSvc := users.NewService(store, balanceCache)
	engine := ledger.NewEngine(store, store, balanceCache, publisher)
	defer engine.Flush()
	querySvc := query.NewService(store)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	transactionHandler := handler.NewTransactionHandler(engine, querySvc)

	router := gin.Default()
	router.Use(middleware.Logging())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/verify", authHandler.VerifyAccount)
		authRoutes.POST("/resend-otp", authHandler.ResendOTP)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh", authHandler.RefreshToken)
		authRoutes.POST("/forgot-password", authHandler.ForgotPassword)
		authRoutes.POST("/verify-reset-otp", authHandler.VerifyResetOTP)
		authRoutes.POST("/reset-password", authHandler.ResetPassword)
	}

	userRoutes := router.Group("/users", middleware.Auth(cfg.JWTSecret))
	{
		userRoutes.GET("/me", userHandler.GetProfile)
		userRoutes.GET("/me/balance", userHandler.GetBalance)
		userRoutes.PATCH("/me", userHandler.UpdateProfile)
		userRoutes.GET("/:username", userHandler.GetByUsername)
	}

	transactionRoutes := router.Group("/transactions", middleware.Auth(cfg.JWTSecret))
	{
		transactionRoutes.POST("/deposit", transactionHandler.Deposit)
		transactionRoutes.POST("/transfer", transactionHandler.Transfer)
		transactionRoutes.GET("", transactionHandler.List)
		transactionRoutes.GET("/transfers", transactionHandler.ListTransfers)
	}

	log.Printf("API starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
