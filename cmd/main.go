package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"matchpool/internal/auth"
	"matchpool/internal/config"
	"matchpool/internal/database"
	"matchpool/internal/handlers"
	"matchpool/internal/jobs"
	"matchpool/internal/ledger"
	"matchpool/internal/oracle"
	"matchpool/internal/repository"
	"matchpool/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Initialize the token gateway: Solana client behind retry and a circuit
	// breaker.
	tokenClient := ledger.NewSolanaTokenClient(cfg.Ledger.Network, cfg.Ledger.TokenMintAddress)
	retryPolicy := ledger.NewRetryPolicy(
		cfg.Ledger.RetryMaxAttempts,
		cfg.Ledger.RetryBaseDelay,
		cfg.Ledger.RetryMaxDelay,
		cfg.Ledger.RetryBackoffMultiplier,
	)
	breaker := ledger.NewCircuitBreaker(cfg.Ledger.BreakerFailureThreshold, cfg.Ledger.BreakerTimeout)
	gateway := ledger.NewGateway(tokenClient, retryPolicy, breaker, ledger.GatewayConfig{
		BatchSize:       cfg.Ledger.BatchSize,
		MinTransfer:     cfg.Ledger.MinTransfer,
		MaxTransfer:     cfg.Ledger.MaxTransfer,
		QueryTimeout:    cfg.Ledger.QueryTimeout,
		TransferTimeout: cfg.Ledger.TransferTimeout,
	})

	// Initialize oracle client
	oracleClient := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.RequestsPerSecond)

	// Initialize services
	auditService := services.NewAuditService(repo)
	ledgerService := services.NewTransactionLedgerService(repo, gateway, auditService, cfg.Ledger.SigningKey)
	calculator := services.NewWinningsCalculator(cfg.Settlement.CreatorRewardPct, cfg.Settlement.PlatformFeePct)
	orchestrator := services.NewSettlementOrchestrator(repo, oracleClient, calculator, ledgerService, auditService, services.SettlementConfig{
		TreasuryAddress: cfg.Ledger.TreasuryAddress,
	})
	reconciliationService := services.NewReconciliationService(repo, gateway, auditService, services.ReconciliationConfig{
		Tolerance: cfg.Reconciliation.Tolerance,
		SweepRate: cfg.Reconciliation.SweepRate,
	})
	userService := services.NewUserService(repo)
	marketService := services.NewMarketService(repo, ledgerService, auditService, services.MarketConfig{
		CreatorRewardPct:  cfg.Settlement.CreatorRewardPct,
		PlatformFeePct:    cfg.Settlement.PlatformFeePct,
		MaxEntriesPerUser: cfg.Settlement.MaxEntriesPerUser,
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	marketHandler := handlers.NewMarketHandler(marketService)
	settlementHandler := handlers.NewSettlementHandler(
		orchestrator,
		reconciliationService,
		ledgerService,
		auditService,
		userService,
		gateway,
	)

	// Start background jobs
	sweeper := jobs.NewSettlementSweeper(orchestrator, cfg.Settlement.SweepInterval)
	go sweeper.Start()
	log.Println("Settlement sweep job started")

	reconciliationJob := jobs.NewReconciliationJob(reconciliationService, cfg.Reconciliation.SweepInterval)
	go reconciliationJob.Start()
	log.Println("Reconciliation job started")

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite dev server
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/wallet", authHandler.WalletLogin)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	// Authenticated /auth/me routes
	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", authHandler.GetMe)
		authProtected.GET("/me/transactions", authHandler.GetMyTransactions)
	}

	// Public market routes
	router.GET("/api/markets", marketHandler.ListMarkets)
	router.GET("/api/markets/:id", marketHandler.GetMarket)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/markets", marketHandler.CreateMarket)
		api.POST("/markets/:id/join", marketHandler.JoinMarket)

		// Settlement engine surface (admin checked per handler)
		settlement := api.Group("/settlement")
		{
			settlement.POST("/run", settlementHandler.RunCycle)
			settlement.POST("/markets/:id/settle", settlementHandler.SettleMarket)
			settlement.GET("/markets/:id/transactions", settlementHandler.GetMarketTransactions)
			settlement.POST("/reconcile", settlementHandler.ReconcileAll)
			settlement.POST("/reconcile/:user_id", settlementHandler.ReconcileUser)
			settlement.GET("/audit", settlementHandler.GetAuditTrail)
		}
	}

	// Public dependency health
	router.GET("/api/settlement/health", settlementHandler.Health)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)
		log.Printf("Wallet auth: POST http://localhost:%s/auth/wallet", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	sweeper.Stop()
	reconciliationJob.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
