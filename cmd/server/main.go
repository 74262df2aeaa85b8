package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cafe_backend/internal/cache"
	"cafe_backend/internal/config"
	"cafe_backend/internal/database"
	"cafe_backend/internal/notify"
	"cafe_backend/internal/payment"
	"cafe_backend/internal/repositories"
	"cafe_backend/internal/router"
	"cafe_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	utils.InitLogger(cfg.LogLevel, !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.ApplyMigrations(db, cfg.Database.Migrations); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	deps := router.Dependencies{DB: db, Config: cfg}

	var events notify.EventPublisher
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if cfg.IsProduction() {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable: running without menu cache, rate limiting and live board")
	} else {
		defer closeRedis(redisClient)
		publisher := cache.NewPublisher(redisClient)
		events = publisher
		deps.Events = publisher
		deps.MenuCache = cache.NewMenuCache(redisClient, cfg.Orders.MenuCacheTTL)
		deps.Limiter = cache.NewRateLimiter(redisClient, "orders", cfg.Orders.RateLimit, cfg.Orders.RateWindow)
	}

	gateway := payment.NewRazorpayGateway(cfg.Razorpay)
	if gateway.IsMock() {
		log.Warn().Msg("Razorpay keys not configured, checkout orders and refunds are simulated")
	}
	deps.Gateway = gateway

	push, err := notify.NewPushSender(ctx, cfg.FirebaseCredsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise push notifications")
	}
	dispatcher := notify.NewDispatcher(repositories.NewAuthRepository(db), notify.NewWhatsAppClient(cfg.WhatsApp), push, events, cfg.AdminAlertPhone)
	deps.Notifier = dispatcher

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), utils.RequestID(), utils.GinLogger())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", utils.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{utils.RequestIDHeader, "Retry-After"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	engine.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Setup all application routes
	if err := router.Setup(engine, deps); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up routes")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Port, "env": cfg.AppEnv})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	utils.LogInfo("Shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Graceful shutdown failed")
	}
	dispatcher.Wait()
	utils.LogInfo("Server stopped")
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		utils.LogError(err, "Failed to close redis client")
	}
}
