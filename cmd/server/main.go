package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mediavault/mediavault/internal/assets"
	"github.com/mediavault/mediavault/internal/auth"
	"github.com/mediavault/mediavault/internal/common"
	"github.com/mediavault/mediavault/internal/objectstore"
	"github.com/mediavault/mediavault/internal/settings"
	"github.com/mediavault/mediavault/internal/stats"
	"github.com/mediavault/mediavault/internal/upload"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting MediaVault server")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()

	store, err := objectstore.NewS3Store(&cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	authService := auth.NewService(db, cache, &cfg.Auth)
	assetService := assets.NewService(db, store)
	uploadService := upload.NewService(db, store, assetService, &cfg.Upload)
	settingsService := settings.NewService(db.DB, cache, 5*time.Minute)
	statsService := stats.NewService(db.DB)

	router := setupRouter(authService, uploadService, assetService, settingsService, statsService, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}

func setupRouter(
	authService *auth.Service,
	uploadService *upload.Service,
	assetService *assets.Service,
	settingsService *settings.Service,
	statsService *stats.Service,
	cfg *config.Config,
) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mediavault",
			"time":    time.Now().UTC(),
		})
	})

	api := router.Group("/api/v1")
	{
		setupAuthRoutes(api, authService)
		setupUploadRoutes(api, authService, uploadService)
		setupAssetRoutes(api, authService, assetService)
		setupAdminRoutes(api, authService, uploadService, settingsService, statsService, cfg)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
