package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mediavault/mediavault/cmd/server/middleware"
	"github.com/mediavault/mediavault/internal/auth"
	"github.com/mediavault/mediavault/internal/settings"
	"github.com/mediavault/mediavault/internal/stats"
	"github.com/mediavault/mediavault/internal/upload"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
)

func setupAdminRoutes(
	api *gin.RouterGroup,
	authService *auth.Service,
	uploadService *upload.Service,
	settingsService *settings.Service,
	statsService *stats.Service,
	cfg *config.Config,
) {
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(authService))
	admin.Use(middleware.AdminOnlyMiddleware())
	{
		admin.GET("/settings", handleListSettings(settingsService))
		admin.GET("/settings/:key", handleGetSetting(settingsService))
		admin.PUT("/settings/:key", handleSetSetting(settingsService))
		admin.GET("/stats", handleGetStats(statsService))
		admin.POST("/cleanup", handleCleanup(uploadService, cfg))
	}
}

func handleListSettings(settingsService *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := settingsService.All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    all,
		})
	}
}

func handleGetSetting(settingsService *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")

		value, err := settingsService.Get(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data: map[string]string{
				"key":   key,
				"value": value,
			},
		})
	}
}

func handleSetSetting(settingsService *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)
		key := c.Param("key")

		var req struct {
			Value string `json:"value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		if err := settingsService.Set(c.Request.Context(), key, req.Value, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Setting updated successfully",
		})
	}
}

func handleGetStats(statsService *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		catalogStats, err := statsService.GetCatalogStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    catalogStats,
		})
	}
}

// handleCleanup triggers a stale-session sweep on demand, the same
// operation cmd/cleanup runs from cron
func handleCleanup(uploadService *upload.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OlderThanHours int `json:"older_than_hours"`
		}
		// Body is optional; an empty body uses the configured threshold
		_ = c.ShouldBindJSON(&req)

		threshold := cfg.Upload.StaleAfter
		if req.OlderThanHours > 0 {
			threshold = time.Duration(req.OlderThanHours) * time.Hour
		}

		result, err := uploadService.SweepStale(c.Request.Context(), threshold)
		if err != nil {
			log.Error().Err(err).Msg("stale session sweep failed")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Cleanup complete",
			Data:    result,
		})
	}
}
