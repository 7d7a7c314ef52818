package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mediavault/mediavault/cmd/server/middleware"
	"github.com/mediavault/mediavault/internal/assets"
	"github.com/mediavault/mediavault/internal/auth"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
)

func setupAssetRoutes(api *gin.RouterGroup, authService *auth.Service, assetService *assets.Service) {
	group := api.Group("/assets")
	group.Use(middleware.AuthMiddleware(authService))
	{
		group.GET("", handleListAssets(assetService))
		group.GET("/:id", handleGetAsset(assetService))
		group.GET("/:id/download", handleDownloadAsset(assetService))
		group.DELETE("/:id", handleDeleteAsset(assetService))
	}
}

func handleListAssets(assetService *assets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		filter := &types.AssetFilter{
			Filename: c.Query("filename"),
			MimeType: c.Query("mime_type"),
			Limit:    perPage,
			Offset:   (page - 1) * perPage,
		}

		result, total, err := assetService.List(c.Request.Context(), user.ID, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		totalPages := int((total + int64(perPage) - 1) / int64(perPage))
		c.JSON(http.StatusOK, types.PaginatedResponse{
			APIResponse: types.APIResponse{
				Success: true,
				Data:    result,
			},
			Pagination: &types.PaginationInfo{
				Page:       page,
				PerPage:    perPage,
				Total:      total,
				TotalPages: totalPages,
			},
		})
	}
}

func handleGetAsset(assetService *assets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid asset ID",
			})
			return
		}

		asset, err := assetService.Get(c.Request.Context(), id, user.ID)
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "Asset not found",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    asset,
		})
	}
}

func handleDownloadAsset(assetService *assets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid asset ID",
			})
			return
		}

		asset, body, err := assetService.Download(c.Request.Context(), id, user.ID)
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "Asset not found",
			})
			return
		}
		defer body.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asset.Filename))
		c.Header("Content-Type", asset.MimeType)
		if asset.Size > 0 {
			c.Header("Content-Length", strconv.FormatInt(asset.Size, 10))
		}

		if _, err := io.Copy(c.Writer, body); err != nil {
			log.Error().Err(err).
				Str("asset_id", asset.ID.String()).
				Msg("failed to stream asset")
		}
	}
}

func handleDeleteAsset(assetService *assets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid asset ID",
			})
			return
		}

		if err := assetService.Delete(c.Request.Context(), id, user.ID); err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Asset deleted successfully",
		})
	}
}
