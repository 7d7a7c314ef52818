package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mediavault/mediavault/cmd/server/middleware"
	"github.com/mediavault/mediavault/internal/auth"
	"github.com/mediavault/mediavault/internal/upload"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/rs/zerolog/log"
)

func setupUploadRoutes(api *gin.RouterGroup, authService *auth.Service, uploadService *upload.Service) {
	uploads := api.Group("/uploads")
	uploads.Use(middleware.AuthMiddleware(authService))
	{
		uploads.POST("", handleInitUpload(uploadService))
		uploads.GET("/:token", handleGetUploadSession(uploadService))
		uploads.PUT("/:token/chunks/:partNumber", handleUploadChunk(uploadService))
		uploads.POST("/:token/complete", handleCompleteUpload(uploadService))
		uploads.DELETE("/:token", handleAbortUpload(uploadService))
	}
}

// uploadErrorResponse maps session manager errors onto HTTP statuses.
// Validation problems are the client's fault, state conflicts are
// conflicts, and object store failures surface as a bad gateway so the
// client knows a retry may succeed.
func uploadErrorResponse(c *gin.Context, err error) {
	var validationErr *upload.ValidationError
	var terminalErr *upload.SessionTerminalError
	var incompleteErr *upload.IncompleteUploadError
	var upstreamErr *upload.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   validationErr.Error(),
		})
	case errors.Is(err, upload.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, types.APIResponse{
			Success: false,
			Error:   "Upload session not found",
		})
	case errors.As(err, &terminalErr):
		c.JSON(http.StatusConflict, types.APIResponse{
			Success: false,
			Error:   terminalErr.Error(),
		})
	case errors.As(err, &incompleteErr):
		c.JSON(http.StatusConflict, types.APIResponse{
			Success: false,
			Error:   incompleteErr.Error(),
		})
	case errors.As(err, &upstreamErr):
		log.Error().Err(err).Msg("object store operation failed")
		c.JSON(http.StatusBadGateway, types.APIResponse{
			Success: false,
			Error:   "Object storage is unavailable, please retry",
		})
	default:
		log.Error().Err(err).Msg("upload operation failed")
		c.JSON(http.StatusInternalServerError, types.APIResponse{
			Success: false,
			Error:   "Internal server error",
		})
	}
}

func handleInitUpload(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		var req types.InitUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		session, err := uploadService.Initiate(c.Request.Context(), &req, user.ID)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Upload session created",
			Data: types.InitUploadResponse{
				SessionToken: session.SessionToken,
				UploadID:     session.UploadID,
				ChunkSize:    session.ChunkSize,
				TotalChunks:  session.TotalChunks,
			},
		})
	}
}

func handleGetUploadSession(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		session, err := uploadService.GetSession(c.Request.Context(), c.Param("token"), user.ID)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    session,
		})
	}
}

func handleUploadChunk(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		partNumber, err := strconv.ParseInt(c.Param("partNumber"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid part number",
			})
			return
		}

		session, err := uploadService.GetSession(c.Request.Context(), c.Param("token"), user.ID)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		if c.Request.ContentLength <= 0 {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Chunk body is required",
			})
			return
		}

		resp, err := uploadService.AcceptChunk(c.Request.Context(), session, int32(partNumber), c.Request.Body, c.Request.ContentLength)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    resp,
		})
	}
}

func handleCompleteUpload(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		session, err := uploadService.GetSession(c.Request.Context(), c.Param("token"), user.ID)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		asset, err := uploadService.Complete(c.Request.Context(), session)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Upload completed",
			Data:    asset,
		})
	}
}

func handleAbortUpload(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		session, err := uploadService.GetSession(c.Request.Context(), c.Param("token"), user.ID)
		if err != nil {
			uploadErrorResponse(c, err)
			return
		}

		if err := uploadService.Abort(c.Request.Context(), session); err != nil {
			uploadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Upload session aborted",
		})
	}
}
