package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"video-relay/dto"
	"video-relay/repository"
	"video-relay/service"
)

const fallbackPage = `<html>
    <body>
        <h1>AI Video Generator API (Free APIs)</h1>
        <p>Frontend files not found. Use POST /generate-video to generate videos.</p>
        <p>Supports: Luma Dream Machine, Hugging Face, Replicate</p>
    </body>
</html>`

type HTTPHandler struct {
	svc       service.Service
	staticDir string
}

func NewHTTPHandler(svc service.Service, staticDir string) *HTTPHandler {
	return &HTTPHandler{svc: svc, staticDir: staticDir}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/", h.Index)
	r.POST("/generate-video", h.GenerateVideo)
	r.GET("/status/:generation_id", h.GetStatus)
	r.GET("/health", h.Health)
	r.GET("/api-info", h.APIInfo)
	r.DELETE("/cleanup", h.Cleanup)

	if h.staticDir != "" {
		if info, err := os.Stat(h.staticDir); err == nil && info.IsDir() {
			r.Static("/static", h.staticDir)
		}
	}
}

func (h *HTTPHandler) Index(c *gin.Context) {
	page, err := os.ReadFile(filepath.Join(h.staticDir, "index.html"))
	if err != nil {
		page = []byte(fallbackPage)
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *HTTPHandler) GenerateVideo(c *gin.Context) {
	var req dto.GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: validationErr.Detail})
		case errors.Is(err, service.ErrDispatchFailed), errors.Is(err, repository.ErrCapacityExceeded):
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Detail: "Video generation is temporarily unavailable"})
		default:
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to submit generation")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("generation_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Generation ID not found"})
		return
	}

	status, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Generation ID not found"})
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to get generation status")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *HTTPHandler) Health(c *gin.Context) {
	health, err := h.svc.Health(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to build health report")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h *HTTPHandler) APIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.APIInfo())
}

func (h *HTTPHandler) Cleanup(c *gin.Context) {
	resp, err := h.svc.Cleanup(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to clean up generations")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
