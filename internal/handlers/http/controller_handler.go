package http

import (
	"context"
	"net/http"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"
	"callpilot/internal/infrastructure/monitoring"
	apperrors "callpilot/pkg/errors"

	"github.com/gin-gonic/gin"
)

// HealthReporter is the part of the health checker the probes need.
type HealthReporter interface {
	CheckAll(ctx context.Context) monitoring.HealthStatus
	IsReady(ctx context.Context) bool
}

// ControllerHandler exposes the presentation controller's manual controls
// and read model over REST. Errors are attached with c.Error and rendered
// by the error middleware.
type ControllerHandler struct {
	controller ports.PresentationController
	health     HealthReporter
}

func NewControllerHandler(controller ports.PresentationController, health HealthReporter) *ControllerHandler {
	return &ControllerHandler{
		controller: controller,
		health:     health,
	}
}

func (h *ControllerHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api/v1")
	{
		api.GET("/state", h.GetState)
		api.POST("/layout", h.SelectLayout)
		api.POST("/quality", h.SetManualQuality)
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
		api.POST("/pin", h.Pin)
		api.DELETE("/pin", h.ClearPin)
		api.POST("/boost", h.BoostDominantSpeaker)

		// screen share controls
		api.POST("/screen-share", h.SetScreenShareEnabled)
		api.POST("/screen-share/toggle", h.ToggleScreenShare)
		api.POST("/screen-share/preset", h.ApplyScreenSharePreset)

		api.POST("/call/end", h.EndCall)
	}
}

func (h *ControllerHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.State())
}

func (h *ControllerHandler) SelectLayout(c *gin.Context) {
	var req struct {
		Layout *domain.LayoutVariant `json:"layout" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	decision, err := h.controller.SelectLayout(c.Request.Context(), *req.Layout)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *ControllerHandler) SetManualQuality(c *gin.Context) {
	var req struct {
		Tier *domain.QualityTier `json:"tier" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.controller.SetManualQuality(c.Request.Context(), *req.Tier); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.controller.State())
}

func (h *ControllerHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.QualitySettings())
}

// UpdateSettings replaces the quality settings. Fields left out of the
// body keep their current values.
func (h *ControllerHandler) UpdateSettings(c *gin.Context) {
	settings := h.controller.QualitySettings()
	if !bind(c, &settings) {
		return
	}

	if err := h.controller.SetQualitySettings(settings); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.controller.QualitySettings())
}

func (h *ControllerHandler) Pin(c *gin.Context) {
	var req struct {
		SessionID domain.SessionID `json:"session_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	decision, err := h.controller.Pin(c.Request.Context(), req.SessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *ControllerHandler) ClearPin(c *gin.Context) {
	decision, err := h.controller.ClearPin(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *ControllerHandler) BoostDominantSpeaker(c *gin.Context) {
	if err := h.controller.BoostDominantSpeaker(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) SetScreenShareEnabled(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	if err := h.controller.SetScreenShareEnabled(c.Request.Context(), *req.Enabled); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) ToggleScreenShare(c *gin.Context) {
	if err := h.controller.ToggleScreenShare(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) ApplyScreenSharePreset(c *gin.Context) {
	var req struct {
		Preset string `json:"preset" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}

	preset, err := domain.ParseScreenSharePreset(req.Preset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.controller.ApplyScreenSharePreset(c.Request.Context(), preset); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) EndCall(c *gin.Context) {
	h.controller.EndCall(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *ControllerHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *ControllerHandler) Ready(c *gin.Context) {
	if !h.health.IsReady(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// bind decodes the JSON body, attaching a 400 on failure.
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "malformed request body", http.StatusBadRequest))
		return false
	}
	return true
}
