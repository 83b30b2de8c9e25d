package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// SettingsAdminHandler serves the key-value settings endpoints.
type SettingsAdminHandler struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
}

// NewSettingsAdminHandler creates a new SettingsAdminHandler.
func NewSettingsAdminHandler(settings repository.SettingsRepository, logger *zap.Logger) *SettingsAdminHandler {
	return &SettingsAdminHandler{settings: settings, logger: logger}
}

// List returns every stored setting.
func (h *SettingsAdminHandler) List(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list settings", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list settings")
		return
	}
	if settings == nil {
		settings = []*models.Setting{}
	}
	c.JSON(http.StatusOK, settings)
}

// Get returns a single setting by key.
func (h *SettingsAdminHandler) Get(c *gin.Context) {
	setting, err := h.settings.Find(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.logger.Error("failed to get setting", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to get setting")
		return
	}
	if setting == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Setting not found")
		return
	}
	c.JSON(http.StatusOK, setting)
}

type settingUpsertRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// Upsert creates or overwrites a setting.
func (h *SettingsAdminHandler) Upsert(c *gin.Context) {
	var req settingUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if err := h.settings.Set(c.Request.Context(), req.Key, req.Value); err != nil {
		h.logger.Error("failed to store setting", zap.String("key", req.Key), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to store setting")
		return
	}
	c.JSON(http.StatusOK, models.Setting{Key: req.Key, Value: req.Value})
}
