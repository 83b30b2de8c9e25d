package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/service"
)

// KeyAdminHandler serves the client API key management endpoints.
type KeyAdminHandler struct {
	keys   repository.APIKeyRepository
	logger *zap.Logger
}

// NewKeyAdminHandler creates a new KeyAdminHandler.
func NewKeyAdminHandler(keys repository.APIKeyRepository, logger *zap.Logger) *KeyAdminHandler {
	return &KeyAdminHandler{keys: keys, logger: logger}
}

// List returns keys newest first, each with its groups and call count.
func (h *KeyAdminHandler) List(c *gin.Context) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)
	keys, err := h.keys.FindAll(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("failed to list api keys", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list API keys")
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	c.JSON(http.StatusOK, keys)
}

type keyCreateRequest struct {
	IsActive *bool   `json:"is_active"`
	GroupIDs []int64 `json:"group_ids" binding:"required"`
}

// Create mints a new key. The secret is generated server side and
// returned once in the response.
func (h *KeyAdminHandler) Create(c *gin.Context) {
	var req keyCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if len(req.GroupIDs) == 0 {
		errorResponse(c, http.StatusBadRequest, "invalid_request_error", "One or more group IDs are invalid.")
		return
	}

	raw, err := service.GenerateAPIKey()
	if err != nil {
		h.logger.Error("failed to generate api key", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to generate API key")
		return
	}
	key := &models.APIKey{Key: raw, IsActive: true}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}

	id, err := h.keys.Insert(c.Request.Context(), key, req.GroupIDs)
	if err != nil {
		h.logger.Warn("failed to insert api key", zap.Error(err))
		errorResponse(c, http.StatusBadRequest, "invalid_request_error", "One or more group IDs are invalid.")
		return
	}
	created, err := h.keys.FindByID(c.Request.Context(), id)
	if err != nil || created == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load created API key")
		return
	}
	c.JSON(http.StatusOK, created)
}

type keyUpdateRequest struct {
	IsActive *bool    `json:"is_active"`
	GroupIDs *[]int64 `json:"group_ids"`
}

// Update toggles a key or replaces its group links. Omitted fields are
// left untouched; an explicit empty group list clears all links.
func (h *KeyAdminHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "key_id")
	if !ok {
		return
	}
	var req keyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	existing, err := h.keys.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to look up api key", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update API key")
		return
	}
	if existing == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "API key not found")
		return
	}

	var groupIDs []int64
	if req.GroupIDs != nil {
		groupIDs = *req.GroupIDs
	}
	if err := h.keys.Update(c.Request.Context(), id, req.IsActive, groupIDs); err != nil {
		h.logger.Warn("failed to update api key", zap.Int64("key_id", id), zap.Error(err))
		errorResponse(c, http.StatusBadRequest, "invalid_request_error", "One or more group IDs are invalid.")
		return
	}
	updated, err := h.keys.FindByID(c.Request.Context(), id)
	if err != nil || updated == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load updated API key")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a key. Deleting an unknown id is not an error.
func (h *KeyAdminHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "key_id")
	if !ok {
		return
	}
	if err := h.keys.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to delete api key", zap.Int64("key_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete API key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "API key deleted"})
}
