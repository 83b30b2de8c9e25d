package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// keywordUpdateColumns lists the columns a PATCH payload may touch.
var keywordUpdateColumns = map[string]struct{}{
	"keyword":     {},
	"description": {},
	"is_active":   {},
}

// KeywordAdminHandler serves the failure keyword management endpoints.
type KeywordAdminHandler struct {
	keywords repository.KeywordRepository
	logger   *zap.Logger
}

// NewKeywordAdminHandler creates a new KeywordAdminHandler.
func NewKeywordAdminHandler(keywords repository.KeywordRepository, logger *zap.Logger) *KeywordAdminHandler {
	return &KeywordAdminHandler{keywords: keywords, logger: logger}
}

// List returns a page of failure keywords.
func (h *KeywordAdminHandler) List(c *gin.Context) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)
	keywords, err := h.keywords.FindAll(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("failed to list keywords", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list keywords")
		return
	}
	if keywords == nil {
		keywords = []*models.ErrorKeyword{}
	}
	c.JSON(http.StatusOK, keywords)
}

type keywordCreateRequest struct {
	Keyword     string  `json:"keyword" binding:"required"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// Create registers a new failure keyword. New keywords are active unless
// the payload says otherwise.
func (h *KeywordAdminHandler) Create(c *gin.Context) {
	var req keywordCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	kw := &models.ErrorKeyword{Keyword: req.Keyword, Description: req.Description, IsActive: true}
	if req.IsActive != nil {
		kw.IsActive = *req.IsActive
	}
	id, err := h.keywords.Insert(c.Request.Context(), kw)
	if err != nil {
		h.logger.Error("failed to create keyword", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to create keyword")
		return
	}
	created, err := h.keywords.FindByID(c.Request.Context(), id)
	if err != nil || created == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load created keyword")
		return
	}
	c.JSON(http.StatusOK, created)
}

// Update applies a partial update to a keyword.
func (h *KeywordAdminHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "keyword_id")
	if !ok {
		return
	}
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		validationError(c, err)
		return
	}
	updates := make(map[string]any, len(payload))
	for field, value := range payload {
		if _, allowed := keywordUpdateColumns[field]; allowed {
			updates[field] = value
		}
	}

	existing, err := h.keywords.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to look up keyword", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update keyword")
		return
	}
	if existing == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Keyword not found")
		return
	}
	if err := h.keywords.Update(c.Request.Context(), id, updates); err != nil {
		h.logger.Error("failed to update keyword", zap.Int64("keyword_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update keyword")
		return
	}
	updated, err := h.keywords.FindByID(c.Request.Context(), id)
	if err != nil || updated == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load updated keyword")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a keyword. Deleting an unknown id is not an error.
func (h *KeywordAdminHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "keyword_id")
	if !ok {
		return
	}
	if err := h.keywords.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to delete keyword", zap.Int64("keyword_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete keyword")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Keyword deleted"})
}
