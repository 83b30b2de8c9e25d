package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/service"
)

// providerUpdateColumns lists the columns a PATCH payload may touch.
// Anything else is dropped before the map reaches the repository.
var providerUpdateColumns = map[string]struct{}{
	"name":                            {},
	"api_endpoint":                    {},
	"api_key":                         {},
	"model":                           {},
	"price_per_million_tokens":        {},
	"input_price_per_million_tokens":  {},
	"output_price_per_million_tokens": {},
	"type":                            {},
	"is_active":                       {},
}

// ProviderAdminHandler serves the provider management endpoints.
type ProviderAdminHandler struct {
	providers repository.ProviderRepository
	importer  *service.Importer
	logger    *zap.Logger
}

// NewProviderAdminHandler creates a new ProviderAdminHandler.
func NewProviderAdminHandler(providers repository.ProviderRepository, importer *service.Importer, logger *zap.Logger) *ProviderAdminHandler {
	return &ProviderAdminHandler{providers: providers, importer: importer, logger: logger}
}

type providerCreateRequest struct {
	Name            string   `json:"name" binding:"required"`
	APIEndpoint     string   `json:"api_endpoint" binding:"required"`
	APIKey          string   `json:"api_key" binding:"required"`
	Model           string   `json:"model"`
	PricePerMillion *float64 `json:"price_per_million_tokens"`
	InputPricePerM  *float64 `json:"input_price_per_million_tokens"`
	OutputPricePerM *float64 `json:"output_price_per_million_tokens"`
	Type            string   `json:"type"`
	IsActive        *bool    `json:"is_active"`
}

// Create registers a new upstream provider.
func (h *ProviderAdminHandler) Create(c *gin.Context) {
	var req providerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	p := &models.Provider{
		Name:            req.Name,
		APIEndpoint:     req.APIEndpoint,
		APIKey:          req.APIKey,
		Model:           req.Model,
		PricePerMillion: req.PricePerMillion,
		InputPricePerM:  req.InputPricePerM,
		OutputPricePerM: req.OutputPricePerM,
		Type:            req.Type,
		IsActive:        true,
	}
	if p.Type == "" {
		p.Type = "per_token"
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	id, err := h.providers.Insert(c.Request.Context(), p)
	if err != nil {
		h.logger.Error("failed to create provider", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to create provider")
		return
	}
	created, err := h.loadProvider(c, id)
	if err != nil || created == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load created provider")
		return
	}
	c.JSON(http.StatusOK, created)
}

// List returns a page of providers together with the unpaged total.
func (h *ProviderAdminHandler) List(c *gin.Context) {
	filter := repository.ProviderFilter{
		Name:     c.Query("name_filter"),
		Endpoint: c.Query("endpoint_filter"),
		Offset:   intQuery(c, "skip", 0),
		Limit:    intQuery(c, "limit", 0),
	}
	providers, total, err := h.providers.FindAll(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list providers", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list providers")
		return
	}
	if providers == nil {
		providers = []*models.Provider{}
	}
	for _, p := range providers {
		groups, gerr := h.providers.GroupsFor(c.Request.Context(), p.ID)
		if gerr != nil {
			h.logger.Error("failed to load provider groups", zap.Error(gerr))
			errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list providers")
			return
		}
		p.Groups = groups
	}
	c.JSON(http.StatusOK, gin.H{"items": providers, "total": total})
}

// Get returns a single provider by id.
func (h *ProviderAdminHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "provider_id")
	if !ok {
		return
	}
	p, err := h.loadProvider(c, id)
	if err != nil {
		h.logger.Error("failed to get provider", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to get provider")
		return
	}
	if p == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Provider not found")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Update applies a partial update to a provider.
func (h *ProviderAdminHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "provider_id")
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
		if _, allowed := providerUpdateColumns[field]; allowed {
			updates[field] = value
		}
	}

	existing, err := h.providers.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get provider", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update provider")
		return
	}
	if existing == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Provider not found")
		return
	}
	if err := h.providers.Update(c.Request.Context(), id, updates); err != nil {
		h.logger.Error("failed to update provider", zap.Int64("provider_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update provider")
		return
	}
	updated, err := h.loadProvider(c, id)
	if err != nil || updated == nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load updated provider")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a provider and its group memberships.
func (h *ProviderAdminHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "provider_id")
	if !ok {
		return
	}
	existing, err := h.providers.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get provider", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete provider")
		return
	}
	if existing == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Provider not found")
		return
	}
	if err := h.providers.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to delete provider", zap.Int64("provider_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete provider")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Provider deleted"})
}

// QuickRemove deletes every provider that carries the given upstream key.
// Useful when a whole imported batch has to go.
func (h *ProviderAdminHandler) QuickRemove(c *gin.Context) {
	count, err := h.providers.DeleteByUpstreamKey(c.Request.Context(), c.Param("api_key"))
	if err != nil {
		h.logger.Error("failed to remove providers by key", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to remove providers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("Removed %d providers", count), "count": count})
}

// Sync fetches the remote model catalog once and registers any models
// not yet present. Unlike Import it reports nothing until it is done.
func (h *ProviderAdminHandler) Sync(c *gin.Context) {
	var req service.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	count, err := h.importer.SyncModels(c.Request.Context(), &req)
	if err != nil {
		var uerr *service.UpstreamError
		if errors.As(err, &uerr) {
			errorResponse(c, uerr.StatusCode, "api_error", string(uerr.Body))
			return
		}
		h.logger.Error("model sync failed", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("Synced %d models", count), "count": count})
}

// Import streams model discovery progress as SSE frames while a provider
// row is created for every model found at the remote endpoint.
func (h *ProviderAdminHandler) Import(c *gin.Context) {
	var req service.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	writeSSEHeaders(c)
	for ev := range h.importer.ImportModels(c.Request.Context(), &req) {
		if _, err := c.Writer.Write(ev.SSE()); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// loadProvider fetches a provider with its group links filled in. Returns
// nil without error when the id does not exist.
func (h *ProviderAdminHandler) loadProvider(c *gin.Context, id int64) (*models.Provider, error) {
	p, err := h.providers.FindByID(c.Request.Context(), id)
	if err != nil || p == nil {
		return p, err
	}
	groups, err := h.providers.GroupsFor(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	p.Groups = groups
	return p, nil
}
