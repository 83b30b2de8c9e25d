package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/version"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	groups    repository.GroupRepository
	providers repository.ProviderRepository
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(groups repository.GroupRepository, providers repository.ProviderRepository) *HealthHandler {
	return &HealthHandler{groups: groups, providers: providers}
}

// Health returns the service health status. The counts come from the
// database, so a successful response doubles as a storage liveness check.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	_, groupTotal, err := h.groups.FindAll(ctx, 0, 1)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"version": version.Short(),
		})
		return
	}
	_, providerTotal, err := h.providers.FindAll(ctx, repository.ProviderFilter{Limit: 1})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"version": version.Short(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   version.Short(),
		"groups":    groupTotal,
		"providers": providerTotal,
	})
}
