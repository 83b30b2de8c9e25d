package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// RemoteHandler serves the key-scoped management endpoints. Callers
// authenticate with their client API key in the query string, not an
// admin token, and can only see or reorder the groups their key is
// linked to.
type RemoteHandler struct {
	keys        repository.APIKeyRepository
	providers   repository.ProviderRepository
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

// NewRemoteHandler creates a new RemoteHandler.
func NewRemoteHandler(
	keys repository.APIKeyRepository,
	providers repository.ProviderRepository,
	memberships repository.MembershipRepository,
	logger *zap.Logger,
) *RemoteHandler {
	return &RemoteHandler{keys: keys, providers: providers, memberships: memberships, logger: logger}
}

// Status returns the caller's groups with member providers in priority
// order.
func (h *RemoteHandler) Status(c *gin.Context) {
	key := h.keyFromQuery(c, "Invalid or inactive API Key")
	if key == nil {
		return
	}
	results := make([]models.RemoteGroup, 0, len(key.Groups))
	for _, g := range key.Groups {
		edges, err := h.memberships.ListByGroup(c.Request.Context(), g.ID)
		if err != nil {
			h.remoteError(c, err)
			return
		}
		providers := make([]models.RemoteProvider, 0, len(edges))
		for _, edge := range edges {
			p, err := h.providers.FindByID(c.Request.Context(), edge.ProviderID)
			if err != nil {
				h.remoteError(c, err)
				return
			}
			if p == nil {
				continue
			}
			providers = append(providers, models.RemoteProvider{
				ID:       p.ID,
				Name:     p.Name,
				Model:    p.Model,
				Priority: edge.Priority,
			})
		}
		results = append(results, models.RemoteGroup{ID: g.ID, Name: g.Name, Providers: providers})
	}
	c.JSON(http.StatusOK, results)
}

// MoveToTop promotes one provider to the front of a group and renumbers
// the rest behind it.
func (h *RemoteHandler) MoveToTop(c *gin.Context) {
	key := h.keyFromQuery(c, "Invalid API Key")
	if key == nil {
		return
	}
	gid, ok := int64Query(c, "group_id")
	if !ok {
		return
	}
	pid, ok := int64Query(c, "provider_id")
	if !ok {
		return
	}
	if !keyHasGroup(key, gid) {
		errorResponse(c, http.StatusForbidden, "permission_denied_error", "Group not authorized for this API Key")
		return
	}

	edges, err := h.memberships.ListByGroup(c.Request.Context(), gid)
	if err != nil {
		h.remoteError(c, err)
		return
	}
	order := make([]int64, 0, len(edges))
	found := false
	for _, edge := range edges {
		if edge.ProviderID == pid {
			found = true
			continue
		}
		order = append(order, edge.ProviderID)
	}
	if !found {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Provider not found in this group")
		return
	}
	order = append([]int64{pid}, order...)

	if err := h.renumber(c, gid, order); err != nil {
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Priority updated successfully"})
}

// UpdateOrder rewrites a group's provider priorities from an explicit id
// list.
func (h *RemoteHandler) UpdateOrder(c *gin.Context) {
	key := h.keyFromQuery(c, "Invalid API Key")
	if key == nil {
		return
	}
	gid, ok := int64Query(c, "group_id")
	if !ok {
		return
	}
	var providerIDs []int64
	if err := c.ShouldBindJSON(&providerIDs); err != nil {
		validationError(c, err)
		return
	}
	if !keyHasGroup(key, gid) {
		errorResponse(c, http.StatusForbidden, "permission_denied_error", "Group not authorized")
		return
	}
	if err := h.renumber(c, gid, providerIDs); err != nil {
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Order updated successfully"})
}

// renumber assigns priorities 1..n following the order of ids.
func (h *RemoteHandler) renumber(c *gin.Context, groupID int64, ids []int64) error {
	for idx, pid := range ids {
		if err := h.memberships.Upsert(c.Request.Context(), pid, groupID, idx+1); err != nil {
			return err
		}
	}
	return nil
}

func (h *RemoteHandler) keyFromQuery(c *gin.Context, detail string) *models.APIKey {
	key, err := h.keys.FindByKey(c.Request.Context(), c.Query("api_key"))
	if err != nil {
		h.remoteError(c, err)
		return nil
	}
	if key == nil || !key.IsActive {
		errorResponse(c, http.StatusUnauthorized, "authentication_error", detail)
		return nil
	}
	return key
}

func (h *RemoteHandler) remoteError(c *gin.Context, err error) {
	h.logger.Error("remote management request failed", zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, "api_error", "Request failed")
}

func keyHasGroup(key *models.APIKey, groupID int64) bool {
	for _, g := range key.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}
