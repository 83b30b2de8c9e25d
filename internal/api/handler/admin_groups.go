package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// GroupAdminHandler serves the group management endpoints.
type GroupAdminHandler struct {
	groups      repository.GroupRepository
	providers   repository.ProviderRepository
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

// NewGroupAdminHandler creates a new GroupAdminHandler.
func NewGroupAdminHandler(
	groups repository.GroupRepository,
	providers repository.ProviderRepository,
	memberships repository.MembershipRepository,
	logger *zap.Logger,
) *GroupAdminHandler {
	return &GroupAdminHandler{groups: groups, providers: providers, memberships: memberships, logger: logger}
}

// groupView is a group with its member providers, the shape group
// endpoints respond with.
type groupView struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Providers []*models.Provider `json:"providers"`
}

type groupCreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create registers a new group. Names are unique.
func (h *GroupAdminHandler) Create(c *gin.Context) {
	var req groupCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	existing, err := h.groups.FindByName(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.Error("failed to look up group", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to create group")
		return
	}
	if existing != nil {
		errorResponse(c, http.StatusBadRequest, "invalid_request_error", "Group with this name already exists")
		return
	}
	id, err := h.groups.Insert(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.Error("failed to create group", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to create group")
		return
	}
	c.JSON(http.StatusOK, groupView{ID: id, Name: req.Name, Providers: []*models.Provider{}})
}

// List returns a page of groups with their member providers.
func (h *GroupAdminHandler) List(c *gin.Context) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)
	groups, total, err := h.groups.FindAll(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("failed to list groups", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list groups")
		return
	}
	items := make([]groupView, 0, len(groups))
	for _, g := range groups {
		providers, perr := h.groups.ProvidersFor(c.Request.Context(), g.ID)
		if perr != nil {
			h.logger.Error("failed to load group providers", zap.Error(perr))
			errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list groups")
			return
		}
		if providers == nil {
			providers = []*models.Provider{}
		}
		items = append(items, groupView{ID: g.ID, Name: g.Name, Providers: providers})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// Delete removes a group along with its provider and key links.
func (h *GroupAdminHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	existing, err := h.groups.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to look up group", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete group")
		return
	}
	if existing == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Group not found")
		return
	}
	if err := h.groups.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to delete group", zap.Int64("group_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to delete group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Group deleted"})
}

// AddProvider links a provider into a group. The optional body may carry
// a priority; it defaults to 1.
func (h *GroupAdminHandler) AddProvider(c *gin.Context) {
	gid, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	pid, ok := pathID(c, "provider_id")
	if !ok {
		return
	}
	var body struct {
		Priority *int `json:"priority"`
	}
	// The body is optional; a bare POST means priority 1.
	_ = c.ShouldBindJSON(&body)
	priority := 1
	if body.Priority != nil {
		priority = *body.Priority
	}

	provider, err := h.providers.FindByID(c.Request.Context(), pid)
	if err != nil {
		h.logger.Error("failed to look up provider", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group")
		return
	}
	group, err := h.groups.FindByID(c.Request.Context(), gid)
	if err != nil {
		h.logger.Error("failed to look up group", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group")
		return
	}
	if provider == nil || group == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Provider or Group not found")
		return
	}
	if err := h.memberships.Upsert(c.Request.Context(), pid, gid, priority); err != nil {
		h.logger.Error("failed to link provider to group",
			zap.Int64("provider_id", pid), zap.Int64("group_id", gid), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group")
		return
	}
	groups, err := h.providers.GroupsFor(c.Request.Context(), pid)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group")
		return
	}
	provider.Groups = groups
	c.JSON(http.StatusOK, provider)
}

// RemoveProvider unlinks a provider from a group.
func (h *GroupAdminHandler) RemoveProvider(c *gin.Context) {
	gid, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	pid, ok := pathID(c, "provider_id")
	if !ok {
		return
	}
	removed, err := h.memberships.Remove(c.Request.Context(), pid, gid)
	if err != nil {
		h.logger.Error("failed to unlink provider from group",
			zap.Int64("provider_id", pid), zap.Int64("group_id", gid), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group")
		return
	}
	if !removed {
		errorResponse(c, http.StatusNotFound, "not_found_error",
			"Provider or Group not found, or provider not in group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Provider removed from group"})
}

type groupMemberUpdate struct {
	ID       int64 `json:"id"`
	Priority *int  `json:"priority"`
	Selected bool  `json:"selected"`
}

// ReplaceProviders swaps a group's whole membership in one call. Entries
// with selected=false are dropped; missing priorities default to 99 so
// unordered members sort last.
func (h *GroupAdminHandler) ReplaceProviders(c *gin.Context) {
	gid, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	var payload []groupMemberUpdate
	if err := c.ShouldBindJSON(&payload); err != nil {
		validationError(c, err)
		return
	}
	members := make([]models.Membership, 0, len(payload))
	for _, m := range payload {
		if !m.Selected {
			continue
		}
		priority := 99
		if m.Priority != nil {
			priority = *m.Priority
		}
		members = append(members, models.Membership{ProviderID: m.ID, GroupID: gid, Priority: priority})
	}
	if err := h.memberships.ReplaceForGroup(c.Request.Context(), gid, members); err != nil {
		h.logger.Error("failed to replace group providers", zap.Int64("group_id", gid), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to update group providers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Group providers updated"})
}
