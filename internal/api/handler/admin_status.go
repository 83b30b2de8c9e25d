package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// StatusHandler serves the unauthenticated status endpoints. Nothing
// here ever includes an upstream secret.
type StatusHandler struct {
	groups      repository.GroupRepository
	providers   repository.ProviderRepository
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(
	groups repository.GroupRepository,
	providers repository.ProviderRepository,
	memberships repository.MembershipRepository,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{groups: groups, providers: providers, memberships: memberships, logger: logger}
}

// SystemStatus returns groups, providers, and the live per-membership
// concurrency counters in one payload. The three lists are independent,
// so they are fetched concurrently.
func (h *StatusHandler) SystemStatus(c *gin.Context) {
	var (
		groups    []models.Group
		providers []models.StatusProvider
		statuses  []models.MembershipStatus
	)
	eg, ctx := errgroup.WithContext(c.Request.Context())
	eg.Go(func() error {
		var err error
		groups, err = h.listGroups(ctx)
		return err
	})
	eg.Go(func() error {
		var err error
		providers, err = h.listProviders(ctx)
		return err
	})
	eg.Go(func() error {
		var err error
		statuses, err = h.memberships.ListStatuses(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		h.statusError(c, err)
		return
	}
	if statuses == nil {
		statuses = []models.MembershipStatus{}
	}
	c.JSON(http.StatusOK, models.StatusSnapshot{
		Groups:      groups,
		Providers:   providers,
		ActiveCalls: statuses,
	})
}

// PublicGroups returns the bare group list.
func (h *StatusHandler) PublicGroups(c *gin.Context) {
	groups, err := h.listGroups(c.Request.Context())
	if err != nil {
		h.statusError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// PublicProviders returns the trimmed provider list.
func (h *StatusHandler) PublicProviders(c *gin.Context) {
	providers, err := h.listProviders(c.Request.Context())
	if err != nil {
		h.statusError(c, err)
		return
	}
	c.JSON(http.StatusOK, providers)
}

func (h *StatusHandler) listGroups(ctx context.Context) ([]models.Group, error) {
	groups, _, err := h.groups.FindAll(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	result := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	return result, nil
}

func (h *StatusHandler) listProviders(ctx context.Context) ([]models.StatusProvider, error) {
	providers, _, err := h.providers.FindAll(ctx, repository.ProviderFilter{})
	if err != nil {
		return nil, err
	}
	result := make([]models.StatusProvider, 0, len(providers))
	for _, p := range providers {
		result = append(result, models.StatusProvider{
			ID:          p.ID,
			Name:        p.Name,
			Model:       p.Model,
			APIEndpoint: p.APIEndpoint,
			IsActive:    p.IsActive,
		})
	}
	return result, nil
}

func (h *StatusHandler) statusError(c *gin.Context, err error) {
	h.logger.Error("failed to build status payload", zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to load system status")
}
