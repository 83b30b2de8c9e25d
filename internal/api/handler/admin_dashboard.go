package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/repository"
)

// DashboardHandler serves the aggregated dashboard statistics.
type DashboardHandler struct {
	callLogs repository.CallLogRepository
	logger   *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(callLogs repository.CallLogRepository, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{callLogs: callLogs, logger: logger}
}

// Stats returns call totals, per-model distribution, a seven day call
// series, and per-endpoint success rates, all computed in one pass over
// the log table.
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.callLogs.DashboardStats(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to compute dashboard stats", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to compute dashboard stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
