package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/repository"
)

// LogAdminHandler serves the call log inspection endpoints.
type LogAdminHandler struct {
	callLogs repository.CallLogRepository
	logger   *zap.Logger
}

// NewLogAdminHandler creates a new LogAdminHandler.
func NewLogAdminHandler(callLogs repository.CallLogRepository, logger *zap.Logger) *LogAdminHandler {
	return &LogAdminHandler{callLogs: callLogs, logger: logger}
}

// List returns a page of call logs, newest first. Rows never carry the
// request and response bodies; those are only merged into single-log
// reads.
func (h *LogAdminHandler) List(c *gin.Context) {
	filter := repository.CallLogFilter{
		Offset: intQuery(c, "skip", 0),
		Limit:  intQuery(c, "limit", 100),
	}
	if raw, ok := c.GetQuery("filter_success"); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.Success = &v
		}
	}
	if raw, ok := c.GetQuery("provider_id"); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ProviderID = &v
		}
	}
	if raw, ok := c.GetQuery("api_key_id"); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.APIKeyID = &v
		}
	}
	logs, total, err := h.callLogs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list call logs", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to list logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs, "total": total})
}

// Get returns one call log with its stored bodies merged in.
func (h *LogAdminHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "log_id")
	if !ok {
		return
	}
	log, err := h.callLogs.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get call log", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to get log")
		return
	}
	if log == nil {
		errorResponse(c, http.StatusNotFound, "not_found_error", "Log not found")
		return
	}
	c.JSON(http.StatusOK, log)
}

// Clear deletes every stored call log and its body sidecar. Timestamps
// are stored at second resolution, so the cutoff leans one second into
// the future to cover rows written in the current second.
func (h *LogAdminHandler) Clear(c *gin.Context) {
	deleted, err := h.callLogs.PruneBefore(c.Request.Context(), time.Now().UTC().Add(time.Second))
	if err != nil {
		h.logger.Error("failed to clear call logs", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to clear logs")
		return
	}
	h.logger.Info("call logs cleared", zap.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"message": "Logs cleared", "deleted": deleted})
}
