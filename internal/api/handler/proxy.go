package handler

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/api/middleware"
	"github.com/llmrelay/llmrelay/internal/metrics"
	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/service"
)

// ProxyHandler serves the inference endpoints: both chat dialects, legacy
// completions, embeddings, image generation, and the model listing.
type ProxyHandler struct {
	proxy   *service.ProxyService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewProxyHandler(proxy *service.ProxyService, m *metrics.Metrics, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{proxy: proxy, metrics: m, logger: logger}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *ProxyHandler) ChatCompletions(c *gin.Context) {
	h.handleChat(c, "chat")
}

// Responses handles POST /v1/responses, an alias of the chat endpoint.
func (h *ProxyHandler) Responses(c *gin.Context) {
	h.handleChat(c, "responses")
}

func (h *ProxyHandler) handleChat(c *gin.Context, dialect string) {
	start := time.Now()
	key := middleware.APIKeyFrom(c)

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	group := req.Model
	defer func() { h.observe(c, dialect, group, start) }()

	resolved, err := h.proxy.AuthorizeGroup(key, &req)
	if err != nil {
		errorResponse(c, http.StatusForbidden, "permission_denied_error", err.Error())
		return
	}
	group = resolved

	if req.Stream {
		h.streamChat(c, key, group, &req)
		return
	}

	body, err := h.proxy.ChatCompletion(c.Request.Context(), key, group, &req)
	if err != nil {
		h.writeProxyError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// streamChat pipes the engine's chat SSE channel to the client verbatim.
func (h *ProxyHandler) streamChat(c *gin.Context, key *models.APIKey, group string, req *models.ChatRequest) {
	ch := h.proxy.ChatCompletionStream(c.Request.Context(), key, group, req)

	writeSSEHeaders(c)

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.logger.Debug("client disconnected during stream")
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if chunk.Err != nil {
				h.logger.Error("stream failed", zap.Error(chunk.Err))
				return
			}
			if chunk.Done {
				return
			}
			if len(chunk.Data) > 0 {
				if _, err := c.Writer.Write(chunk.Data); err != nil {
					return
				}
				c.Writer.Flush()
			}
		}
	}
}

// Messages handles POST /v1/messages, translating both directions.
func (h *ProxyHandler) Messages(c *gin.Context) {
	start := time.Now()
	key := middleware.APIKeyFrom(c)

	var req models.AnthropicChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	group := req.Model
	defer func() { h.observe(c, "messages", group, start) }()

	chatReq := service.MessagesToChat(&req)
	resolved, err := h.proxy.AuthorizeGroup(key, chatReq)
	if err != nil {
		errorResponse(c, http.StatusForbidden, "permission_denied_error", err.Error())
		return
	}
	group = resolved

	if req.Stream {
		h.streamMessages(c, key, group, chatReq, req.Model)
		return
	}

	body, err := h.proxy.ChatCompletion(c.Request.Context(), key, group, chatReq)
	if err != nil {
		h.writeProxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.ChatResponseToMessages(body, req.Model))
}

// streamMessages synthesizes the messages-dialect frame skeleton around the
// text deltas found in the engine's chat stream. The skeleton is always
// completed, even when the upstream produced nothing.
func (h *ProxyHandler) streamMessages(c *gin.Context, key *models.APIKey, group string, chatReq *models.ChatRequest, model string) {
	ch := h.proxy.ChatCompletionStream(c.Request.Context(), key, group, chatReq)

	writeSSEHeaders(c)
	for _, frame := range service.MessagesStreamStart(model) {
		if _, err := c.Writer.Write(frame); err != nil {
			return
		}
	}
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
loop:
	for {
		select {
		case <-clientGone:
			h.logger.Debug("client disconnected during stream")
			return
		case chunk, ok := <-ch:
			if !ok {
				break loop
			}
			if chunk.Err != nil {
				h.logger.Error("stream failed", zap.Error(chunk.Err))
				break loop
			}
			if chunk.Done {
				break loop
			}
			for _, data := range sseDataPayloads(chunk.Data) {
				if data == "[DONE]" {
					continue
				}
				text, ok := service.ChatDeltaContent([]byte(data))
				if !ok {
					continue
				}
				if frame := service.MessagesStreamDelta(text); frame != nil {
					if _, err := c.Writer.Write(frame); err != nil {
						return
					}
					c.Writer.Flush()
				}
			}
		}
	}

	for _, frame := range service.MessagesStreamEnd() {
		if _, err := c.Writer.Write(frame); err != nil {
			return
		}
	}
	c.Writer.Flush()
}

// Completions handles POST /v1/completions, the legacy text dialect. The
// declared model is used directly as the group name.
func (h *ProxyHandler) Completions(c *gin.Context) {
	start := time.Now()
	key := middleware.APIKeyFrom(c)

	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	defer func() { h.observe(c, "completions", req.Model, start) }()

	body, err := h.proxy.Completion(c.Request.Context(), key, &req)
	if err != nil {
		h.writeProxyError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// Embeddings handles POST /v1/embeddings.
func (h *ProxyHandler) Embeddings(c *gin.Context) {
	start := time.Now()

	var req models.EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	defer func() { h.observe(c, "embeddings", req.Model, start) }()

	body, err := h.proxy.Embeddings(c.Request.Context(), &req)
	if err != nil {
		h.writeProxyError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// ImageGenerations handles POST /v1/images/generations.
func (h *ProxyHandler) ImageGenerations(c *gin.Context) {
	start := time.Now()

	var req models.ImageGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	defer func() { h.observe(c, "images", req.Model, start) }()

	body, err := h.proxy.GenerateImages(c.Request.Context(), &req)
	if err != nil {
		h.writeProxyError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// Models handles GET /v1/models: the key's authorized group names in the
// standard model-list shape.
func (h *ProxyHandler) Models(c *gin.Context) {
	key := middleware.APIKeyFrom(c)
	names := key.GroupNames()
	sort.Strings(names)
	c.JSON(http.StatusOK, models.NewModelList(names))
}

// writeProxyError maps engine errors onto client envelopes. Only selector
// exhaustion escapes the attempt loop, so anything else is unexpected.
func (h *ProxyHandler) writeProxyError(c *gin.Context, err error) {
	var serr *service.ServiceUnavailableError
	if errors.As(err, &serr) {
		errorResponse(c, http.StatusServiceUnavailable, "service_error", serr.Message)
		return
	}
	if c.Request.Context().Err() != nil {
		c.Abort()
		return
	}
	h.logger.Error("proxy request failed", zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, "api_error", "Internal server error")
}

func (h *ProxyHandler) observe(c *gin.Context, dialect, group string, start time.Time) {
	h.metrics.RecordRequest(dialect, group, strconv.Itoa(c.Writer.Status()))
	h.metrics.ObserveDuration(dialect, time.Since(start).Seconds())
}

func writeSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.Flush()
}

// sseDataPayloads extracts the data payloads from one or more raw SSE lines.
func sseDataPayloads(chunk []byte) []string {
	var payloads []string
	for _, line := range strings.Split(string(chunk), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
		}
	}
	return payloads
}
