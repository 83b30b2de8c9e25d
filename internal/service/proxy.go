package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/metrics"
	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// UpstreamError represents an error response from an upstream provider.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// PermissionError reports an API key that is not authorized for the group a
// request addressed.
type PermissionError struct {
	Model string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("API key not authorized for the requested model (group): %s", e.Model)
}

// ServiceUnavailableError reports an exhausted candidate set.
type ServiceUnavailableError struct {
	Message string
}

func (e *ServiceUnavailableError) Error() string {
	return e.Message
}

const exhaustedMessage = "All suitable providers failed or are unavailable."

// StreamChunk is one unit of a proxied SSE stream.
type StreamChunk struct {
	Data []byte
	Err  error
	Done bool
}

// Attempt outcome labels for metrics.
const (
	outcomeSuccess   = "success"
	outcomeHTTPError = "http_error"
	outcomeSoftFail  = "soft_failure"
	outcomeTransport = "transport_error"
)

// ProxyService runs the per-request attempt loop: authorize, select a
// provider, dispatch, stream or collect, log, and fail over until the
// candidate set is exhausted. Attempts within one client request are
// sequential; their call logs are written in attempt order.
type ProxyService struct {
	selector    *Selector
	sentinel    *Sentinel
	providers   repository.ProviderRepository
	memberships repository.MembershipRepository
	callLogs    repository.CallLogRepository
	metrics     *metrics.Metrics
	logger      *zap.Logger
	client      *http.Client

	chatTimeout  time.Duration
	embedTimeout time.Duration
	imageTimeout time.Duration
}

// NewProxyService creates a new ProxyService. Per-attempt deadlines come
// from cfg; the shared client itself has no timeout so streaming bodies are
// bounded only by their attempt context.
func NewProxyService(
	selector *Selector,
	sentinel *Sentinel,
	providers repository.ProviderRepository,
	memberships repository.MembershipRepository,
	callLogs repository.CallLogRepository,
	m *metrics.Metrics,
	cfg config.ProxyConfig,
	logger *zap.Logger,
) *ProxyService {
	return &ProxyService{
		selector:    selector,
		sentinel:    sentinel,
		providers:   providers,
		memberships: memberships,
		callLogs:    callLogs,
		metrics:     m,
		logger:      logger,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		chatTimeout:  cfg.ChatTimeout,
		embedTimeout: cfg.EmbeddingsTimeout,
		imageTimeout: cfg.ImagesTimeout,
	}
}

// AuthorizeGroup maps the request's declared model onto one of the key's
// authorized group names. A refusal is persisted as a 403 call log before
// the PermissionError is returned.
func (s *ProxyService) AuthorizeGroup(key *models.APIKey, req *models.ChatRequest) (string, error) {
	model := req.Model
	requestJSON := marshalRequest(req)
	group, ok := MatchAuthorizedGroup(model, key.Groups)
	if ok {
		if group != model {
			s.logger.Info("mapped requested model to authorized group",
				zap.String("model", model), zap.String("group", group))
		}
		return group, nil
	}

	detail := fmt.Sprintf(
		"API key not authorized for the requested model (group): %s. Authorized groups: [%s]",
		model, strings.Join(key.GroupNames(), ", "))
	s.logger.Warn("permission denied", zap.Int64("api_key_id", key.ID), zap.String("model", model))
	zero := 0.0
	s.writeLog(&models.CallLog{
		APIKeyID:       &key.ID,
		IsSuccess:      false,
		StatusCode:     intPtr(http.StatusForbidden),
		ResponseTimeMs: &zero,
		ErrorMessage:   strPtr("Permission Error: " + detail),
	}, strPtr(requestJSON), strPtr(detail))

	return "", &PermissionError{Model: model}
}

// LogAuthFailure persists the 401 call log for a rejected credential. The
// row has no provider and no key; the raw inbound body is kept for the
// operator.
func (s *ProxyService) LogAuthFailure(detail string, rawBody []byte) {
	body := string(rawBody)
	zero := 0.0
	s.writeLog(&models.CallLog{
		IsSuccess:      false,
		StatusCode:     intPtr(http.StatusUnauthorized),
		ResponseTimeMs: &zero,
		ErrorMessage:   strPtr("Auth Error: " + detail),
	}, strPtr(body), strPtr(detail))
}

// ChatCompletion runs the non-streaming attempt loop for a chat request and
// returns the sanitized upstream body of the first successful attempt.
func (s *ProxyService) ChatCompletion(ctx context.Context, key *models.APIKey, group string, req *models.ChatRequest) ([]byte, error) {
	requestID := uuid.New().String()
	requestJSON := marshalRequest(req)
	var excluded []int64

	for {
		cand, err := s.selector.Select(ctx, group, excluded)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			s.logExhaustion(key, requestJSON)
			return nil, &ServiceUnavailableError{Message: exhaustedMessage}
		}

		body, done, err := s.chatAttempt(ctx, key, cand, req, requestJSON, requestID)
		if done {
			return body, err
		}
		excluded = append(excluded, cand.Provider.ID)
	}
}

// chatAttempt dispatches one non-streaming attempt. done reports whether the
// loop should stop (success, or the client context is gone).
func (s *ProxyService) chatAttempt(ctx context.Context, key *models.APIKey, cand *repository.Candidate, req *models.ChatRequest, requestJSON, requestID string) (result []byte, done bool, err error) {
	provider := &cand.Provider
	s.incrementActive(cand)
	defer s.decrementActive(cand)

	s.logger.Info("non-streaming attempt",
		zap.String("request_id", requestID),
		zap.String("provider", provider.Name), zap.Int64("provider_id", provider.ID))

	keywords := s.sentinel.Load(ctx)
	start := time.Now()

	outbound := *req
	outbound.Model = provider.Model
	outbound.Stream = false
	payload, merr := json.Marshal(&outbound)
	if merr != nil {
		return nil, true, fmt.Errorf("failed to marshal request: %w", merr)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	respBody, status, derr := s.dispatch(attemptCtx, provider.APIEndpoint, provider.APIKey, payload)
	if derr != nil {
		s.recordFailure(key, cand, start, 503, derr, nil, requestJSON)
		return nil, ctx.Err() != nil, nil
	}
	if status >= 400 {
		uerr := &UpstreamError{StatusCode: status, Body: respBody}
		s.recordFailure(key, cand, start, status, uerr, respBody, requestJSON)
		return nil, false, nil
	}

	var probe struct {
		Choices []json.RawMessage `json:"choices"`
	}
	if jerr := json.Unmarshal(respBody, &probe); jerr != nil || len(probe.Choices) == 0 {
		s.recordFailure(key, cand, start, 503, errors.New("Empty or null response from provider"), nil, requestJSON)
		return nil, false, nil
	}

	if match := Match(keywords, strings.ToLower(string(respBody))); match != nil {
		go s.sentinel.RecordTrigger(match.ID)
		s.recordFailure(key, cand, start, 503, &KeywordError{Keyword: match.Keyword}, nil, requestJSON)
		return nil, false, nil
	}

	usage := parseUsage(respBody)
	cost := ComputeCost(provider, usage)
	elapsed := msSince(start)
	s.writeLog(&models.CallLog{
		ProviderID:       &provider.ID,
		APIKeyID:         &key.ID,
		IsSuccess:        true,
		StatusCode:       &status,
		ResponseTimeMs:   &elapsed,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Cost:             cost,
	}, strPtr(requestJSON), strPtr(string(respBody)))

	s.metrics.RecordAttempt(provider.Name, outcomeSuccess)
	s.recordTokens(provider.Name, usage)
	return SanitizeChatResponse(respBody), true, nil
}

// ChatCompletionStream runs the streaming attempt loop. The returned channel
// carries filtered upstream bytes; exhaustion surfaces as an SSE error frame
// rather than an HTTP error, matching the wire contract for streams.
func (s *ProxyService) ChatCompletionStream(ctx context.Context, key *models.APIKey, group string, req *models.ChatRequest) <-chan StreamChunk {
	out := make(chan StreamChunk, 100)
	requestID := uuid.New().String()
	requestJSON := marshalRequest(req)

	go func() {
		defer close(out)
		var excluded []int64

		for {
			if ctx.Err() != nil {
				return
			}
			cand, err := s.selector.Select(ctx, group, excluded)
			if err != nil {
				s.logger.Error("selection failed", zap.Error(err))
				out <- StreamChunk{Err: err, Done: true}
				return
			}
			if cand == nil {
				s.logExhaustion(key, requestJSON)
				frame, _ := json.Marshal(map[string]any{
					"error": map[string]any{"message": exhaustedMessage},
				})
				out <- StreamChunk{Data: append(append([]byte("data: "), frame...), "\n\n"...)}
				out <- StreamChunk{Done: true}
				return
			}

			if s.streamAttempt(ctx, key, cand, req, requestJSON, requestID, out) {
				return
			}
			excluded = append(excluded, cand.Provider.ID)
		}
	}()
	return out
}

// streamAttempt dispatches one streaming attempt and pipes its bytes to out.
// Returns true when the client response is finished, either because the
// upstream completed or because the client went away.
func (s *ProxyService) streamAttempt(ctx context.Context, key *models.APIKey, cand *repository.Candidate, req *models.ChatRequest, requestJSON, requestID string, out chan<- StreamChunk) bool {
	provider := &cand.Provider
	s.incrementActive(cand)
	defer s.decrementActive(cand)

	s.logger.Info("streaming attempt",
		zap.String("request_id", requestID),
		zap.String("provider", provider.Name), zap.Int64("provider_id", provider.ID))

	keywords := s.sentinel.Load(ctx)
	start := time.Now()

	outbound := *req
	outbound.Model = provider.Model
	outbound.Stream = true
	payload, err := json.Marshal(&outbound)
	if err != nil {
		out <- StreamChunk{Err: fmt.Errorf("failed to marshal request: %w", err), Done: true}
		return true
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	upReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, provider.APIEndpoint, bytes.NewReader(payload))
	if err != nil {
		out <- StreamChunk{Err: fmt.Errorf("failed to create upstream request: %w", err), Done: true}
		return true
	}
	upReq.Header.Set("Content-Type", "application/json")
	upReq.Header.Set("Accept", "text/event-stream")
	upReq.Header.Set("Authorization", "Bearer "+provider.APIKey)

	resp, err := s.client.Do(upReq)
	if err != nil {
		s.recordFailure(key, cand, start, 503, err, []byte{}, requestJSON)
		return ctx.Err() != nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		uerr := &UpstreamError{StatusCode: resp.StatusCode, Body: body}
		s.recordFailure(key, cand, start, resp.StatusCode, uerr, body, requestJSON)
		return false
	}

	var accumulated strings.Builder
	var usage models.Usage
	var usageSeen bool
	filter := &ThinkFilter{}
	reader := bufio.NewReader(resp.Body)

	finishFailure := func(ferr error, status int) bool {
		s.recordFailure(key, cand, start, status, ferr, []byte(accumulated.String()), requestJSON)
		return ctx.Err() != nil
	}

	for {
		line, rerr := reader.ReadBytes('\n')
		if len(line) > 0 {
			accumulated.WriteString(strings.ToLower(string(line)))

			if match := Match(keywords, accumulated.String()); match != nil {
				go s.sentinel.RecordTrigger(match.ID)
				if finishFailure(&KeywordError{Keyword: match.Keyword}, 503) {
					out <- StreamChunk{Done: true}
					return true
				}
				return false
			}

			captureSSEUsage(line, &usage, &usageSeen)

			if filtered := filter.Filter(line); len(filtered) > 0 {
				select {
				case out <- StreamChunk{Data: filtered}:
				case <-ctx.Done():
					finishFailure(ctx.Err(), 503)
					return true
				}
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if done := finishFailure(rerr, 503); done {
				out <- StreamChunk{Done: true}
				return true
			}
			return false
		}
	}

	var cost *float64
	if usageSeen {
		cost = ComputeCost(provider, usage)
	}
	elapsed := msSince(start)
	status := resp.StatusCode
	s.writeLog(&models.CallLog{
		ProviderID:       &provider.ID,
		APIKeyID:         &key.ID,
		IsSuccess:        true,
		StatusCode:       &status,
		ResponseTimeMs:   &elapsed,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Cost:             cost,
	}, strPtr(requestJSON), strPtr(accumulated.String()))

	s.metrics.RecordAttempt(provider.Name, outcomeSuccess)
	s.recordTokens(provider.Name, usage)
	s.logger.Info("streaming attempt finished",
		zap.String("request_id", requestID),
		zap.Int64("provider_id", provider.ID), zap.Float64("elapsed_ms", elapsed))

	out <- StreamChunk{Done: true}
	return true
}

// Completion forwards a legacy completions request. Successful calls are
// logged; any failure excludes the provider and retries silently.
func (s *ProxyService) Completion(ctx context.Context, key *models.APIKey, req *models.CompletionRequest) ([]byte, error) {
	var excluded []int64
	for {
		cand, err := s.selector.Select(ctx, req.Model, excluded)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, &ServiceUnavailableError{Message: exhaustedMessage}
		}

		body, status, elapsed, ok := s.passthroughAttempt(ctx, cand, "/completions", s.chatTimeout, func(model string) ([]byte, error) {
			outbound := *req
			outbound.Model = model
			return json.Marshal(&outbound)
		})
		if ok {
			s.writeLog(&models.CallLog{
				ProviderID:     &cand.Provider.ID,
				APIKeyID:       &key.ID,
				IsSuccess:      true,
				StatusCode:     &status,
				ResponseTimeMs: &elapsed,
			}, nil, strPtr(string(body)))
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		excluded = append(excluded, cand.Provider.ID)
	}
}

// Embeddings forwards an embeddings request with the shorter embeddings
// deadline. No call logs are written for this path.
func (s *ProxyService) Embeddings(ctx context.Context, req *models.EmbeddingRequest) ([]byte, error) {
	var excluded []int64
	for {
		cand, err := s.selector.Select(ctx, req.Model, excluded)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, &ServiceUnavailableError{Message: "No provider found for embeddings."}
		}

		body, _, _, ok := s.passthroughAttempt(ctx, cand, "/embeddings", s.embedTimeout, func(model string) ([]byte, error) {
			outbound := *req
			outbound.Model = model
			return json.Marshal(&outbound)
		})
		if ok {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		excluded = append(excluded, cand.Provider.ID)
	}
}

// GenerateImages forwards an image-generations request with the image
// deadline. No call logs are written for this path.
func (s *ProxyService) GenerateImages(ctx context.Context, req *models.ImageGenerationRequest) ([]byte, error) {
	group := req.Model
	if group == "" {
		group = "dall-e-3"
	}
	var excluded []int64
	for {
		cand, err := s.selector.Select(ctx, group, excluded)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, &ServiceUnavailableError{Message: "No provider found for image generation."}
		}

		body, _, _, ok := s.passthroughAttempt(ctx, cand, "/images/generations", s.imageTimeout, func(model string) ([]byte, error) {
			outbound := *req
			outbound.Model = model
			return json.Marshal(&outbound)
		})
		if ok {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		excluded = append(excluded, cand.Provider.ID)
	}
}

// passthroughAttempt runs one attempt of the thin forwarding loops used by
// completions, embeddings and image generation: rewrite the endpoint path,
// override the model, post, and report whether the body can be returned.
func (s *ProxyService) passthroughAttempt(ctx context.Context, cand *repository.Candidate, path string, timeout time.Duration, buildPayload func(model string) ([]byte, error)) ([]byte, int, float64, bool) {
	provider := &cand.Provider
	s.incrementActive(cand)
	defer s.decrementActive(cand)

	payload, err := buildPayload(provider.Model)
	if err != nil {
		s.logger.Error("failed to marshal passthrough request", zap.Error(err))
		return nil, 0, 0, false
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := RewriteEndpoint(provider.APIEndpoint, path)
	body, status, err := s.dispatch(attemptCtx, url, provider.APIKey, payload)
	if err != nil {
		s.logger.Warn("passthrough attempt failed",
			zap.Int64("provider_id", provider.ID), zap.Error(err))
		s.metrics.RecordAttempt(provider.Name, outcomeTransport)
		return nil, 0, 0, false
	}
	if status >= 400 {
		s.logger.Warn("passthrough attempt failed",
			zap.Int64("provider_id", provider.ID), zap.Int("status", status))
		s.metrics.RecordAttempt(provider.Name, outcomeHTTPError)
		return nil, 0, 0, false
	}

	s.metrics.RecordAttempt(provider.Name, outcomeSuccess)
	return body, status, msSince(start), true
}

// dispatch posts a JSON payload to an upstream and returns the full body.
func (s *ProxyService) dispatch(ctx context.Context, url, secret string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read upstream response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// recordFailure writes a failure log for one attempt and applies the quota
// side effect: an upstream complaining about insufficient quota is
// deactivated so later selections skip it.
func (s *ProxyService) recordFailure(key *models.APIKey, cand *repository.Candidate, start time.Time, status int, cause error, respBody []byte, requestJSON string) {
	provider := &cand.Provider
	elapsed := msSince(start)

	outcome := outcomeTransport
	message := cause.Error()
	errText := message
	var uerr *UpstreamError
	if errors.As(cause, &uerr) {
		outcome = outcomeHTTPError
		message = string(uerr.Body)
		errText += " " + message
	}
	var kerr *KeywordError
	if errors.As(cause, &kerr) {
		outcome = outcomeSoftFail
	}

	var responseBody *string
	if respBody != nil {
		responseBody = strPtr(string(respBody))
	}
	s.writeLog(&models.CallLog{
		ProviderID:     &provider.ID,
		APIKeyID:       &key.ID,
		IsSuccess:      false,
		StatusCode:     &status,
		ResponseTimeMs: &elapsed,
		ErrorMessage:   strPtr(message),
	}, strPtr(requestJSON), responseBody)

	s.metrics.RecordAttempt(provider.Name, outcome)

	lowered := strings.ToLower(errText)
	if strings.Contains(lowered, "insufficient") && strings.Contains(lowered, "quota") {
		s.logger.Warn("provider disabled due to insufficient quota",
			zap.Int64("provider_id", provider.ID), zap.String("provider", provider.Name))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.providers.DisableWithIncident(ctx, provider.ID, "INSUFFICIENT_QUOTA", errText); err != nil {
			s.logger.Error("failed to disable provider", zap.Error(err))
		}
	}

	s.logger.Warn("attempt failed, excluding provider",
		zap.Int64("provider_id", provider.ID),
		zap.Int("status", status),
		zap.Error(cause))
}

// logExhaustion writes the single null-provider 503 row for a request whose
// candidate set ran out.
func (s *ProxyService) logExhaustion(key *models.APIKey, requestJSON string) {
	zero := 0.0
	s.writeLog(&models.CallLog{
		APIKeyID:       &key.ID,
		IsSuccess:      false,
		StatusCode:     intPtr(http.StatusServiceUnavailable),
		ResponseTimeMs: &zero,
		ErrorMessage:   strPtr("Service Error: " + exhaustedMessage),
	}, strPtr(requestJSON), strPtr(exhaustedMessage))
}

// writeLog persists one call log synchronously on a detached context so the
// attempt order is preserved and cancellation cannot drop rows.
func (s *ProxyService) writeLog(log *models.CallLog, requestBody, responseBody *string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.callLogs.Insert(ctx, log, requestBody, responseBody); err != nil {
		s.logger.Error("failed to write call log", zap.Error(err))
	}
}

func (s *ProxyService) incrementActive(cand *repository.Candidate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.memberships.IncrementActive(ctx, cand.Provider.ID, cand.Membership.GroupID); err != nil {
		s.logger.Error("failed to increment active calls", zap.Error(err))
	}
}

func (s *ProxyService) decrementActive(cand *repository.Candidate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.memberships.DecrementActive(ctx, cand.Provider.ID, cand.Membership.GroupID); err != nil {
		s.logger.Error("failed to decrement active calls", zap.Error(err))
	}
}

func (s *ProxyService) recordTokens(provider string, usage models.Usage) {
	if usage.PromptTokens != nil {
		s.metrics.AddTokens(provider, "prompt", *usage.PromptTokens)
	}
	if usage.CompletionTokens != nil {
		s.metrics.AddTokens(provider, "completion", *usage.CompletionTokens)
	}
}

// marshalRequest renders the canonical request JSON stored in call-log
// sidecars.
func marshalRequest(req *models.ChatRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseUsage extracts the usage object of a completed upstream body.
func parseUsage(body []byte) models.Usage {
	var payload struct {
		Usage *models.Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Usage == nil {
		return models.Usage{}
	}
	return *payload.Usage
}

// captureSSEUsage records the last-seen usage object of an SSE stream.
func captureSSEUsage(line []byte, usage *models.Usage, seen *bool) {
	text := string(line)
	if !strings.HasPrefix(text, "data: ") {
		return
	}
	data := strings.TrimSpace(strings.TrimPrefix(text, "data: "))
	if data == "" || data == "[DONE]" {
		return
	}
	var payload struct {
		Usage *models.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return
	}
	if payload.Usage != nil {
		*usage = *payload.Usage
		*seen = true
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
