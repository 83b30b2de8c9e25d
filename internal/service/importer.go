package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// ImportRequest is the admin form for pulling a provider's model catalog.
type ImportRequest struct {
	BaseURL       string `json:"base_url" binding:"required"`
	APIKey        string `json:"api_key" binding:"required"`
	Alias         string `json:"alias"`
	DefaultType   string `json:"default_type"`
	FilterMode    string `json:"filter_mode"`
	FilterKeyword string `json:"filter_keyword"`
}

// Import progress event kinds, rendered as "data: KIND=value" SSE frames.
const (
	ImportEventTotal    = "TOTAL"
	ImportEventProgress = "PROGRESS"
	ImportEventDone     = "DONE"
	ImportEventError    = "ERROR"
)

// ImportEvent is one progress frame of a streaming import.
type ImportEvent struct {
	Kind  string
	Value string
}

// SSE renders the event in the import wire format.
func (e ImportEvent) SSE() []byte {
	return []byte(fmt.Sprintf("data: %s=%s\n\n", e.Kind, e.Value))
}

// Importer pulls /v1/models catalogs from upstreams and materializes them as
// providers. Uniqueness is the (endpoint, key, model) triplet.
type Importer struct {
	providers repository.ProviderRepository
	logger    *zap.Logger
	client    *http.Client
}

func NewImporter(providers repository.ProviderRepository, logger *zap.Logger) *Importer {
	return &Importer{
		providers: providers,
		logger:    logger,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NormalizeBaseURL reduces operator input to a bare /v1 base: whitespace and
// trailing slashes are dropped, and an existing /v1 suffix is not doubled.
func NormalizeBaseURL(raw string) string {
	clean := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(clean, "/v1") {
		clean = strings.TrimRight(clean[:len(clean)-3], "/")
	}
	return clean + "/v1"
}

type remoteModel struct {
	ID string `json:"id"`
}

// fetchCatalog GETs the upstream model list.
func (im *Importer) fetchCatalog(ctx context.Context, v1Base, apiKey string) ([]remoteModel, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v1Base+"/models", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read catalog response: %w", err)
	}

	var payload struct {
		Data []remoteModel `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if payload.Data == nil {
		return nil, resp.StatusCode, fmt.Errorf("invalid response format from model provider")
	}
	return payload.Data, resp.StatusCode, nil
}

// applyFilter keeps or drops catalog entries by substring. Entries with an
// empty id are dropped whenever a filter runs.
func applyFilter(list []remoteModel, mode, keyword string) []remoteModel {
	if keyword == "" || mode == "" || mode == "None" {
		return list
	}
	needle := strings.ToLower(keyword)
	filtered := make([]remoteModel, 0, len(list))
	for _, m := range list {
		if m.ID == "" {
			continue
		}
		contains := strings.Contains(strings.ToLower(m.ID), needle)
		if (mode == "Include" && contains) || (mode == "Exclude" && !contains) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// providerName derives the display name: the operator alias when given,
// otherwise the model id with path separators flattened.
func providerName(alias, modelID string) string {
	if alias != "" {
		return alias
	}
	return strings.ReplaceAll(modelID, "/", ".")
}

func (im *Importer) buildProvider(req *ImportRequest, endpoint, modelID string) *models.Provider {
	zero := 0.0
	billing := req.DefaultType
	if billing == "" {
		billing = models.BillingPerToken
	}
	return &models.Provider{
		Name:            providerName(req.Alias, modelID),
		APIEndpoint:     endpoint,
		APIKey:          req.APIKey,
		Model:           modelID,
		PricePerMillion: &zero,
		InputPricePerM:  &zero,
		OutputPricePerM: &zero,
		Type:            billing,
		IsActive:        true,
	}
}

// ImportModels runs the streaming import: fetch, filter, deactivate catalog
// dropouts for the same (endpoint, key), then create missing providers. The
// returned channel carries TOTAL, then one PROGRESS per processed model,
// then DONE, or a single ERROR.
func (im *Importer) ImportModels(ctx context.Context, req *ImportRequest) <-chan ImportEvent {
	out := make(chan ImportEvent, 16)
	go func() {
		defer close(out)

		im.logger.Info("starting model import", zap.String("base_url", req.BaseURL))
		v1Base := NormalizeBaseURL(req.BaseURL)

		catalog, status, err := im.fetchCatalog(ctx, v1Base, req.APIKey)
		if err != nil {
			im.logger.Error("model import fetch failed", zap.Error(err))
			out <- ImportEvent{Kind: ImportEventError, Value: importErrorMessage(err, status)}
			return
		}

		catalog = applyFilter(catalog, req.FilterMode, req.FilterKeyword)
		out <- ImportEvent{Kind: ImportEventTotal, Value: strconv.Itoa(len(catalog))}

		fetched := make(map[string]struct{}, len(catalog))
		for _, m := range catalog {
			if m.ID != "" {
				fetched[m.ID] = struct{}{}
			}
		}

		endpoint := v1Base + "/chat/completions"
		if n, err := im.deactivateMissing(ctx, endpoint, req.APIKey, fetched); err != nil {
			im.logger.Error("failed to deactivate stale providers", zap.Error(err))
		} else if n > 0 {
			im.logger.Info("deactivated providers no longer in catalog",
				zap.Int("count", n), zap.String("endpoint", endpoint))
		}

		imported := 0
		for _, m := range catalog {
			if m.ID == "" {
				im.logger.Warn("skipping catalog entry without id")
				continue
			}

			existing, err := im.providers.FindByTriplet(ctx, endpoint, req.APIKey, m.ID)
			if err != nil {
				im.logger.Error("model import aborted", zap.Error(err))
				out <- ImportEvent{Kind: ImportEventError, Value: fmt.Sprintf("An unexpected error occurred: %v", err)}
				return
			}
			if existing == nil {
				if _, err := im.providers.Insert(ctx, im.buildProvider(req, endpoint, m.ID)); err != nil {
					im.logger.Error("model import aborted", zap.Error(err))
					out <- ImportEvent{Kind: ImportEventError, Value: fmt.Sprintf("An unexpected error occurred: %v", err)}
					return
				}
				im.logger.Info("imported model as provider", zap.String("model", m.ID))
			}

			imported++
			out <- ImportEvent{Kind: ImportEventProgress, Value: strconv.Itoa(imported)}
		}

		out <- ImportEvent{Kind: ImportEventDone, Value: fmt.Sprintf("Successfully imported %d new models.", imported)}
	}()
	return out
}

// SyncModels is the non-streaming import used by simple UI calls. It never
// deactivates anything and counts only newly created providers.
func (im *Importer) SyncModels(ctx context.Context, req *ImportRequest) (int, error) {
	v1Base := NormalizeBaseURL(req.BaseURL)

	catalog, status, err := im.fetchCatalog(ctx, v1Base, req.APIKey)
	if err != nil {
		if status != 0 {
			return 0, &UpstreamError{StatusCode: status, Body: []byte("Failed to fetch models from provider")}
		}
		return 0, err
	}

	catalog = applyFilter(catalog, req.FilterMode, req.FilterKeyword)
	endpoint := v1Base + "/chat/completions"

	imported := 0
	for _, m := range catalog {
		if m.ID == "" {
			continue
		}
		existing, err := im.providers.FindByTriplet(ctx, endpoint, req.APIKey, m.ID)
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}
		if _, err := im.providers.Insert(ctx, im.buildProvider(req, endpoint, m.ID)); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// deactivateMissing flips off active providers of the same endpoint and key
// whose model vanished from the fetched catalog.
func (im *Importer) deactivateMissing(ctx context.Context, endpoint, apiKey string, fetched map[string]struct{}) (int, error) {
	existing, err := im.providers.FindByEndpointKey(ctx, endpoint, apiKey)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range existing {
		if _, ok := fetched[p.Model]; ok || !p.IsActive {
			continue
		}
		if err := im.providers.SetActive(ctx, p.ID, false); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// importErrorMessage maps a fetch failure onto the operator-facing wording.
func importErrorMessage(err error, status int) string {
	if strings.Contains(err.Error(), "invalid response format") {
		return "Invalid response format from model provider."
	}
	if status == 0 {
		return "Connection Failed: Could not connect to the Base URL. Please check the URL and your network connection."
	}
	return fmt.Sprintf("Could not fetch models from provider: %v", err)
}
