//go:build !integration && !e2e
// +build !integration,!e2e

package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://api.example.com", "https://api.example.com/v1"},
		{"https://api.example.com/", "https://api.example.com/v1"},
		{"https://api.example.com/v1", "https://api.example.com/v1"},
		{"https://api.example.com/v1/", "https://api.example.com/v1"},
		{"  https://api.example.com/v1  ", "https://api.example.com/v1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBaseURL(tt.raw), "input %q", tt.raw)
	}
}

func TestApplyFilter(t *testing.T) {
	catalog := []remoteModel{
		{ID: "gpt-4o"}, {ID: "gpt-4o-mini"}, {ID: "text-embedding-3"}, {ID: ""},
	}

	ids := func(list []remoteModel) []string {
		out := make([]string, 0, len(list))
		for _, m := range list {
			out = append(out, m.ID)
		}
		return out
	}

	// No keyword or an explicit "None" passes the catalog through untouched.
	assert.Len(t, applyFilter(catalog, "Include", ""), 4)
	assert.Len(t, applyFilter(catalog, "None", "gpt"), 4)
	assert.Len(t, applyFilter(catalog, "", "gpt"), 4)

	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, ids(applyFilter(catalog, "Include", "GPT")))
	assert.Equal(t, []string{"text-embedding-3"}, ids(applyFilter(catalog, "Exclude", "gpt")))
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "my-alias", providerName("my-alias", "org/model"))
	assert.Equal(t, "org.sub.model", providerName("", "org/sub/model"))
	assert.Equal(t, "gpt-4o", providerName("", "gpt-4o"))
}

func TestImportErrorMessage(t *testing.T) {
	assert.Equal(t, "Invalid response format from model provider.",
		importErrorMessage(errors.New("invalid response format from model provider"), 200))
	assert.Contains(t,
		importErrorMessage(errors.New("dial tcp: connection refused"), 0),
		"Connection Failed")
	assert.Contains(t,
		importErrorMessage(errors.New("provider returned status 500"), 500),
		"Could not fetch models from provider")
}

func TestImportEventSSE(t *testing.T) {
	assert.Equal(t, "data: TOTAL=5\n\n", string(ImportEvent{Kind: ImportEventTotal, Value: "5"}.SSE()))
	assert.Equal(t, "data: PROGRESS=1\n\n", string(ImportEvent{Kind: ImportEventProgress, Value: "1"}.SSE()))
}

func catalogHandler(modelIDs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		data := make([]map[string]string, 0, len(modelIDs))
		for _, id := range modelIDs {
			data = append(data, map[string]string{"id": id})
		}
		testutil.MockUpstreamResponse(http.StatusOK, map[string]any{"data": data})(w, r)
	}
}

func TestSyncModels(t *testing.T) {
	db := testutil.NewTestDB(t)
	providers := repository.NewProviderRepository(db)
	importer := NewImporter(providers, testutil.NewTestLogger())
	ctx := context.Background()

	server := testutil.MockUpstreamServer(t, catalogHandler("gpt-4o", "gpt-4o-mini"))

	req := &ImportRequest{BaseURL: server.URL, APIKey: "sk-upstream"}
	created, err := importer.SyncModels(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	endpoint := server.URL + "/v1/chat/completions"
	p, err := providers.FindByTriplet(ctx, endpoint, "sk-upstream", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "gpt-4o", p.Name)
	assert.True(t, p.IsActive)
	assert.Equal(t, models.BillingPerToken, p.Type)

	// A second run finds the triplets already present.
	created, err = importer.SyncModels(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSyncModelsUpstreamFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	importer := NewImporter(repository.NewProviderRepository(db), testutil.NewTestLogger())

	server := testutil.MockUpstreamServer(t,
		testutil.MockUpstreamResponse(http.StatusInternalServerError, map[string]string{"error": "boom"}))

	_, err := importer.SyncModels(context.Background(), &ImportRequest{BaseURL: server.URL, APIKey: "sk-up"})
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
}

func TestImportModelsStream(t *testing.T) {
	db := testutil.NewTestDB(t)
	providers := repository.NewProviderRepository(db)
	importer := NewImporter(providers, testutil.NewTestLogger())
	ctx := context.Background()

	server := testutil.MockUpstreamServer(t, catalogHandler("gpt-4o", "gpt-4o-mini"))
	endpoint := server.URL + "/v1/chat/completions"

	// A provider of the same endpoint and key whose model left the catalog
	// gets switched off by the import.
	staleID, err := providers.Insert(ctx, &models.Provider{
		Name:        "stale",
		APIEndpoint: endpoint,
		APIKey:      "sk-upstream",
		Model:       "retired-model",
		IsActive:    true,
	})
	require.NoError(t, err)

	var events []ImportEvent
	for ev := range importer.ImportModels(ctx, &ImportRequest{BaseURL: server.URL, APIKey: "sk-upstream"}) {
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	assert.Equal(t, ImportEvent{Kind: ImportEventTotal, Value: "2"}, events[0])
	assert.Equal(t, ImportEvent{Kind: ImportEventProgress, Value: "1"}, events[1])
	assert.Equal(t, ImportEvent{Kind: ImportEventProgress, Value: "2"}, events[2])
	assert.Equal(t, ImportEventDone, events[3].Kind)
	assert.Contains(t, events[3].Value, "2 new models")

	stale, err := providers.FindByID(ctx, staleID)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.False(t, stale.IsActive)
}

func TestImportModelsFiltered(t *testing.T) {
	db := testutil.NewTestDB(t)
	providers := repository.NewProviderRepository(db)
	importer := NewImporter(providers, testutil.NewTestLogger())
	ctx := context.Background()

	server := testutil.MockUpstreamServer(t, catalogHandler("gpt-4o", "text-embedding-3"))

	var events []ImportEvent
	req := &ImportRequest{
		BaseURL: server.URL, APIKey: "sk-upstream",
		Alias: "chat", FilterMode: "Include", FilterKeyword: "gpt",
	}
	for ev := range importer.ImportModels(ctx, req) {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, ImportEvent{Kind: ImportEventTotal, Value: "1"}, events[0])

	p, err := providers.FindByTriplet(ctx, server.URL+"/v1/chat/completions", "sk-upstream", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "chat", p.Name)
}

func TestImportModelsFetchError(t *testing.T) {
	db := testutil.NewTestDB(t)
	importer := NewImporter(repository.NewProviderRepository(db), testutil.NewTestLogger())

	server := testutil.MockUpstreamServer(t,
		testutil.MockUpstreamResponse(http.StatusUnauthorized, map[string]string{"error": "bad key"}))

	var events []ImportEvent
	for ev := range importer.ImportModels(context.Background(), &ImportRequest{BaseURL: server.URL, APIKey: "wrong"}) {
		events = append(events, ev)
	}

	require.Len(t, events, 1)
	assert.Equal(t, ImportEventError, events[0].Kind)
	assert.Contains(t, events[0].Value, "Could not fetch models from provider")
}
