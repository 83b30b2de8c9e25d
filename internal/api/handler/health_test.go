//go:build !integration && !e2e
// +build !integration,!e2e

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestHealth(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)

	h := NewHealthHandler(repository.NewGroupRepository(db), repository.NewProviderRepository(db))
	r := testutil.NewTestRouter()
	r.GET("/health", h.Health)

	req := testutil.MakeJSONRequest(t, http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		Groups    int64  `json:"groups"`
		Providers int64  `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Version)
	assert.Equal(t, int64(2), body.Groups)
	assert.Equal(t, int64(4), body.Providers)
}

func TestHealthReportsStorageFailure(t *testing.T) {
	db := testutil.NewTestDB(t)

	h := NewHealthHandler(repository.NewGroupRepository(db), repository.NewProviderRepository(db))
	r := testutil.NewTestRouter()
	r.GET("/health", h.Health)

	// Closing the pool makes every query fail.
	require.NoError(t, db.Close())

	req := testutil.MakeJSONRequest(t, http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}
