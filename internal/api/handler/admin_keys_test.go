//go:build !integration && !e2e
// +build !integration,!e2e

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

type keyHarness struct {
	router *gin.Engine
	keys   repository.APIKeyRepository
}

func newKeyHarness(t *testing.T) *keyHarness {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)

	keys := repository.NewAPIKeyRepository(db)
	h := NewKeyAdminHandler(keys, testutil.NewTestLogger())

	r := testutil.NewTestRouter()
	r.GET("/api/keys/", h.List)
	r.POST("/api/keys/", h.Create)
	r.PATCH("/api/keys/:key_id", h.Update)
	r.DELETE("/api/keys/:key_id", h.Delete)

	return &keyHarness{router: r, keys: keys}
}

func (h *keyHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.MakeJSONRequest(t, method, path, body)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestKeyList(t *testing.T) {
	h := newKeyHarness(t)

	w := h.do(t, http.MethodGet, "/api/keys/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var keys []*models.APIKey
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	require.Len(t, keys, 2)
	// Newest first.
	assert.Equal(t, "sk-test-revoked", keys[0].Key)
	assert.Equal(t, "sk-test-alpha", keys[1].Key)
	assert.ElementsMatch(t, []string{"gpt-4", "claude-3"}, keys[1].GroupNames())
}

func TestKeyCreate(t *testing.T) {
	h := newKeyHarness(t)

	w := h.do(t, http.MethodPost, "/api/keys/", map[string]any{"group_ids": []int64{1, 2}})
	require.Equal(t, http.StatusOK, w.Code)

	var created models.APIKey
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	// The secret is minted server side and returned once here.
	assert.Regexp(t, regexp.MustCompile(`^sk-[A-Za-z0-9]{48}$`), created.Key)
	assert.True(t, created.IsActive)
	assert.ElementsMatch(t, []string{"gpt-4", "claude-3"}, created.GroupNames())

	// An inactive key can be minted up front.
	w = h.do(t, http.MethodPost, "/api/keys/", map[string]any{
		"group_ids": []int64{1},
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.False(t, created.IsActive)

	// At least one group is required.
	w = h.do(t, http.MethodPost, "/api/keys/", map[string]any{"group_ids": []int64{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "group IDs are invalid")

	w = h.do(t, http.MethodPost, "/api/keys/", map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestKeyUpdate(t *testing.T) {
	h := newKeyHarness(t)
	ctx := context.Background()

	// Toggling the flag leaves group links alone.
	w := h.do(t, http.MethodPatch, "/api/keys/1", map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)

	key, err := h.keys.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, key.IsActive)
	assert.Len(t, key.Groups, 2)

	// Replacing groups leaves the flag alone.
	w = h.do(t, http.MethodPatch, "/api/keys/1", map[string]any{"group_ids": []int64{2}})
	require.Equal(t, http.StatusOK, w.Code)

	key, err = h.keys.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, key.IsActive)
	assert.Equal(t, []string{"claude-3"}, key.GroupNames())

	// An explicit empty list clears every link.
	w = h.do(t, http.MethodPatch, "/api/keys/1", map[string]any{"group_ids": []int64{}})
	require.Equal(t, http.StatusOK, w.Code)

	key, err = h.keys.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, key.Groups)

	w = h.do(t, http.MethodPatch, "/api/keys/999", map[string]any{"is_active": true})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeyDelete(t *testing.T) {
	h := newKeyHarness(t)
	ctx := context.Background()

	w := h.do(t, http.MethodDelete, "/api/keys/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "API key deleted")

	gone, err := h.keys.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
