//go:build !integration && !e2e
// +build !integration,!e2e

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/tests/testutil"
)

const sampleLogContent = `{"level":"info","ts":"2026-08-25T10:00:00.000Z","caller":"api/server.go:42","msg":"request completed","status":200,"method":"POST"}
{"level":"warn","ts":"2026-08-25T10:00:01.000Z","caller":"service/proxy.go:99","msg":"upstream attempt failed","provider":"openai-primary"}
{"level":"error","ts":"2026-08-25T10:00:02.000Z","caller":"service/proxy.go:120","msg":"all providers failed","stacktrace":"goroutine 1 [running]"}
plain text line
`

type syslogHarness struct {
	router *gin.Engine
	dir    string
}

func newSyslogHarness(t *testing.T, content string) *syslogHarness {
	t.Helper()
	dir := t.TempDir()
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, logFileName), []byte(content), 0o644))
	}

	h := NewSystemLogHandler(dir, testutil.NewTestLogger())
	r := testutil.NewTestRouter()
	r.GET("/api/system-logs", h.Tail)
	r.POST("/api/system-logs/clear", h.Clear)

	return &syslogHarness{router: r, dir: dir}
}

type syslogResponse struct {
	Lines []systemLogEntry `json:"lines"`
	Total int              `json:"total"`
	File  string           `json:"file"`
}

func (h *syslogHarness) tail(t *testing.T, query string) syslogResponse {
	t.Helper()
	req := testutil.MakeJSONRequest(t, http.MethodGet, "/api/system-logs"+query, nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body syslogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSystemLogTail(t *testing.T) {
	h := newSyslogHarness(t, sampleLogContent)

	body := h.tail(t, "")
	assert.Equal(t, 4, body.Total)
	require.Len(t, body.Lines, 4)

	first := body.Lines[0]
	assert.Equal(t, "INFO", first.Level)
	assert.Equal(t, "2026-08-25T10:00:00.000Z", first.Timestamp)
	assert.Equal(t, "api/server.go:42", first.Caller)
	assert.Equal(t, "request completed method=POST status=200", first.Message)

	assert.Equal(t, "WARN", body.Lines[1].Level)
	assert.Equal(t, "upstream attempt failed provider=openai-primary", body.Lines[1].Message)

	// Stacktraces never reach the viewer.
	assert.Equal(t, "ERROR", body.Lines[2].Level)
	assert.Equal(t, "all providers failed", body.Lines[2].Message)

	// Non-JSON lines pass through verbatim.
	assert.Equal(t, "INFO", body.Lines[3].Level)
	assert.Equal(t, "plain text line", body.Lines[3].Message)
	assert.Empty(t, body.Lines[3].Timestamp)
}

func TestSystemLogTailFilters(t *testing.T) {
	h := newSyslogHarness(t, sampleLogContent)

	body := h.tail(t, "?lines=2")
	assert.Equal(t, 4, body.Total)
	require.Len(t, body.Lines, 2)
	assert.Equal(t, "ERROR", body.Lines[0].Level)
	assert.Equal(t, "plain text line", body.Lines[1].Message)

	body = h.tail(t, "?level=warn")
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Lines, 1)
	assert.Contains(t, body.Lines[0].Message, "provider=openai-primary")

	body = h.tail(t, "?search=upstream")
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "WARN", body.Lines[0].Level)
}

func TestSystemLogTailMissingFile(t *testing.T) {
	h := newSyslogHarness(t, "")

	body := h.tail(t, "")
	assert.Equal(t, 0, body.Total)
	assert.Empty(t, body.Lines)
	assert.NotEmpty(t, body.File)
}

func TestSystemLogClear(t *testing.T) {
	h := newSyslogHarness(t, sampleLogContent)

	req := testutil.MakeJSONRequest(t, http.MethodPost, "/api/system-logs/clear", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "System log cleared")

	info, err := os.Stat(filepath.Join(h.dir, logFileName))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	body := h.tail(t, "")
	assert.Equal(t, 0, body.Total)
}
