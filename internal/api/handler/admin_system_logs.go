package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// logFileName matches the file core configured at startup.
const logFileName = "llmrelay.log"

// SystemLogHandler serves the gateway's own structured log file to the
// admin surface.
type SystemLogHandler struct {
	path   string
	logger *zap.Logger
}

// NewSystemLogHandler creates a new SystemLogHandler reading from logDir.
func NewSystemLogHandler(logDir string, logger *zap.Logger) *SystemLogHandler {
	return &SystemLogHandler{path: filepath.Join(logDir, logFileName), logger: logger}
}

// systemLogEntry is one parsed line of the JSON log file.
type systemLogEntry struct {
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
	Caller    string `json:"caller"`
	Message   string `json:"message"`
}

// zapFixedKeys are lifted into dedicated fields. Remaining structured
// fields are folded into the message as key=value pairs; stacktraces are
// dropped entirely, the viewer shows one line per entry.
var zapFixedKeys = map[string]bool{
	"level": true, "ts": true, "caller": true, "msg": true, "stacktrace": true,
}

func parseLogLine(line string) systemLogEntry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return systemLogEntry{Level: "INFO", Message: line}
	}

	entry := systemLogEntry{}
	if s, ok := raw["level"].(string); ok {
		entry.Level = strings.ToUpper(s)
	}
	if s, ok := raw["ts"].(string); ok {
		entry.Timestamp = s
	}
	if s, ok := raw["caller"].(string); ok {
		entry.Caller = s
	}
	msg, _ := raw["msg"].(string)

	extras := make([]string, 0, len(raw))
	for k, v := range raw {
		if zapFixedKeys[k] {
			continue
		}
		extras = append(extras, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(extras)
	if len(extras) > 0 {
		msg = strings.TrimSpace(msg + " " + strings.Join(extras, " "))
	}
	entry.Message = msg
	return entry
}

// Tail handles GET /api/system-logs. Returns the newest matching entries,
// oldest first. A missing file is an empty log, not an error: the gateway
// may simply not have written anything yet.
func (h *SystemLogHandler) Tail(c *gin.Context) {
	limit := intQuery(c, "lines", 100)
	if limit < 1 {
		limit = 100
	}
	if limit > 10000 {
		limit = 10000
	}
	level := c.Query("level")
	search := strings.ToLower(c.Query("search"))

	file, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"lines": []systemLogEntry{}, "total": 0, "file": h.path})
			return
		}
		h.logger.Error("failed to open log file", zap.String("path", h.path), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to read log file")
		return
	}
	defer file.Close()

	entries := []systemLogEntry{}
	scanner := bufio.NewScanner(file)
	// Error entries carry stacktraces well past the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := parseLogLine(line)
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		h.logger.Error("failed to scan log file", zap.String("path", h.path), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to read log file")
		return
	}

	total := len(entries)
	if total > limit {
		entries = entries[total-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"lines": entries, "total": total, "file": h.path})
}

// Clear handles POST /api/system-logs/clear. Truncates the live log file;
// rotated archives are left alone.
func (h *SystemLogHandler) Clear(c *gin.Context) {
	if err := os.Truncate(h.path, 0); err != nil && !os.IsNotExist(err) {
		h.logger.Error("failed to truncate log file", zap.String("path", h.path), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to clear log file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "System log cleared"})
}
