package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BackupHandler serves configuration export and import. It works on the
// database directly because a restore has to replace every table in one
// transaction, which the per-table repositories cannot provide.
type BackupHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(db *sql.DB, logger *zap.Logger) *BackupHandler {
	return &BackupHandler{db: db, logger: logger}
}

// BackupFile is the export envelope. Version pins the layout so future
// imports can reject files they do not understand.
type BackupFile struct {
	Version     int               `json:"version"`
	ExportedAt  string            `json:"exported_at"`
	Groups      []string          `json:"groups"`
	Providers   []backupProvider  `json:"providers"`
	Memberships []backupMember    `json:"memberships"`
	APIKeys     []backupKey       `json:"api_keys"`
	Keywords    []backupKeyword   `json:"keywords"`
	Settings    map[string]string `json:"settings"`
}

// backupProvider carries the exported row id so memberships can reference
// providers unambiguously; names are not unique.
type backupProvider struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	APIEndpoint     string   `json:"api_endpoint"`
	APIKey          string   `json:"api_key"`
	Model           string   `json:"model"`
	PricePerMillion *float64 `json:"price_per_million_tokens,omitempty"`
	InputPricePerM  *float64 `json:"input_price_per_million_tokens,omitempty"`
	OutputPricePerM *float64 `json:"output_price_per_million_tokens,omitempty"`
	Type            string   `json:"type"`
	IsActive        bool     `json:"is_active"`
}

type backupMember struct {
	ProviderID int64  `json:"provider_id"`
	Group      string `json:"group"`
	Priority   int    `json:"priority"`
}

type backupKey struct {
	Key      string   `json:"key"`
	IsActive bool     `json:"is_active"`
	Groups   []string `json:"groups"`
}

type backupKeyword struct {
	Keyword     string `json:"keyword"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// Export handles GET /api/backup/export. The response is the full gateway
// topology as a downloadable JSON document, upstream credentials included.
func (h *BackupHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	data := BackupFile{
		Version:    1,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Settings:   map[string]string{},
	}

	var err error
	if data.Groups, err = h.exportGroups(ctx); err != nil {
		h.exportError(c, "groups", err)
		return
	}
	if data.Providers, err = h.exportProviders(ctx); err != nil {
		h.exportError(c, "providers", err)
		return
	}
	if data.Memberships, err = h.exportMemberships(ctx); err != nil {
		h.exportError(c, "memberships", err)
		return
	}
	if data.APIKeys, err = h.exportKeys(ctx); err != nil {
		h.exportError(c, "api_keys", err)
		return
	}
	if data.Keywords, err = h.exportKeywords(ctx); err != nil {
		h.exportError(c, "keywords", err)
		return
	}
	if err = h.exportSettings(ctx, data.Settings); err != nil {
		h.exportError(c, "settings", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="llmrelay-backup-%s.json"`,
		time.Now().Format("20060102-150405")))
	c.JSON(http.StatusOK, data)
}

func (h *BackupHandler) exportError(c *gin.Context, section string, err error) {
	h.logger.Error("configuration export failed", zap.String("section", section), zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to export configuration")
}

func (h *BackupHandler) exportGroups(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT name FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	groups := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}

func (h *BackupHandler) exportProviders(ctx context.Context) ([]backupProvider, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, name, api_endpoint, api_key, model,
		        price_per_million_tokens, input_price_per_million_tokens,
		        output_price_per_million_tokens, type, is_active
		 FROM api_providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	providers := []backupProvider{}
	for rows.Next() {
		var p backupProvider
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.APIEndpoint, &p.APIKey, &p.Model,
			&p.PricePerMillion, &p.InputPricePerM, &p.OutputPricePerM, &p.Type, &active); err != nil {
			return nil, err
		}
		p.IsActive = active == 1
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (h *BackupHandler) exportMemberships(ctx context.Context) ([]backupMember, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT a.provider_id, g.name, a.priority
		 FROM provider_group_association a
		 JOIN groups g ON a.group_id = g.id
		 ORDER BY a.group_id, a.priority, a.provider_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []backupMember{}
	for rows.Next() {
		var m backupMember
		if err := rows.Scan(&m.ProviderID, &m.Group, &m.Priority); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (h *BackupHandler) exportKeys(ctx context.Context) ([]backupKey, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT id, key, is_active FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	type keyRow struct {
		id  int64
		key backupKey
	}
	var keyRows []keyRow
	for rows.Next() {
		var kr keyRow
		var active int
		if err := rows.Scan(&kr.id, &kr.key.Key, &active); err != nil {
			rows.Close()
			return nil, err
		}
		kr.key.IsActive = active == 1
		kr.key.Groups = []string{}
		keyRows = append(keyRows, kr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	keys := []backupKey{}
	for i := range keyRows {
		grows, err := h.db.QueryContext(ctx,
			`SELECT g.name FROM api_key_group_association a
			 JOIN groups g ON a.group_id = g.id
			 WHERE a.api_key_id = ? ORDER BY g.id`, keyRows[i].id)
		if err != nil {
			return nil, err
		}
		for grows.Next() {
			var name string
			if err := grows.Scan(&name); err != nil {
				grows.Close()
				return nil, err
			}
			keyRows[i].key.Groups = append(keyRows[i].key.Groups, name)
		}
		if err := grows.Err(); err != nil {
			grows.Close()
			return nil, err
		}
		grows.Close()
		keys = append(keys, keyRows[i].key)
	}
	return keys, nil
}

func (h *BackupHandler) exportKeywords(ctx context.Context) ([]backupKeyword, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT keyword, COALESCE(description, ''), is_active FROM error_maintenance ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keywords := []backupKeyword{}
	for rows.Next() {
		var kw backupKeyword
		var active int
		if err := rows.Scan(&kw.Keyword, &kw.Description, &active); err != nil {
			return nil, err
		}
		kw.IsActive = active == 1
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

func (h *BackupHandler) exportSettings(ctx context.Context, out map[string]string) error {
	rows, err := h.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		out[k] = v
	}
	return rows.Err()
}

// Import handles POST /api/backup/import. The current topology is replaced
// wholesale; settings are upserted so runtime keys absent from the file
// survive. Call logs are kept but detached from providers and keys, since
// the rows they referenced no longer exist.
func (h *BackupHandler) Import(c *gin.Context) {
	var data BackupFile
	if err := c.ShouldBindJSON(&data); err != nil {
		validationError(c, err)
		return
	}
	if data.Version != 1 {
		errorResponse(c, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("Unsupported backup version: %d", data.Version))
		return
	}

	ctx := c.Request.Context()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.importError(c, "begin", err)
		return
	}
	defer tx.Rollback()

	clears := []string{
		`DELETE FROM api_key_group_association`,
		`DELETE FROM api_keys`,
		`DELETE FROM provider_group_association`,
		`DELETE FROM api_providers`,
		`DELETE FROM groups`,
		`DELETE FROM error_maintenance`,
		`UPDATE call_logs SET provider_id = NULL, api_key_id = NULL`,
	}
	for _, stmt := range clears {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			h.importError(c, "clear", err)
			return
		}
	}

	groupIDs := make(map[string]int64, len(data.Groups))
	for _, name := range data.Groups {
		res, err := tx.ExecContext(ctx, `INSERT INTO groups (name) VALUES (?)`, name)
		if err != nil {
			h.importError(c, "groups", err)
			return
		}
		id, _ := res.LastInsertId()
		groupIDs[name] = id
	}

	providerIDs := make(map[int64]int64, len(data.Providers))
	for _, p := range data.Providers {
		if p.Type == "" {
			p.Type = "per_token"
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO api_providers (name, api_endpoint, api_key, model,
			        price_per_million_tokens, input_price_per_million_tokens,
			        output_price_per_million_tokens, type, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.APIEndpoint, p.APIKey, p.Model,
			p.PricePerMillion, p.InputPricePerM, p.OutputPricePerM,
			p.Type, boolInt(p.IsActive))
		if err != nil {
			h.importError(c, "providers", err)
			return
		}
		id, _ := res.LastInsertId()
		providerIDs[p.ID] = id
	}

	for _, m := range data.Memberships {
		gid, ok := groupIDs[m.Group]
		if !ok {
			errorResponse(c, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("Membership references unknown group: %s", m.Group))
			return
		}
		pid, ok := providerIDs[m.ProviderID]
		if !ok {
			errorResponse(c, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("Membership references unknown provider id: %d", m.ProviderID))
			return
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO provider_group_association (provider_id, group_id, priority, active_calls)
			 VALUES (?, ?, ?, 0)`, pid, gid, m.Priority); err != nil {
			h.importError(c, "memberships", err)
			return
		}
	}

	for _, k := range data.APIKeys {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO api_keys (key, is_active) VALUES (?, ?)`, k.Key, boolInt(k.IsActive))
		if err != nil {
			h.importError(c, "api_keys", err)
			return
		}
		kid, _ := res.LastInsertId()
		for _, name := range k.Groups {
			gid, ok := groupIDs[name]
			if !ok {
				errorResponse(c, http.StatusBadRequest, "validation_error",
					fmt.Sprintf("API key references unknown group: %s", name))
				return
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO api_key_group_association (api_key_id, group_id) VALUES (?, ?)`,
				kid, gid); err != nil {
				h.importError(c, "api_keys", err)
				return
			}
		}
	}

	for _, kw := range data.Keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO error_maintenance (keyword, description, is_active) VALUES (?, ?, ?)`,
			kw.Keyword, kw.Description, boolInt(kw.IsActive)); err != nil {
			h.importError(c, "keywords", err)
			return
		}
	}

	for k, v := range data.Settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			h.importError(c, "settings", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.importError(c, "commit", err)
		return
	}

	h.logger.Info("configuration imported",
		zap.Int("groups", len(data.Groups)),
		zap.Int("providers", len(data.Providers)),
		zap.Int("api_keys", len(data.APIKeys)),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Backup imported successfully"})
}

func (h *BackupHandler) importError(c *gin.Context, section string, err error) {
	h.logger.Error("configuration import failed", zap.String("section", section), zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, "api_error", "Failed to import configuration")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
