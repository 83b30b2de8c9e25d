package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLSettingsRepository implements SettingsRepository on SQLite.
type SQLSettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new SQLSettingsRepository.
func NewSettingsRepository(db *sql.DB) *SQLSettingsRepository {
	return &SQLSettingsRepository{db: db}
}

// Get returns the stored value, or "" when the key is absent.
func (r *SQLSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// Find returns the setting row, or nil when the key does not exist.
func (r *SQLSettingsRepository) Find(ctx context.Context, key string) (*models.Setting, error) {
	var s models.Setting
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value FROM settings WHERE key = ?`, key).Scan(&s.Key, &s.Value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &s, nil
}

// GetInt parses the stored value as an integer, falling back when the key is
// absent or malformed.
func (r *SQLSettingsRepository) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	value, err := r.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

func (r *SQLSettingsRepository) List(ctx context.Context) ([]*models.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make([]*models.Setting, 0)
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, &s)
	}
	return settings, rows.Err()
}

func (r *SQLSettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// Seed inserts defaults without overwriting operator-tuned values.
func (r *SQLSettingsRepository) Seed(ctx context.Context, defaults map[string]string) error {
	for key, value := range defaults {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}
	return nil
}
