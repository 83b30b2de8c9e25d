// Package testutil provides shared helpers for the gateway test suites.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/database"
)

// NewTestDB creates an in-memory SQLite database with the full schema.
// The pool is pinned to one connection so every query sees the same
// in-memory database. The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err, "failed to open test database")
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	err = database.RunMigrations(db, zap.NewNop())
	require.NoError(t, err, "failed to run migrations")

	return db
}

// SeedTestData populates the database with a small fixed topology:
//
//	group 1 "gpt-4":    provider 1 (priority 1), provider 2 (priority 2),
//	                    provider 4 (priority 3, inactive)
//	group 2 "claude-3": provider 3 (priority 1)
//	key 1 "sk-test-alpha":   groups 1 and 2, active
//	key 2 "sk-test-revoked": group 1, inactive
func SeedTestData(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO groups (id, name) VALUES
			(1, 'gpt-4'),
			(2, 'claude-3')
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO api_providers
			(id, name, api_endpoint, api_key, model,
			 price_per_million_tokens, input_price_per_million_tokens, output_price_per_million_tokens,
			 type, is_active)
		VALUES
			(1, 'openai-primary', 'https://api.openai.com/v1/chat/completions', 'sk-up-1', 'gpt-4o',
			 NULL, 2.5, 10.0, 'per_token', 1),
			(2, 'openai-backup', 'https://backup.example.com/v1/chat/completions', 'sk-up-2', 'gpt-4-turbo',
			 5.0, NULL, NULL, 'per_token', 1),
			(3, 'anthropic-bridge', 'https://bridge.example.com/v1/chat/completions', 'sk-up-3', 'claude-3-opus',
			 NULL, 15.0, 75.0, 'per_token', 1),
			(4, 'disabled-upstream', 'https://dead.example.com/v1/chat/completions', 'sk-up-4', 'gpt-4o-mini',
			 NULL, NULL, NULL, 'per_token', 0)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO provider_group_association (provider_id, group_id, priority, active_calls)
		VALUES
			(1, 1, 1, 0),
			(2, 1, 2, 0),
			(4, 1, 3, 0),
			(3, 2, 1, 0)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO api_keys (id, key, is_active) VALUES
			(1, 'sk-test-alpha', 1),
			(2, 'sk-test-revoked', 0)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO api_key_group_association (api_key_id, group_id) VALUES
			(1, 1),
			(1, 2),
			(2, 1)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO error_maintenance (id, keyword, description, is_active) VALUES
			(1, 'quota exceeded', 'Billing failures', 1),
			(2, 'legacy error', 'Retired pattern', 0)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO settings (key, value) VALUES
			('failover_threshold_count', '2'),
			('failover_threshold_period_minutes', '5')
	`)
	require.NoError(t, err)
}
