package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLAPIKeyRepository implements APIKeyRepository using database/sql.
type SQLAPIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new SQLAPIKeyRepository.
func NewAPIKeyRepository(db *sql.DB) *SQLAPIKeyRepository {
	return &SQLAPIKeyRepository{db: db}
}

func scanAPIKey(s scanner) (*models.APIKey, error) {
	var k models.APIKey
	var isActive int
	var createdAt sql.NullTime
	var lastUsed sql.NullTime

	if err := s.Scan(&k.ID, &k.Key, &isActive, &createdAt, &lastUsed); err != nil {
		return nil, err
	}
	k.IsActive = isActive == 1
	if createdAt.Valid {
		k.CreatedAt = createdAt.Time
	}
	k.LastUsedAt = nullableTime(lastUsed)
	return &k, nil
}

func (r *SQLAPIKeyRepository) groupsFor(ctx context.Context, keyID int64) ([]models.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name FROM groups g
		 JOIN api_key_group_association a ON a.group_id = g.id
		 WHERE a.api_key_id = ? ORDER BY g.id`, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for key: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *SQLAPIKeyRepository) FindByKey(ctx context.Context, key string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, key, is_active, created_at, last_used_at FROM api_keys WHERE key = ?`, key)
	k, err := scanAPIKey(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if k.Groups, err = r.groupsFor(ctx, k.ID); err != nil {
		return nil, err
	}
	return k, nil
}

func (r *SQLAPIKeyRepository) FindByID(ctx context.Context, id int64) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, key, is_active, created_at, last_used_at FROM api_keys WHERE id = ?`, id)
	k, err := scanAPIKey(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if k.Groups, err = r.groupsFor(ctx, k.ID); err != nil {
		return nil, err
	}
	return k, nil
}

// FindAll returns keys newest-first with their groups and lifetime call
// counts attached.
func (r *SQLAPIKeyRepository) FindAll(ctx context.Context, offset, limit int) ([]*models.APIKey, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT k.id, k.key, k.is_active, k.created_at, k.last_used_at,
		        COALESCE(c.call_count, 0)
		 FROM api_keys k
		 LEFT JOIN (SELECT api_key_id, COUNT(id) AS call_count FROM call_logs GROUP BY api_key_id) c
		        ON c.api_key_id = k.id
		 ORDER BY k.id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var isActive int
		var createdAt, lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Key, &isActive, &createdAt, &lastUsed, &k.CallCount); err != nil {
			return nil, err
		}
		k.IsActive = isActive == 1
		if createdAt.Valid {
			k.CreatedAt = createdAt.Time
		}
		k.LastUsedAt = nullableTime(lastUsed)
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, k := range keys {
		if k.Groups, err = r.groupsFor(ctx, k.ID); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (r *SQLAPIKeyRepository) Insert(ctx context.Context, key *models.APIKey, groupIDs []int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeFormat)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO api_keys (key, is_active, created_at) VALUES (?, ?, ?)`,
		key.Key, boolToInt(key.IsActive), now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert api key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO api_key_group_association (api_key_id, group_id) VALUES (?, ?)`,
			id, gid); err != nil {
			return 0, fmt.Errorf("failed to link key to group: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	key.ID = id
	return id, nil
}

// Update applies the active flag and, when groupIDs is non-nil, replaces the
// key's group links. A non-nil empty slice clears every link.
func (r *SQLAPIKeyRepository) Update(ctx context.Context, id int64, isActive *bool, groupIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if isActive != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE api_keys SET is_active = ? WHERE id = ?`, boolToInt(*isActive), id); err != nil {
			return fmt.Errorf("failed to update api key: %w", err)
		}
	}
	if groupIDs != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM api_key_group_association WHERE api_key_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear key groups: %w", err)
		}
		for _, gid := range groupIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO api_key_group_association (api_key_id, group_id) VALUES (?, ?)`,
				id, gid); err != nil {
				return fmt.Errorf("failed to link key to group: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SQLAPIKeyRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM api_key_group_association WHERE api_key_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear key groups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SQLAPIKeyRepository) TouchLastUsed(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeFormat)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
