package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLGroupRepository implements GroupRepository using database/sql.
type SQLGroupRepository struct {
	db *sql.DB
}

// NewGroupRepository creates a new SQLGroupRepository.
func NewGroupRepository(db *sql.DB) *SQLGroupRepository {
	return &SQLGroupRepository{db: db}
}

func (r *SQLGroupRepository) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM groups WHERE id = ?`, id).Scan(&g.ID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *SQLGroupRepository) FindByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM groups WHERE name = ?`, name).Scan(&g.ID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group by name: %w", err)
	}
	return &g, nil
}

func (r *SQLGroupRepository) FindAll(ctx context.Context, offset, limit int) ([]*models.Group, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM groups ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, 0, err
		}
		groups = append(groups, &g)
	}
	return groups, total, rows.Err()
}

func (r *SQLGroupRepository) Insert(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `INSERT INTO groups (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Delete removes the group and both association edges referencing it.
func (r *SQLGroupRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM provider_group_association WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete provider edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM api_key_group_association WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete key edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SQLGroupRepository) ProvidersFor(ctx context.Context, groupID int64) ([]*models.Provider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.api_endpoint, p.api_key, p.model,
		        p.price_per_million_tokens, p.input_price_per_million_tokens,
		        p.output_price_per_million_tokens, p.type, p.is_active,
		        p.total_calls, p.successful_calls
		 FROM api_providers p
		 JOIN provider_group_association a ON a.provider_id = p.id
		 WHERE a.group_id = ? ORDER BY a.priority, p.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers for group: %w", err)
	}
	defer rows.Close()
	return scanProviders(rows)
}
