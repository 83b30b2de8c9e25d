package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLKeywordRepository implements KeywordRepository on SQLite.
type SQLKeywordRepository struct {
	db *sql.DB
}

// NewKeywordRepository creates a new SQLKeywordRepository.
func NewKeywordRepository(db *sql.DB) *SQLKeywordRepository {
	return &SQLKeywordRepository{db: db}
}

const keywordColumns = "id, keyword, description, last_triggered, is_active"

func scanKeyword(s scanner) (*models.ErrorKeyword, error) {
	var kw models.ErrorKeyword
	var description sql.NullString
	var lastTriggered sql.NullTime
	var isActive int
	if err := s.Scan(&kw.ID, &kw.Keyword, &description, &lastTriggered, &isActive); err != nil {
		return nil, err
	}
	kw.Description = nullableString(description)
	kw.LastTriggered = nullableTime(lastTriggered)
	kw.IsActive = isActive == 1
	return &kw, nil
}

func (r *SQLKeywordRepository) FindByID(ctx context.Context, id int64) (*models.ErrorKeyword, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM error_maintenance WHERE id = ?`, id)
	kw, err := scanKeyword(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get keyword: %w", err)
	}
	return kw, nil
}

func (r *SQLKeywordRepository) FindAll(ctx context.Context, offset, limit int) ([]*models.ErrorKeyword, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM error_maintenance ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query keywords: %w", err)
	}
	defer rows.Close()

	keywords := make([]*models.ErrorKeyword, 0)
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// FindAllActive returns the keywords the failure sentinel scans for.
func (r *SQLKeywordRepository) FindAllActive(ctx context.Context) ([]*models.ErrorKeyword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM error_maintenance WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active keywords: %w", err)
	}
	defer rows.Close()

	keywords := make([]*models.ErrorKeyword, 0)
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

func (r *SQLKeywordRepository) Insert(ctx context.Context, kw *models.ErrorKeyword) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO error_maintenance (keyword, description, is_active) VALUES (?, ?, ?)`,
		kw.Keyword, kw.Description, boolToInt(kw.IsActive))
	if err != nil {
		return 0, fmt.Errorf("failed to insert keyword: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	kw.ID = id
	return id, nil
}

func (r *SQLKeywordRepository) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields))
	params := make([]any, 0, len(fields)+1)
	for column, value := range fields {
		if b, ok := value.(bool); ok {
			value = boolToInt(b)
		}
		setClauses = append(setClauses, column+" = ?")
		params = append(params, value)
	}
	params = append(params, id)
	_, err := r.db.ExecContext(ctx,
		`UPDATE error_maintenance SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, params...)
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}
	return nil
}

func (r *SQLKeywordRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM error_maintenance WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete keyword: %w", err)
	}
	return nil
}

// TouchTriggered stamps the keyword's last match time.
func (r *SQLKeywordRepository) TouchTriggered(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE error_maintenance SET last_triggered = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to touch keyword: %w", err)
	}
	return nil
}
