package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLProviderRepository implements ProviderRepository using database/sql.
type SQLProviderRepository struct {
	db *sql.DB
}

// NewProviderRepository creates a new SQLProviderRepository.
func NewProviderRepository(db *sql.DB) *SQLProviderRepository {
	return &SQLProviderRepository{db: db}
}

const providerColumns = `id, name, api_endpoint, api_key, model,
	price_per_million_tokens, input_price_per_million_tokens,
	output_price_per_million_tokens, type, is_active, total_calls, successful_calls`

func scanProvider(s scanner) (*models.Provider, error) {
	var p models.Provider
	var price, inputPrice, outputPrice sql.NullFloat64
	var isActive int

	err := s.Scan(
		&p.ID, &p.Name, &p.APIEndpoint, &p.APIKey, &p.Model,
		&price, &inputPrice, &outputPrice,
		&p.Type, &isActive, &p.TotalCalls, &p.SuccessfulCalls,
	)
	if err != nil {
		return nil, err
	}

	p.PricePerMillion = nullableFloat(price)
	p.InputPricePerM = nullableFloat(inputPrice)
	p.OutputPricePerM = nullableFloat(outputPrice)
	p.IsActive = isActive == 1
	return &p, nil
}

func scanProviders(rows *sql.Rows) ([]*models.Provider, error) {
	var result []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *SQLProviderRepository) FindByID(ctx context.Context, id int64) (*models.Provider, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM api_providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

func (r *SQLProviderRepository) FindByName(ctx context.Context, name string) (*models.Provider, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM api_providers WHERE name = ?`, name)
	p, err := scanProvider(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider by name: %w", err)
	}
	return p, nil
}

func (r *SQLProviderRepository) FindByTriplet(ctx context.Context, endpoint, apiKey, model string) (*models.Provider, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM api_providers
		 WHERE api_endpoint = ? AND api_key = ? AND model = ?`,
		endpoint, apiKey, model)
	p, err := scanProvider(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider by triplet: %w", err)
	}
	return p, nil
}

func (r *SQLProviderRepository) FindByEndpointKey(ctx context.Context, endpoint, apiKey string) ([]*models.Provider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM api_providers
		 WHERE api_endpoint = ? AND api_key = ? ORDER BY id`,
		endpoint, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers by endpoint: %w", err)
	}
	defer rows.Close()
	return scanProviders(rows)
}

func (r *SQLProviderRepository) FindAll(ctx context.Context, f ProviderFilter) ([]*models.Provider, int64, error) {
	where := make([]string, 0, 2)
	params := make([]any, 0, 4)
	if f.Name != "" {
		where = append(where, "name LIKE ?")
		params = append(params, "%"+f.Name+"%")
	}
	if f.Endpoint != "" {
		where = append(where, "api_endpoint LIKE ?")
		params = append(params, "%"+f.Endpoint+"%")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_providers`+whereClause, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count providers: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	params = append(params, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM api_providers`+whereClause+` ORDER BY id LIMIT ? OFFSET ?`,
		params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	providers, err := scanProviders(rows)
	if err != nil {
		return nil, 0, err
	}
	return providers, total, nil
}

func (r *SQLProviderRepository) Insert(ctx context.Context, p *models.Provider) (int64, error) {
	if p.Type == "" {
		p.Type = models.BillingPerToken
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO api_providers (name, api_endpoint, api_key, model,
		        price_per_million_tokens, input_price_per_million_tokens,
		        output_price_per_million_tokens, type, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.APIEndpoint, p.APIKey, p.Model,
		p.PricePerMillion, p.InputPricePerM, p.OutputPricePerM,
		p.Type, boolToInt(p.IsActive))
	if err != nil {
		return 0, fmt.Errorf("failed to insert provider: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return id, nil
}

func (r *SQLProviderRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(updates))
	params := make([]any, 0, len(updates)+1)
	for field, value := range updates {
		if field == "is_active" {
			if b, ok := value.(bool); ok {
				value = boolToInt(b)
			}
		}
		setClauses = append(setClauses, field+" = ?")
		params = append(params, value)
	}
	params = append(params, id)
	query := fmt.Sprintf("UPDATE api_providers SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	if _, err := r.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return nil
}

func (r *SQLProviderRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM api_providers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return nil
}

// DeleteByUpstreamKey removes every provider registered with the given
// upstream credential, along with their call logs and group edges. Used by
// the admin quick-remove operation when an upstream account is retired.
func (r *SQLProviderRepository) DeleteByUpstreamKey(ctx context.Context, apiKey string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM api_providers WHERE api_key = ?`, apiKey)
	if err != nil {
		return 0, fmt.Errorf("failed to list providers for key: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM call_log_details WHERE id IN
		 (SELECT id FROM call_logs WHERE provider_id IN (`+placeholders+`))`, params...); err != nil {
		return 0, fmt.Errorf("failed to delete call log details: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM call_logs WHERE provider_id IN (`+placeholders+`)`, params...); err != nil {
		return 0, fmt.Errorf("failed to delete call logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM provider_group_association WHERE provider_id IN (`+placeholders+`)`, params...); err != nil {
		return 0, fmt.Errorf("failed to delete group edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM api_providers WHERE id IN (`+placeholders+`)`, params...); err != nil {
		return 0, fmt.Errorf("failed to delete providers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return int64(len(ids)), nil
}

func (r *SQLProviderRepository) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE api_providers SET is_active = ? WHERE id = ?`, boolToInt(active), id); err != nil {
		return fmt.Errorf("failed to set provider active flag: %w", err)
	}
	return nil
}

// DisableWithIncident clears the provider's active flag and upserts an
// incident row keyed "<keyword>:<id>" in error_maintenance, atomically. The
// incident row is inactive so it never participates in sentinel matching.
func (r *SQLProviderRepository) DisableWithIncident(ctx context.Context, id int64, keyword, details string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE api_providers SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to disable provider: %w", err)
	}

	incidentKey := fmt.Sprintf("%s:%d", keyword, id)
	now := time.Now().UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO error_maintenance (keyword, description, last_triggered, is_active)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT(keyword) DO UPDATE SET description = excluded.description,
		        last_triggered = excluded.last_triggered`,
		incidentKey, details, now); err != nil {
		return fmt.Errorf("failed to record incident: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SQLProviderRepository) GroupsFor(ctx context.Context, providerID int64) ([]models.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name FROM groups g
		 JOIN provider_group_association a ON a.group_id = g.id
		 WHERE a.provider_id = ? ORDER BY g.id`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for provider: %w", err)
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
