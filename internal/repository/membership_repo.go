package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLMembershipRepository implements MembershipRepository using database/sql.
type SQLMembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new SQLMembershipRepository.
func NewMembershipRepository(db *sql.DB) *SQLMembershipRepository {
	return &SQLMembershipRepository{db: db}
}

// Upsert inserts the edge with a zeroed counter or, if it already exists,
// updates only its priority.
func (r *SQLMembershipRepository) Upsert(ctx context.Context, providerID, groupID int64, priority int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_group_association (provider_id, group_id, priority, active_calls)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT(provider_id, group_id) DO UPDATE SET priority = excluded.priority`,
		providerID, groupID, priority)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

func (r *SQLMembershipRepository) Remove(ctx context.Context, providerID, groupID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM provider_group_association WHERE provider_id = ? AND group_id = ?`,
		providerID, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to remove membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReplaceForGroup drops every edge of the group and recreates the given set.
func (r *SQLMembershipRepository) ReplaceForGroup(ctx context.Context, groupID int64, members []models.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM provider_group_association WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to clear group edges: %w", err)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO provider_group_association (provider_id, group_id, priority, active_calls)
			 VALUES (?, ?, ?, 0)`,
			m.ProviderID, groupID, m.Priority); err != nil {
			return fmt.Errorf("failed to insert group edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SQLMembershipRepository) ListByGroup(ctx context.Context, groupID int64) ([]*models.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider_id, group_id, priority, active_calls
		 FROM provider_group_association WHERE group_id = ? ORDER BY priority, provider_id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var result []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ProviderID, &m.GroupID, &m.Priority, &m.ActiveCalls); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (r *SQLMembershipRepository) ListStatuses(ctx context.Context) ([]models.MembershipStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.provider_id, a.group_id, p.name, p.api_endpoint, a.priority, a.active_calls
		 FROM provider_group_association a
		 JOIN api_providers p ON p.id = a.provider_id
		 ORDER BY a.group_id, a.priority, a.provider_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]models.MembershipStatus, 0)
	for rows.Next() {
		var s models.MembershipStatus
		if err := rows.Scan(&s.ProviderID, &s.GroupID, &s.ProviderName, &s.APIEndpoint, &s.Priority, &s.ActiveCalls); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// CandidatesForGroup returns active, non-excluded members of the group in
// selection order: ascending priority, then active_calls, then provider id.
func (r *SQLMembershipRepository) CandidatesForGroup(ctx context.Context, groupID int64, excluded []int64) ([]Candidate, error) {
	query := `SELECT p.id, p.name, p.api_endpoint, p.api_key, p.model,
	        p.price_per_million_tokens, p.input_price_per_million_tokens,
	        p.output_price_per_million_tokens, p.type, p.is_active,
	        p.total_calls, p.successful_calls,
	        a.provider_id, a.group_id, a.priority, a.active_calls
	 FROM api_providers p
	 JOIN provider_group_association a ON a.provider_id = p.id
	 WHERE a.group_id = ? AND p.is_active = 1`
	params := []any{groupID}

	if len(excluded) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(excluded)), ", ")
		query += ` AND p.id NOT IN (` + placeholders + `)`
		for _, id := range excluded {
			params = append(params, id)
		}
	}
	query += ` ORDER BY a.priority ASC, a.active_calls ASC, p.id ASC`

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var price, inputPrice, outputPrice sql.NullFloat64
		var isActive int
		err := rows.Scan(
			&c.Provider.ID, &c.Provider.Name, &c.Provider.APIEndpoint, &c.Provider.APIKey,
			&c.Provider.Model, &price, &inputPrice, &outputPrice, &c.Provider.Type,
			&isActive, &c.Provider.TotalCalls, &c.Provider.SuccessfulCalls,
			&c.Membership.ProviderID, &c.Membership.GroupID,
			&c.Membership.Priority, &c.Membership.ActiveCalls,
		)
		if err != nil {
			return nil, err
		}
		c.Provider.PricePerMillion = nullableFloat(price)
		c.Provider.InputPricePerM = nullableFloat(inputPrice)
		c.Provider.OutputPricePerM = nullableFloat(outputPrice)
		c.Provider.IsActive = isActive == 1
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *SQLMembershipRepository) IncrementActive(ctx context.Context, providerID, groupID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE provider_group_association SET active_calls = active_calls + 1
		 WHERE provider_id = ? AND group_id = ?`, providerID, groupID)
	if err != nil {
		return fmt.Errorf("failed to increment active calls: %w", err)
	}
	return nil
}

// DecrementActive never drives the counter below zero; a decrement on a
// zeroed edge is a no-op.
func (r *SQLMembershipRepository) DecrementActive(ctx context.Context, providerID, groupID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE provider_group_association SET active_calls = active_calls - 1
		 WHERE provider_id = ? AND group_id = ? AND active_calls > 0`, providerID, groupID)
	if err != nil {
		return fmt.Errorf("failed to decrement active calls: %w", err)
	}
	return nil
}

// ResetAllActive zeroes every counter. Called once at process start so
// counters abandoned by a crash cannot skew selection.
func (r *SQLMembershipRepository) ResetAllActive(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE provider_group_association SET active_calls = 0`)
	if err != nil {
		return fmt.Errorf("failed to reset active calls: %w", err)
	}
	return nil
}
