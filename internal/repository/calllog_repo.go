package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
)

// SQLCallLogRepository implements CallLogRepository. Writes go through the
// primary pool; list and aggregation queries use the read pool so a busy
// dashboard cannot stall request logging.
type SQLCallLogRepository struct {
	db     *sql.DB
	readDB *sql.DB
	logger *zap.Logger
}

// NewCallLogRepository creates a new SQLCallLogRepository.
// If readDB is nil, db is used for both reads and writes.
func NewCallLogRepository(db *sql.DB, logger *zap.Logger, readDB ...*sql.DB) *SQLCallLogRepository {
	r := &SQLCallLogRepository{
		db:     db,
		readDB: db,
		logger: logger,
	}
	if len(readDB) > 0 && readDB[0] != nil {
		r.readDB = readDB[0]
	}
	return r
}

// Insert writes the attempt row, its body sidecar, and the owning provider's
// lifetime counters in a single transaction.
func (r *SQLCallLogRepository) Insert(ctx context.Context, log *models.CallLog, requestBody, responseBody *string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if log.RequestTimestamp.IsZero() {
		log.RequestTimestamp = time.Now().UTC()
	}
	var responseTS any
	if log.ResponseTimestamp != nil {
		responseTS = log.ResponseTimestamp.UTC().Format(timeFormat)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO call_logs (provider_id, api_key_id, request_timestamp,
		        response_timestamp, is_success, status_code, response_time_ms,
		        error_message, prompt_tokens, completion_tokens, total_tokens, cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ProviderID, log.APIKeyID, log.RequestTimestamp.UTC().Format(timeFormat),
		responseTS, boolToInt(log.IsSuccess), log.StatusCode, log.ResponseTimeMs,
		log.ErrorMessage, log.PromptTokens, log.CompletionTokens, log.TotalTokens, log.Cost)
	if err != nil {
		return 0, fmt.Errorf("failed to insert call log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO call_log_details (id, request_body, response_body) VALUES (?, ?, ?)`,
		id, requestBody, responseBody); err != nil {
		return 0, fmt.Errorf("failed to insert call log detail: %w", err)
	}

	if log.ProviderID != nil {
		success := 0
		if log.IsSuccess {
			success = 1
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE api_providers SET total_calls = total_calls + 1,
			        successful_calls = successful_calls + ?
			 WHERE id = ?`, success, *log.ProviderID); err != nil {
			return 0, fmt.Errorf("failed to update provider counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	log.ID = id
	return id, nil
}

const callLogColumns = `l.id, l.provider_id, l.api_key_id, l.request_timestamp,
	l.response_timestamp, l.is_success, l.status_code, l.response_time_ms,
	l.error_message, l.prompt_tokens, l.completion_tokens, l.total_tokens, l.cost`

func scanCallLog(s scanner, withProviderName bool) (*models.CallLog, error) {
	var log models.CallLog
	var providerID, apiKeyID sql.NullInt64
	var requestTS time.Time
	var responseTS sql.NullTime
	var isSuccess int
	var statusCode sql.NullInt64
	var responseTime sql.NullFloat64
	var errorMsg sql.NullString
	var promptTokens, completionTokens, totalTokens sql.NullInt64
	var cost sql.NullFloat64

	dest := []any{
		&log.ID, &providerID, &apiKeyID, &requestTS, &responseTS,
		&isSuccess, &statusCode, &responseTime, &errorMsg,
		&promptTokens, &completionTokens, &totalTokens, &cost,
	}
	var providerName sql.NullString
	if withProviderName {
		dest = append(dest, &providerName)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	log.ProviderID = nullableInt64(providerID)
	log.APIKeyID = nullableInt64(apiKeyID)
	log.RequestTimestamp = requestTS
	log.ResponseTimestamp = nullableTime(responseTS)
	log.IsSuccess = isSuccess == 1
	log.StatusCode = nullableInt(statusCode)
	log.ResponseTimeMs = nullableFloat(responseTime)
	log.ErrorMessage = nullableString(errorMsg)
	log.PromptTokens = nullableInt(promptTokens)
	log.CompletionTokens = nullableInt(completionTokens)
	log.TotalTokens = nullableInt(totalTokens)
	log.Cost = nullableFloat(cost)
	if providerName.Valid {
		log.ProviderName = providerName.String
	}
	return &log, nil
}

// List returns logs newest-first. Body columns are never projected here.
func (r *SQLCallLogRepository) List(ctx context.Context, f CallLogFilter) ([]*models.CallLog, int64, error) {
	where := []string{"1=1"}
	params := []any{}
	if f.Success != nil {
		where = append(where, "l.is_success = ?")
		params = append(params, boolToInt(*f.Success))
	}
	if f.ProviderID != nil {
		where = append(where, "l.provider_id = ?")
		params = append(params, *f.ProviderID)
	}
	if f.APIKeyID != nil {
		where = append(where, "l.api_key_id = ?")
		params = append(params, *f.APIKeyID)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_logs l WHERE `+whereSQL, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	params = append(params, limit, f.Offset)
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+callLogColumns+`, p.name
		 FROM call_logs l
		 LEFT JOIN api_providers p ON p.id = l.provider_id
		 WHERE `+whereSQL+`
		 ORDER BY l.id DESC LIMIT ? OFFSET ?`, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.CallLog, 0)
	for rows.Next() {
		log, err := scanCallLog(rows, true)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	return logs, total, rows.Err()
}

// FindByID returns the log with its sidecar bodies merged in.
func (r *SQLCallLogRepository) FindByID(ctx context.Context, id int64) (*models.CallLog, error) {
	row := r.readDB.QueryRowContext(ctx,
		`SELECT `+callLogColumns+`, p.name
		 FROM call_logs l
		 LEFT JOIN api_providers p ON p.id = l.provider_id
		 WHERE l.id = ?`, id)
	log, err := scanCallLog(row, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call log: %w", err)
	}

	var reqBody, respBody sql.NullString
	err = r.readDB.QueryRowContext(ctx,
		`SELECT request_body, response_body FROM call_log_details WHERE id = ?`, id).
		Scan(&reqBody, &respBody)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get call log detail: %w", err)
	}
	log.RequestBody = nullableString(reqBody)
	log.ResponseBody = nullableString(respBody)
	return log, nil
}

// CountRecentFailures counts failed attempts for a provider since the given
// instant. Feeds the selector's optional health filter.
func (r *SQLCallLogRepository) CountRecentFailures(ctx context.Context, providerID int64, since time.Time) (int, error) {
	var count int
	err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_logs
		 WHERE provider_id = ? AND is_success = 0 AND request_timestamp >= ?`,
		providerID, since.UTC().Format(timeFormat)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return count, nil
}

// DashboardStats runs the admin dashboard aggregates. Null-provider rows
// (auth failures, exhaustion records) are excluded from the summary.
func (r *SQLCallLogRepository) DashboardStats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	var totalCalls, successCalls sql.NullInt64
	var totalTokens sql.NullInt64
	var totalCost sql.NullFloat64
	err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(id), SUM(CASE WHEN is_success = 1 THEN 1 ELSE 0 END),
		        SUM(total_tokens), SUM(cost)
		 FROM call_logs WHERE provider_id IS NOT NULL`).
		Scan(&totalCalls, &successCalls, &totalTokens, &totalCost)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate summary: %w", err)
	}
	stats.Summary.TotalCalls = totalCalls.Int64
	if totalCalls.Int64 > 0 {
		rate := float64(successCalls.Int64) / float64(totalCalls.Int64) * 100
		stats.Summary.SuccessRate = roundToPlaces(rate, 1)
	}
	stats.Summary.TotalTokens = totalTokens.Int64
	stats.Summary.TotalCost = roundToPlaces(totalCost.Float64, 4)
	if err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys`).Scan(&stats.Summary.APIKeys); err != nil {
		return nil, fmt.Errorf("failed to count api keys: %w", err)
	}

	if err := r.modelAggregates(ctx, stats); err != nil {
		return nil, err
	}
	if err := r.dailySeries(ctx, stats, now); err != nil {
		return nil, err
	}
	if err := r.endpointAggregates(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *SQLCallLogRepository) modelAggregates(ctx context.Context, stats *models.DashboardStats) error {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT p.model, COUNT(l.id), AVG(l.response_time_ms), SUM(l.cost)
		 FROM call_logs l
		 JOIN api_providers p ON p.id = l.provider_id
		 GROUP BY p.model`)
	if err != nil {
		return fmt.Errorf("failed to aggregate model stats: %w", err)
	}
	defer rows.Close()

	type modelAgg struct {
		count   int64
		avgTime float64
		cost    float64
	}
	aggs := make(map[string]modelAgg)
	for rows.Next() {
		var model sql.NullString
		var count int64
		var avgTime, cost sql.NullFloat64
		if err := rows.Scan(&model, &count, &avgTime, &cost); err != nil {
			return err
		}
		if !model.Valid || model.String == "" {
			continue
		}
		aggs[model.String] = modelAgg{count: count, avgTime: avgTime.Float64, cost: cost.Float64}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	sort.Strings(names)

	stats.ModelDistribution = make([]models.NameValue, 0, len(names))
	stats.ModelStats.Names = names
	stats.ModelStats.AvgTimes = make([]float64, 0, len(names))
	stats.CostStats.Names = names
	stats.CostStats.Values = make([]float64, 0, len(names))
	for _, name := range names {
		agg := aggs[name]
		stats.ModelDistribution = append(stats.ModelDistribution, models.NameValue{Name: name, Value: agg.count})
		stats.ModelStats.AvgTimes = append(stats.ModelStats.AvgTimes, roundToPlaces(agg.avgTime, 0))
		stats.CostStats.Values = append(stats.CostStats.Values, roundToPlaces(agg.cost, 4))
	}
	return nil
}

func (r *SQLCallLogRepository) dailySeries(ctx context.Context, stats *models.DashboardStats, now time.Time) error {
	start := now.UTC().AddDate(0, 0, -6).Truncate(24 * time.Hour)
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT date(request_timestamp), COUNT(id)
		 FROM call_logs WHERE request_timestamp >= ?
		 GROUP BY date(request_timestamp) ORDER BY date(request_timestamp)`,
		start.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to aggregate daily calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return err
		}
		counts[day] = count
	}
	if err := rows.Err(); err != nil {
		return err
	}

	stats.DailyCalls.Dates = make([]string, 0, 7)
	stats.DailyCalls.Values = make([]int64, 0, 7)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		stats.DailyCalls.Dates = append(stats.DailyCalls.Dates, day)
		stats.DailyCalls.Values = append(stats.DailyCalls.Values, counts[day])
	}
	return nil
}

func (r *SQLCallLogRepository) endpointAggregates(ctx context.Context, stats *models.DashboardStats) error {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT p.api_endpoint, COUNT(l.id),
		        SUM(CASE WHEN l.is_success = 1 THEN 1 ELSE 0 END),
		        AVG(l.response_time_ms)
		 FROM call_logs l
		 JOIN api_providers p ON p.id = l.provider_id
		 GROUP BY p.api_endpoint ORDER BY p.api_endpoint`)
	if err != nil {
		return fmt.Errorf("failed to aggregate endpoint stats: %w", err)
	}
	defer rows.Close()

	stats.EndpointStats.Names = make([]string, 0)
	stats.EndpointStats.SuccessRates = make([]float64, 0)
	stats.EndpointStats.AvgTimes = make([]float64, 0)
	stats.EndpointStats.TotalCalls = make([]int64, 0)
	for rows.Next() {
		var endpoint string
		var total, success int64
		var avgTime sql.NullFloat64
		if err := rows.Scan(&endpoint, &total, &success, &avgTime); err != nil {
			return err
		}

		name := endpoint
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			name = u.Host
		}
		rate := 0.0
		if total > 0 {
			rate = roundToPlaces(float64(success)/float64(total)*100, 0)
		}
		stats.EndpointStats.Names = append(stats.EndpointStats.Names, name)
		stats.EndpointStats.TotalCalls = append(stats.EndpointStats.TotalCalls, total)
		stats.EndpointStats.SuccessRates = append(stats.EndpointStats.SuccessRates, rate)
		stats.EndpointStats.AvgTimes = append(stats.EndpointStats.AvgTimes, roundToPlaces(avgTime.Float64, 0))
	}
	return rows.Err()
}

// PruneBefore deletes logs older than the cutoff along with their body
// sidecars.
func (r *SQLCallLogRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	boundary := cutoff.UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM call_log_details WHERE id IN
		 (SELECT id FROM call_logs WHERE request_timestamp < ?)`, boundary); err != nil {
		return 0, fmt.Errorf("failed to prune call log details: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM call_logs WHERE request_timestamp < ?`, boundary)
	if err != nil {
		return 0, fmt.Errorf("failed to prune call logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	if deleted > 0 {
		r.logger.Info("pruned call logs", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
