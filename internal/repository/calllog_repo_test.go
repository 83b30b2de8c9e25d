//go:build !integration && !e2e
// +build !integration,!e2e

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestCallLogRepository_Insert(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())
	ctx := context.Background()

	log := &models.CallLog{
		ProviderID:     testutil.Ptr(int64(1)),
		APIKeyID:       testutil.Ptr(int64(1)),
		IsSuccess:      true,
		StatusCode:     testutil.Ptr(200),
		ResponseTimeMs: testutil.Ptr(123.4),
		TotalTokens:    testutil.Ptr(30),
		Cost:           testutil.Ptr(0.5),
	}
	id, err := repo.Insert(ctx, log, testutil.Ptr(`{"model":"gpt-4"}`), testutil.Ptr(`{"choices":[]}`))
	require.NoError(t, err)
	assert.Equal(t, id, log.ID)
	assert.False(t, log.RequestTimestamp.IsZero())

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsSuccess)
	assert.Equal(t, "openai-primary", found.ProviderName)
	require.NotNil(t, found.RequestBody)
	assert.Equal(t, `{"model":"gpt-4"}`, *found.RequestBody)
	require.NotNil(t, found.ResponseBody)

	// The owning provider's lifetime counters move with each attempt.
	var total, successful int
	require.NoError(t, db.QueryRow(
		`SELECT total_calls, successful_calls FROM api_providers WHERE id = 1`).
		Scan(&total, &successful))
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, successful)

	_, err = repo.Insert(ctx, &models.CallLog{
		ProviderID: testutil.Ptr(int64(1)),
		APIKeyID:   testutil.Ptr(int64(1)),
		IsSuccess:  false,
		StatusCode: testutil.Ptr(502),
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.QueryRow(
		`SELECT total_calls, successful_calls FROM api_providers WHERE id = 1`).
		Scan(&total, &successful))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successful)

	// Rows without a provider (auth failures, exhaustion) touch no counters.
	_, err = repo.Insert(ctx, &models.CallLog{
		APIKeyID:   testutil.Ptr(int64(1)),
		IsSuccess:  false,
		StatusCode: testutil.Ptr(503),
	}, nil, nil)
	require.NoError(t, err)
}

func TestCallLogRepository_List(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())
	ctx := context.Background()

	for i, ok := range []bool{true, false, true} {
		_, err := repo.Insert(ctx, &models.CallLog{
			ProviderID: testutil.Ptr(int64(1)),
			APIKeyID:   testutil.Ptr(int64(1)),
			IsSuccess:  ok,
			StatusCode: testutil.Ptr(200 + i),
		}, nil, nil)
		require.NoError(t, err)
	}

	logs, total, err := repo.List(ctx, CallLogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, int64(3), total)
	// Newest first, with the provider name joined in.
	assert.Greater(t, logs[0].ID, logs[1].ID)
	assert.Equal(t, "openai-primary", logs[0].ProviderName)
	// Bodies are never projected on the list path.
	assert.Nil(t, logs[0].RequestBody)

	failures, total, err := repo.List(ctx, CallLogFilter{Success: testutil.Ptr(false)})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), total)
	assert.False(t, failures[0].IsSuccess)

	// One stray attempt against another provider, without a key.
	_, err = repo.Insert(ctx, &models.CallLog{
		ProviderID: testutil.Ptr(int64(2)),
		IsSuccess:  false,
		StatusCode: testutil.Ptr(502),
	}, nil, nil)
	require.NoError(t, err)

	byProvider, total, err := repo.List(ctx, CallLogFilter{ProviderID: testutil.Ptr(int64(2))})
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "openai-backup", byProvider[0].ProviderName)

	byKey, total, err := repo.List(ctx, CallLogFilter{APIKeyID: testutil.Ptr(int64(1))})
	require.NoError(t, err)
	require.Len(t, byKey, 3)
	assert.Equal(t, int64(3), total)

	combined, total, err := repo.List(ctx, CallLogFilter{
		Success:    testutil.Ptr(false),
		ProviderID: testutil.Ptr(int64(1)),
	})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, int64(1), total)

	paged, total, err := repo.List(ctx, CallLogFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 2)
	assert.Equal(t, int64(4), total)
}

func TestCallLogRepository_FindByIDMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())

	log, err := repo.FindByID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestCallLogRepository_CountRecentFailures(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	rows := []struct {
		age     time.Duration
		success bool
	}{
		{1 * time.Minute, false},  // counts
		{2 * time.Minute, false},  // counts
		{10 * time.Minute, false}, // outside the window
		{1 * time.Minute, true},   // success never counts
	}
	for _, row := range rows {
		_, err := repo.Insert(ctx, &models.CallLog{
			ProviderID:       testutil.Ptr(int64(1)),
			APIKeyID:         testutil.Ptr(int64(1)),
			IsSuccess:        row.success,
			RequestTimestamp: now.Add(-row.age),
		}, nil, nil)
		require.NoError(t, err)
	}

	count, err := repo.CountRecentFailures(ctx, 1, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	other, err := repo.CountRecentFailures(ctx, 2, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestCallLogRepository_DashboardStats(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	logs := []*models.CallLog{
		{ProviderID: testutil.Ptr(int64(1)), APIKeyID: testutil.Ptr(int64(1)), IsSuccess: true,
			ResponseTimeMs: testutil.Ptr(100.0), TotalTokens: testutil.Ptr(30), Cost: testutil.Ptr(0.5)},
		{ProviderID: testutil.Ptr(int64(1)), APIKeyID: testutil.Ptr(int64(1)), IsSuccess: false,
			ResponseTimeMs: testutil.Ptr(50.0)},
		{ProviderID: testutil.Ptr(int64(3)), APIKeyID: testutil.Ptr(int64(1)), IsSuccess: true,
			ResponseTimeMs: testutil.Ptr(300.0), TotalTokens: testutil.Ptr(50), Cost: testutil.Ptr(1.25)},
		// Exhaustion row: no provider, excluded from the summary.
		{APIKeyID: testutil.Ptr(int64(1)), IsSuccess: false, ResponseTimeMs: testutil.Ptr(0.0)},
	}
	for _, log := range logs {
		log.RequestTimestamp = now
		_, err := repo.Insert(ctx, log, nil, nil)
		require.NoError(t, err)
	}

	stats, err := repo.DashboardStats(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Summary.TotalCalls)
	assert.InDelta(t, 66.7, stats.Summary.SuccessRate, 0.01)
	assert.Equal(t, int64(80), stats.Summary.TotalTokens)
	assert.InDelta(t, 1.75, stats.Summary.TotalCost, 0.0001)
	assert.Equal(t, int64(2), stats.Summary.APIKeys)

	require.Len(t, stats.ModelDistribution, 2)
	assert.Equal(t, "claude-3-opus", stats.ModelDistribution[0].Name)
	assert.Equal(t, int64(1), stats.ModelDistribution[0].Value)
	assert.Equal(t, "gpt-4o", stats.ModelDistribution[1].Name)
	assert.Equal(t, int64(2), stats.ModelDistribution[1].Value)

	require.Equal(t, []string{"claude-3-opus", "gpt-4o"}, stats.ModelStats.Names)
	assert.InDelta(t, 300, stats.ModelStats.AvgTimes[0], 0.01)
	assert.InDelta(t, 75, stats.ModelStats.AvgTimes[1], 0.01)
	assert.InDelta(t, 1.25, stats.CostStats.Values[0], 0.0001)
	assert.InDelta(t, 0.5, stats.CostStats.Values[1], 0.0001)

	require.Len(t, stats.DailyCalls.Dates, 7)
	require.Len(t, stats.DailyCalls.Values, 7)
	assert.Equal(t, now.Format("2006-01-02"), stats.DailyCalls.Dates[6])
	// The daily series counts every attempt, exhaustion rows included.
	assert.Equal(t, int64(4), stats.DailyCalls.Values[6])

	require.Len(t, stats.EndpointStats.Names, 2)
	assert.Equal(t, "api.openai.com", stats.EndpointStats.Names[0])
	assert.Equal(t, "bridge.example.com", stats.EndpointStats.Names[1])
	assert.Equal(t, int64(2), stats.EndpointStats.TotalCalls[0])
	assert.InDelta(t, 50, stats.EndpointStats.SuccessRates[0], 0.01)
	assert.InDelta(t, 100, stats.EndpointStats.SuccessRates[1], 0.01)
}

func TestCallLogRepository_PruneBefore(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewCallLogRepository(db, testutil.NewTestLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	ages := []time.Duration{40 * 24 * time.Hour, 35 * 24 * time.Hour, time.Hour}
	for _, age := range ages {
		_, err := repo.Insert(ctx, &models.CallLog{
			ProviderID:       testutil.Ptr(int64(1)),
			APIKeyID:         testutil.Ptr(int64(1)),
			IsSuccess:        true,
			RequestTimestamp: now.Add(-age),
		}, testutil.Ptr("req"), testutil.Ptr("resp"))
		require.NoError(t, err)
	}

	deleted, err := repo.PruneBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	logs, total, err := repo.List(ctx, CallLogFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, int64(1), total)

	// Sidecars of pruned rows are gone; the survivor keeps its bodies.
	var sidecars int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM call_log_details`).Scan(&sidecars))
	assert.Equal(t, 1, sidecars)

	none, err := repo.PruneBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, none)
}
