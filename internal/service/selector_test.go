//go:build !integration && !e2e
// +build !integration,!e2e

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestMatchAuthorizedGroup(t *testing.T) {
	groups := []models.Group{
		{Name: "gpt-4"},
		{Name: "anthropic/claude-3"},
		{Name: "openai/o1"},
	}

	tests := []struct {
		name  string
		model string
		want  string
		ok    bool
	}{
		{"exact", "gpt-4", "gpt-4", true},
		{"group carries vendor prefix", "claude-3", "anthropic/claude-3", true},
		{"model carries vendor prefix", "vendor/gpt-4", "gpt-4", true},
		{"suffix on path boundary only", "o1", "openai/o1", true},
		{"unknown model", "mistral-large", "", false},
		{"no partial match", "gpt", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchAuthorizedGroup(tt.model, groups)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchAuthorizedGroupVendorRewrites(t *testing.T) {
	// The rewrite applies when no exact or suffix rule fired first.
	groups := []models.Group{{Name: "anthropic/3-opus"}, {Name: "openai/4o"}}

	got, ok := MatchAuthorizedGroup("claude-3-opus", groups)
	require.True(t, ok)
	assert.Equal(t, "anthropic/3-opus", got)

	got, ok = MatchAuthorizedGroup("gpt-4o", groups)
	require.True(t, ok)
	assert.Equal(t, "openai/4o", got)
}

func newSelector(t *testing.T, healthFilter bool) (*Selector, *sql.DB, *repository.SQLCallLogRepository) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	logger := testutil.NewTestLogger()
	callLogs := repository.NewCallLogRepository(db, logger)
	sel := NewSelector(
		repository.NewGroupRepository(db),
		repository.NewMembershipRepository(db),
		callLogs,
		repository.NewSettingsRepository(db),
		healthFilter,
		logger,
	)
	return sel, db, callLogs
}

func TestSelectorPriorityOrder(t *testing.T) {
	sel, _, _ := newSelector(t, false)
	ctx := context.Background()

	cand, err := sel.Select(ctx, "gpt-4", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(1), cand.Provider.ID)

	// Excluding the head of the tier falls through to the next priority.
	cand, err = sel.Select(ctx, "gpt-4", []int64{1})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(2), cand.Provider.ID)

	// Provider 4 is inactive, so exhausting 1 and 2 leaves nothing.
	cand, err = sel.Select(ctx, "gpt-4", []int64{1, 2})
	require.NoError(t, err)
	assert.Nil(t, cand)

	cand, err = sel.Select(ctx, "no-such-group", nil)
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSelectorPrefersIdleProviderWithinTier(t *testing.T) {
	sel, db, _ := newSelector(t, false)
	ctx := context.Background()

	// Move provider 2 into tier 1 and load up provider 1.
	memberships := repository.NewMembershipRepository(db)
	require.NoError(t, memberships.Upsert(ctx, 2, 1, 1))
	require.NoError(t, memberships.IncrementActive(ctx, 1, 1))

	cand, err := sel.Select(ctx, "gpt-4", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(2), cand.Provider.ID)
}

func TestSelectorHealthFilter(t *testing.T) {
	sel, _, callLogs := newSelector(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	// Seeded thresholds: 2 failures in 5 minutes. Push provider 1 over.
	for i := 0; i < 2; i++ {
		_, err := callLogs.Insert(ctx, &models.CallLog{
			ProviderID:       testutil.Ptr(int64(1)),
			APIKeyID:         testutil.Ptr(int64(1)),
			IsSuccess:        false,
			RequestTimestamp: now.Add(-time.Minute),
		}, nil, nil)
		require.NoError(t, err)
	}

	cand, err := sel.Select(ctx, "gpt-4", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(2), cand.Provider.ID)
}

func TestSelectorHealthFilterIgnoresStaleFailures(t *testing.T) {
	sel, _, callLogs := newSelector(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, err := callLogs.Insert(ctx, &models.CallLog{
			ProviderID:       testutil.Ptr(int64(1)),
			APIKeyID:         testutil.Ptr(int64(1)),
			IsSuccess:        false,
			RequestTimestamp: now.Add(-time.Hour),
		}, nil, nil)
		require.NoError(t, err)
	}

	cand, err := sel.Select(ctx, "gpt-4", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(1), cand.Provider.ID)
}

func TestSelectorHealthFilterRelaxesWhenAllUnhealthy(t *testing.T) {
	sel, _, callLogs := newSelector(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, providerID := range []int64{1, 1, 2, 2} {
		_, err := callLogs.Insert(ctx, &models.CallLog{
			ProviderID:       testutil.Ptr(providerID),
			APIKeyID:         testutil.Ptr(int64(1)),
			IsSuccess:        false,
			RequestTimestamp: now.Add(-time.Minute),
		}, nil, nil)
		require.NoError(t, err)
	}

	// Both members over the threshold: degrade to the normal ordering
	// instead of refusing the request.
	cand, err := sel.Select(ctx, "gpt-4", nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(1), cand.Provider.ID)
}
