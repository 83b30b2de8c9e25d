//go:build !integration && !e2e
// +build !integration,!e2e

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestComputeCost(t *testing.T) {
	flat := &models.Provider{PricePerMillion: testutil.Ptr(2.0)}
	split := &models.Provider{
		InputPricePerM:  testutil.Ptr(10.0),
		OutputPricePerM: testutil.Ptr(30.0),
	}
	both := &models.Provider{
		PricePerMillion: testutil.Ptr(2.0),
		InputPricePerM:  testutil.Ptr(10.0),
		OutputPricePerM: testutil.Ptr(30.0),
	}
	unpriced := &models.Provider{}

	tests := []struct {
		name     string
		provider *models.Provider
		usage    models.Usage
		want     *float64
	}{
		{
			name:     "flat price over prompt and completion",
			provider: flat,
			usage:    models.Usage{PromptTokens: testutil.Ptr(500_000), CompletionTokens: testutil.Ptr(500_000)},
			want:     testutil.Ptr(2.0),
		},
		{
			name:     "flat price over total only",
			provider: flat,
			usage:    models.Usage{TotalTokens: testutil.Ptr(250_000)},
			want:     testutil.Ptr(0.5),
		},
		{
			name:     "split prices",
			provider: split,
			usage:    models.Usage{PromptTokens: testutil.Ptr(1_000_000), CompletionTokens: testutil.Ptr(100_000)},
			want:     testutil.Ptr(13.0),
		},
		{
			name:     "split prices fall back to their mean on total-only usage",
			provider: split,
			usage:    models.Usage{TotalTokens: testutil.Ptr(1_000_000)},
			want:     testutil.Ptr(20.0),
		},
		{
			name:     "split prices win over the unified price",
			provider: both,
			usage:    models.Usage{PromptTokens: testutil.Ptr(1_000_000), CompletionTokens: testutil.Ptr(0)},
			want:     testutil.Ptr(10.0),
		},
		{
			name:     "no price configured",
			provider: unpriced,
			usage:    models.Usage{TotalTokens: testutil.Ptr(1_000_000)},
			want:     nil,
		},
		{
			name:     "no usage reported",
			provider: flat,
			usage:    models.Usage{},
			want:     nil,
		},
		{
			name:     "split prices with no usage",
			provider: split,
			usage:    models.Usage{},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCost(tt.provider, tt.usage)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestComputeCostPartialSplitIgnored(t *testing.T) {
	// Only one of the two split prices set: the pair is incomplete, so the
	// unified price applies.
	p := &models.Provider{
		PricePerMillion: testutil.Ptr(4.0),
		InputPricePerM:  testutil.Ptr(10.0),
	}
	got := ComputeCost(p, models.Usage{TotalTokens: testutil.Ptr(500_000)})
	require.NotNil(t, got)
	assert.InDelta(t, 2.0, *got, 1e-9)
}
