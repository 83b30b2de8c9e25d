//go:build !integration && !e2e
// +build !integration,!e2e

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func TestKeywordRepository_FindAll(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	keywords, err := repo.FindAll(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, keywords, 2)
	assert.Equal(t, "quota exceeded", keywords[0].Keyword)
	require.NotNil(t, keywords[0].Description)
	assert.Equal(t, "Billing failures", *keywords[0].Description)
	assert.Nil(t, keywords[0].LastTriggered)
}

func TestKeywordRepository_FindAllActive(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	active, err := repo.FindAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "quota exceeded", active[0].Keyword)
	assert.True(t, active[0].IsActive)
}

func TestKeywordRepository_Insert(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	kw := &models.ErrorKeyword{Keyword: "model overloaded", IsActive: true}
	id, err := repo.Insert(ctx, kw)
	require.NoError(t, err)
	assert.Equal(t, id, kw.ID)

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "model overloaded", found.Keyword)
	assert.Nil(t, found.Description)

	// Keywords are unique.
	_, err = repo.Insert(ctx, &models.ErrorKeyword{Keyword: "quota exceeded", IsActive: true})
	assert.Error(t, err)
}

func TestKeywordRepository_Update(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, 1, map[string]any{
		"keyword":   "quota exhausted",
		"is_active": false,
	}))

	kw, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.Equal(t, "quota exhausted", kw.Keyword)
	assert.False(t, kw.IsActive)

	// Empty update is a no-op.
	require.NoError(t, repo.Update(ctx, 1, map[string]any{}))
}

func TestKeywordRepository_Delete(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, 2))

	gone, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestKeywordRepository_TouchTriggered(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTestData(t, db)
	repo := NewKeywordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.TouchTriggered(ctx, 1))

	kw, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.NotNil(t, kw.LastTriggered)
}
