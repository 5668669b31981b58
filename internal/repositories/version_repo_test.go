package repositories_test

import (
	"context"
	"sync"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/repositories/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRepository_GetOrCreateProcver(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewVersionRepository(db)
	ctx := context.Background()

	desc := testutil.Unique("pv")
	pv, created, err := repo.GetOrCreateProcver(ctx, desc, nil)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.GetOrCreateProcver(ctx, desc, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, pv.ID, again.ID)

	bases, err := repo.BaseVersionsOf(ctx, pv.ID)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, desc, bases[0].Description)
	assert.Equal(t, 0, bases[0].Priority)
}

func TestVersionRepository_ConcurrentGetOrCreateBase(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewVersionRepository(db)
	ctx := context.Background()
	desc := testutil.Unique("bpv")

	const loaders = 8
	ids := make([]string, loaders)
	errs := make([]error, loaders)
	var wg sync.WaitGroup
	for i := 0; i < loaders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, _, err := repo.GetOrCreateBase(ctx, desc, nil)
			errs[i] = err
			if err == nil {
				ids[i] = b.ID.String()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < loaders; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var n int64
	require.NoError(t, db.Model(&models.BaseProcessingVersion{}).Where("description = ?", desc).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestVersionRepository_PriorityOrderAndAliases(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewVersionRepository(db)
	ctx := context.Background()

	pv, _, err := repo.GetOrCreateProcver(ctx, testutil.Unique("pv"), nil)
	require.NoError(t, err)
	extra, _, err := repo.GetOrCreateBase(ctx, testutil.Unique("bpv"), nil)
	require.NoError(t, err)

	require.NoError(t, repo.AddBase(ctx, pv.ID, extra.ID, 10))
	err = repo.AddBase(ctx, pv.ID, extra.ID, 20)
	assert.ErrorIs(t, err, xerr.ErrDuplicatePriority)

	bases, err := repo.BaseVersionsOf(ctx, pv.ID)
	require.NoError(t, err)
	require.Len(t, bases, 2)
	assert.Equal(t, extra.ID, bases[0].ID)
	assert.Equal(t, 10, bases[0].Priority)

	alias := testutil.Unique("alias")
	require.NoError(t, repo.CreateAlias(ctx, alias, pv.ID))
	require.NoError(t, repo.CreateAlias(ctx, alias, pv.ID))
	assert.ErrorIs(t, repo.CreateAlias(ctx, pv.Description, pv.ID), xerr.ErrAliasConflict)

	found, err := repo.FindAlias(ctx, alias)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, pv.ID, found.ProcverID)

	missing, err := repo.FindProcverByDescription(ctx, testutil.Unique("nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
