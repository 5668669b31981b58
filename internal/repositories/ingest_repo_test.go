package repositories_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/repositories/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestRepository_InsertIgnoreAndWatermark(t *testing.T) {
	db := testutil.DB(t)
	vrepo := repositories.NewVersionRepository(db)
	irepo := repositories.NewIngestRepository(db, 100)
	mrepo := repositories.NewMeasurementRepository(db, config.QueryConfig{})
	ctx := context.Background()

	bpv, _, err := vrepo.GetOrCreateBase(ctx, testutil.Unique("bpv"), nil)
	require.NoError(t, err)
	root := uuid.New()
	objID := rand.Int63()
	obj := models.DiaObject{DiaObjectID: objID, BaseProcverID: bpv.ID, RootID: root, RA: 10, Dec: -5}
	src := models.DiaSource{Photometry: models.Photometry{
		DiaObjectID: objID, Visit: 1, BaseProcverID: bpv.ID, MidpointMJDTAI: 60000.1, Band: "r", PSFFlux: 100, PSFFluxErr: 5,
	}}

	insert := func() (int64, int64) {
		var nobj, nsrc int64
		err := irepo.WithinTransaction(ctx, func(tx repositories.IngestTx) error {
			existing, err := tx.ExistingObjects(ctx, bpv.ID, []int64{objID})
			if err != nil {
				return err
			}
			if !existing[objID] {
				if err := tx.CreateRoots(ctx, []uuid.UUID{root}); err != nil {
					return err
				}
			}
			if nobj, err = tx.InsertObjects(ctx, []models.DiaObject{obj}); err != nil {
				return err
			}
			nsrc, err = tx.InsertSources(ctx, []models.DiaSource{src})
			return err
		})
		require.NoError(t, err)
		return nobj, nsrc
	}

	nobj, nsrc := insert()
	assert.Equal(t, int64(1), nobj)
	assert.Equal(t, int64(1), nsrc)
	nobj, nsrc = insert()
	assert.Equal(t, int64(0), nobj)
	assert.Equal(t, int64(0), nsrc)

	rows, err := mrepo.Photometry(ctx, repositories.KindSource, repositories.PhotometryQuery{
		ObjectIDs: []int64{objID}, BaseProcverIDs: []uuid.UUID{bpv.ID},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r", rows[0].Band)

	collection := testutil.Unique("alerts")
	_, ok, err := irepo.GetWatermark(ctx, collection, bpv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	mark := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, irepo.SetWatermark(ctx, collection, bpv.ID, mark))
	require.NoError(t, irepo.SetWatermark(ctx, collection, bpv.ID, mark.Add(time.Hour)))
	got, ok, err := irepo.GetWatermark(ctx, collection, bpv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(mark.Add(time.Hour)))
}

func TestMeasurementRepository_ConeSearch(t *testing.T) {
	db := testutil.DB(t)
	testutil.RequireQ3C(t)
	vrepo := repositories.NewVersionRepository(db)
	irepo := repositories.NewIngestRepository(db, 100)
	mrepo := repositories.NewMeasurementRepository(db, config.QueryConfig{})
	ctx := context.Background()

	bpv, _, err := vrepo.GetOrCreateBase(ctx, testutil.Unique("bpv"), nil)
	require.NoError(t, err)
	near := models.DiaObject{DiaObjectID: rand.Int63(), BaseProcverID: bpv.ID, RootID: uuid.New(), RA: 42.001, Dec: 13}
	far := models.DiaObject{DiaObjectID: rand.Int63(), BaseProcverID: bpv.ID, RootID: uuid.New(), RA: 42.1, Dec: 13}
	require.NoError(t, irepo.WithinTransaction(ctx, func(tx repositories.IngestTx) error {
		if err := tx.CreateRoots(ctx, []uuid.UUID{near.RootID, far.RootID}); err != nil {
			return err
		}
		_, err := tx.InsertObjects(ctx, []models.DiaObject{near, far})
		return err
	}))

	found, err := mrepo.ObjectsInCone(ctx, 42, 13, 17.0/3600, []uuid.UUID{bpv.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, near.DiaObjectID, found[0].DiaObjectID)
}

func TestIngestRepository_PruneRoots(t *testing.T) {
	db := testutil.DB(t)
	vrepo := repositories.NewVersionRepository(db)
	irepo := repositories.NewIngestRepository(db, 100)
	ctx := context.Background()

	bpv, _, err := vrepo.GetOrCreateBase(ctx, testutil.Unique("bpv"), nil)
	require.NoError(t, err)
	used, unused := uuid.New(), uuid.New()
	obj := models.DiaObject{DiaObjectID: rand.Int63(), BaseProcverID: bpv.ID, RootID: used, RA: 1, Dec: 1}

	var pruned, again int64
	require.NoError(t, irepo.WithinTransaction(ctx, func(tx repositories.IngestTx) error {
		if err := tx.CreateRoots(ctx, []uuid.UUID{used, unused}); err != nil {
			return err
		}
		if _, err := tx.InsertObjects(ctx, []models.DiaObject{obj}); err != nil {
			return err
		}
		if pruned, err = tx.PruneRoots(ctx, []uuid.UUID{used, unused}); err != nil {
			return err
		}
		again, err = tx.PruneRoots(ctx, []uuid.UUID{used, unused})
		return err
	}))
	assert.Equal(t, int64(1), pruned)
	assert.Zero(t, again)

	var left []uuid.UUID
	require.NoError(t, db.Model(&models.RootDiaObject{}).Where("id IN ?", []uuid.UUID{used, unused}).Pluck("id", &left).Error)
	assert.Equal(t, []uuid.UUID{used}, left)
}
