package memrepo

import (
	"context"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phot(obj, visit int64, base uuid.UUID, mjd float64, band string, flux float64) models.Photometry {
	return models.Photometry{
		DiaObjectID: obj, Visit: visit, BaseProcverID: base,
		MidpointMJDTAI: mjd, Band: band, PSFFlux: flux, PSFFluxErr: 1,
	}
}

func TestRankedAggregates(t *testing.T) {
	store := New()
	ctx := context.Background()
	lo, hi, other := uuid.New(), uuid.New(), uuid.New()
	ranking := []models.RankedBaseVersion{{ID: hi, Priority: 10}, {ID: lo, Priority: 2}}

	store.PutSources(
		models.DiaSource{Photometry: phot(1, 1, lo, 60001, "r", 500)},
		models.DiaSource{Photometry: phot(1, 1, hi, 60001, "r", 200)},
		models.DiaSource{Photometry: phot(1, 2, lo, 60002, "g", 300)},
		models.DiaSource{Photometry: phot(1, 3, other, 60009, "g", 900)},
		models.DiaSource{Photometry: phot(2, 1, lo, 60005, "r", 10)},
	)
	store.PutForcedSources(
		models.DiaForcedSource{Photometry: phot(1, 4, lo, 60004, "r", 50)},
		models.DiaForcedSource{Photometry: phot(1, 3, lo, 60003, "r", 40)},
	)

	q := repositories.RankedQuery{Ranking: ranking}
	counts, err := store.CountDetections(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, counts)

	sums, err := store.SummarizeDetections(ctx, q)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, int64(1), sums[0].DiaObjectID)
	assert.Equal(t, 2, sums[0].NumBands)
	assert.Equal(t, 200.0, sums[0].First.Flux)
	assert.Equal(t, 60002.0, sums[0].Last.MJD)
	assert.Equal(t, 300.0, sums[0].Max.Flux)

	last, err := store.LastForced(ctx, q)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(4), last[0].Visit)

	q.Bands = []string{"g"}
	q.ObjectIDs = []int64{1}
	counts, err = store.CountDetections(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 1}, counts)

	q.ObjectIDs = []int64{}
	counts, err = store.CountDetections(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
