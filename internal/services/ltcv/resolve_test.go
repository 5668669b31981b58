package ltcv

import (
	"encoding/json"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phot(obj, visit int64, base uuid.UUID, mjd float64, band string, flux float64) models.Photometry {
	return models.Photometry{
		DiaObjectID: obj, Visit: visit, BaseProcverID: base,
		MidpointMJDTAI: mjd, Band: band, PSFFlux: flux, PSFFluxErr: flux / 10,
	}
}

func TestResolveByPriority_HigherPriorityWins(t *testing.T) {
	hi, lo, other := uuid.New(), uuid.New(), uuid.New()
	ranking := versioning.Ranking{
		{ID: hi, Description: "hi", Priority: 5},
		{ID: lo, Description: "lo", Priority: 1},
	}
	rows := []models.Photometry{
		phot(1, 5, lo, 60005, "r", 20),
		phot(1, 5, hi, 60005, "r", 10),
		phot(1, 6, lo, 60006, "g", 30),
		phot(1, 7, other, 60007, "g", 99),
		phot(2, 5, lo, 60005, "r", 40),
	}

	got := ResolveByPriority(rows, ranking, ByDiaObjectID)
	require.Len(t, got, 3)
	assert.Equal(t, hi, got[0].BaseProcverID)
	assert.Equal(t, 10.0, got[0].PSFFlux)
	assert.Equal(t, int64(6), got[1].Visit)
	assert.Equal(t, int64(2), got[2].DiaObjectID)
	assert.Equal(t, 40.0, got[2].PSFFlux)
}

func TestResolveByPriority_OrderIndependent(t *testing.T) {
	hi, lo := uuid.New(), uuid.New()
	ranking := versioning.Ranking{{ID: hi, Priority: 1}, {ID: lo, Priority: 0}}
	a := []models.Photometry{phot(1, 5, hi, 60005, "r", 10), phot(1, 5, lo, 60005, "r", 20)}
	b := []models.Photometry{a[1], a[0]}
	assert.Equal(t, ResolveByPriority(a, ranking, ByDiaObjectID), ResolveByPriority(b, ranking, ByDiaObjectID))
}

func TestResolveByPriority_TieBreaksOnDiaObjectID(t *testing.T) {
	base := uuid.New()
	ranking := versioning.Ranking{{ID: base, Priority: 0}}
	byVisit := func(models.Photometry) int64 { return 0 }
	a := []models.Photometry{phot(10, 7, base, 60007, "r", 100), phot(11, 7, base, 60007, "r", 200)}
	b := []models.Photometry{a[1], a[0]}

	got := ResolveByPriority(a, ranking, byVisit)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].DiaObjectID)
	assert.Equal(t, got, ResolveByPriority(b, ranking, byVisit))
}

func TestMerge_QuantizedMatch(t *testing.T) {
	m := NewMatcher(config.QueryConfig{MJDMatchStepsPerDay: 10000, MatchPolicy: config.MatchPolicyMJD})
	base := uuid.New()
	dets := []models.Photometry{phot(1, 10, base, 60000.00005, "r", 100)}
	forced := []models.Photometry{phot(1, 11, base, 60000.00003, "r", 90)}

	got := m.Merge(dets, forced, WhichPatch)
	require.Len(t, got, 1)
	assert.Equal(t, 90.0, got[0].Flux)
	assert.True(t, got[0].IsDet)
	assert.False(t, got[0].IsPatch)

	// 不同波段不会相互匹配
	other := []models.Photometry{phot(1, 11, base, 60000.00003, "g", 90)}
	assert.Len(t, m.Merge(dets, other, WhichPatch), 2)
}

func TestMerge_VisitPolicy(t *testing.T) {
	m := NewMatcher(config.QueryConfig{MatchPolicy: config.MatchPolicyVisit})
	base := uuid.New()
	dets := []models.Photometry{phot(1, 10, base, 60000.0, "r", 100)}
	forced := []models.Photometry{phot(1, 10, base, 60000.5, "r", 90)}

	got := m.Merge(dets, forced, WhichPatch)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDet)
	assert.False(t, got[0].IsPatch)
}

func TestMerge_PatchCompletenessAndOrdering(t *testing.T) {
	m := NewMatcher(config.QueryConfig{})
	base := uuid.New()
	dets := []models.Photometry{
		phot(1, 1, base, 60001, "r", 11),
		phot(1, 2, base, 60002, "g", 12),
		phot(1, 3, base, 60003, "r", 13),
	}
	forced := []models.Photometry{
		phot(1, 4, base, 60004, "i", 4),
		phot(1, 3, base, 60003, "r", 3),
		phot(1, 1, base, 60001, "r", 1),
	}

	for _, which := range []Which{WhichDetections, WhichForced, WhichPatch} {
		got := m.Merge(dets, forced, which)
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			assert.True(t, prev.MJD < cur.MJD || (prev.MJD == cur.MJD && prev.Band <= cur.Band), "%s not ordered", which)
		}
	}

	patched := m.Merge(dets, forced, WhichPatch)
	require.Len(t, patched, 4)
	byVisit := map[int64]Point{}
	for _, p := range patched {
		_, dup := byVisit[p.Visit]
		require.False(t, dup)
		byVisit[p.Visit] = p
	}
	assert.Equal(t, Point{Visit: 1, MJD: 60001, Band: "r", Flux: 1, FluxErr: 0.1, IsDet: true, baseProcverID: base}, byVisit[1])
	assert.True(t, byVisit[2].IsPatch)
	assert.True(t, byVisit[2].IsDet)
	assert.Equal(t, 12.0, byVisit[2].Flux)
	assert.False(t, byVisit[3].IsPatch)
	assert.Equal(t, 3.0, byVisit[3].Flux)
	assert.False(t, byVisit[4].IsDet)

	forcedOnly := m.Merge(dets, forced, WhichForced)
	require.Len(t, forcedOnly, 3)
	for _, p := range forcedOnly {
		assert.False(t, p.IsPatch)
	}

	detsOnly := m.Merge(dets, forced, WhichDetections)
	require.Len(t, detsOnly, 3)
	for _, p := range detsOnly {
		assert.True(t, p.IsDet)
	}
}

func TestLightcurve_JSONFormats(t *testing.T) {
	points := []Point{
		{Visit: 1, MJD: 60001, Band: "r", Flux: 1, FluxErr: 0.1, IsDet: true},
		{Visit: 2, MJD: 60002, Band: "g", Flux: 2, FluxErr: 0.2, IsPatch: true, IsDet: true},
	}

	raw, err := json.Marshal(Lightcurve{Points: points, Which: WhichPatch, Format: FormatJSON})
	require.NoError(t, err)
	var cols map[string][]any
	require.NoError(t, json.Unmarshal(raw, &cols))
	assert.Len(t, cols["mjd"], 2)
	assert.Equal(t, []any{false, true}, cols["ispatch"])
	assert.NotContains(t, cols, "base_procver")

	raw, err = json.Marshal(Lightcurve{Points: points, Which: WhichForced, Format: FormatJSON})
	require.NoError(t, err)
	cols = nil
	require.NoError(t, json.Unmarshal(raw, &cols))
	assert.NotContains(t, cols, "ispatch")

	raw, err = json.Marshal(Lightcurve{Points: points, Which: WhichDetections, Format: FormatTable})
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "g", rows[1]["band"])
	assert.NotContains(t, rows[0], "ispatch")
}

func TestParseWhichAndFormat(t *testing.T) {
	w, err := ParseWhich("")
	require.NoError(t, err)
	assert.Equal(t, WhichPatch, w)
	_, err = ParseWhich("everything")
	assert.Error(t, err)

	f, err := ParseFormat("pandas")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)
	_, err = ParseFormat("parquet")
	assert.Error(t, err)
}
