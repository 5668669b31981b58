package search

import (
	"math"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters(map[string]any{
		"ra":                "02:48:00",
		"dec":               "-13:30:00",
		"radius":            17.0,
		"min_numdetections": "3",
		"statbands":         "g, r",
		"max_lastmag":       nil,
	})
	require.NoError(t, err)
	assert.InDelta(t, 42.0, *f.RA, 1e-9)
	assert.InDelta(t, -13.5, *f.Dec, 1e-9)
	assert.Equal(t, 17.0, *f.Radius)
	assert.Equal(t, 3, *f.MinNumDetections)
	assert.Equal(t, []string{"g", "r"}, f.StatBands)
	assert.Nil(t, f.MaxLastMag)

	f, err = ParseFilters(map[string]any{"statbands": []any{"i", "z"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "z"}, f.StatBands)
}

func TestParseFilters_Errors(t *testing.T) {
	_, err := ParseFilters(map[string]any{"ra": 1.0, "mindt": 3.0, "colour": "red"})
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.ErrUnknownFilter))
	assert.Equal(t, xerr.UnknownFilterCode, xerr.CodeOf(err))
	assert.Contains(t, err.Error(), "colour, mindt")

	_, err = ParseFilters(map[string]any{"min_numdetections": 2.5})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))

	// 超出 int 范围的整数值不能静默溢出
	for _, v := range []any{1e30, -1e30, "9.3e18", math.Inf(1)} {
		_, err = ParseFilters(map[string]any{"min_numdetections": v})
		assert.True(t, xerr.Is(err, xerr.ErrInvalidParams), "%v", v)
	}
	f, err := ParseFilters(map[string]any{"max_numdetections": 1e6})
	require.NoError(t, err)
	assert.Equal(t, 1000000, *f.MaxNumDetections)

	_, err = ParseFilters(map[string]any{"window_t0": "yesterday"})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))

	_, err = ParseFilters(map[string]any{"statbands": 5.0})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		ok   bool
	}{
		{"empty", map[string]any{}, true},
		{"full cone", map[string]any{"ra": 42.0, "dec": 13.0, "radius": 17.0}, true},
		{"partial cone", map[string]any{"ra": 42.0, "dec": 13.0}, false},
		{"half window", map[string]any{"window_t0": 60010.0}, false},
		{"window counts without window", map[string]any{"min_window_numdetections": 2.0}, false},
		{"reversed window", map[string]any{"window_t0": 60020.0, "window_t1": 60010.0}, false},
		{"last before window", map[string]any{"window_t0": 60010.0, "window_t1": 60020.0, "maxt_lastdetection": 60005.0}, false},
		{"first after window", map[string]any{"window_t0": 60010.0, "window_t1": 60020.0, "mint_firstdetection": 60025.0}, false},
		{"last before first", map[string]any{"mint_firstdetection": 60030.0, "maxt_lastdetection": 60020.0}, false},
		{"reversed mags", map[string]any{"minmag_firstdetection": 22.0, "maxmag_firstdetection": 20.0}, false},
		{"reversed counts", map[string]any{"min_numdetections": 5.0, "max_numdetections": 2.0}, false},
		{"consistent times", map[string]any{"mint_firstdetection": 60010.0, "maxt_lastdetection": 60030.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilters(tt.raw)
			require.NoError(t, err)
			err = f.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, xerr.InconsistentFilterCode, xerr.CodeOf(err))
		})
	}

	f, err := ParseFilters(map[string]any{"ra": 1.0, "dec": 1.0, "radius": -1.0})
	require.NoError(t, err)
	assert.True(t, xerr.Is(f.Validate(), xerr.ErrInvalidParams))
}

func TestWithMJDNow(t *testing.T) {
	now := 60050.0
	explicit := 60040.0
	f := Filters{MaxTLastDetection: &explicit}.withMJDNow(&now)
	assert.Equal(t, 60050.0, *f.MaxTFirstDetection)
	assert.Equal(t, 60040.0, *f.MaxTLastDetection)
	assert.Equal(t, 60050.0, *f.MaxTMaxDetection)

	f = Filters{}.withMJDNow(nil)
	assert.Nil(t, f.MaxTFirstDetection)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest("pv1", map[string]any{
		"object_processing_version": "pv2",
		"return_format":             "pandas",
		"just_objids":               true,
		"mjd_now":                   60050.0,
		"min_numdetections":         2.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "pv1", req.Procver)
	assert.Equal(t, "pv2", req.ObjectProcver)
	assert.Equal(t, ltcv.FormatTable, req.Format)
	assert.True(t, req.JustObjIDs)
	assert.Equal(t, 60050.0, *req.MJDNow)
	assert.Equal(t, 2, *req.Filters.MinNumDetections)

	_, err = ParseRequest("pv1", map[string]any{"return_format": "parquet"})
	assert.Equal(t, xerr.UnsupportedFormatCode, xerr.CodeOf(err))

	_, err = ParseRequest("pv1", map[string]any{"just_objids": "yes"})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))
}
