package astro

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagFluxRoundTrip(t *testing.T) {
	assert.InDelta(t, 1.0, MagToFlux(31.4, DefaultZeropoint), 1e-12)
	assert.InDelta(t, 10000.0, MagToFlux(21.4, DefaultZeropoint), 1e-6)
	assert.InDelta(t, 21.4, FluxToMag(10000, DefaultZeropoint), 1e-12)
	assert.True(t, math.IsNaN(FluxToMag(-3, DefaultZeropoint)))

	// 更亮 (星等更小) 对应更大的流量阈值
	assert.Greater(t, MagToFlux(20, DefaultZeropoint), MagToFlux(21, DefaultZeropoint))
}

func TestMJD(t *testing.T) {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 40587.0, MJDFromTime(epoch), 1e-9)

	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.InDelta(t, 51544.5, MJDFromTime(j2000), 1e-9)
	assert.WithinDuration(t, j2000, TimeFromMJD(51544.5), time.Millisecond)
}

func TestAngularSeparation(t *testing.T) {
	assert.InDelta(t, 0, AngularSeparation(42, 13, 42, 13), 1e-12)
	assert.InDelta(t, 1, AngularSeparation(42, 13, 42, 14), 1e-9)
	// 赤纬 60 度处赤经差 2 度约为 1 度弧长
	assert.InDelta(t, 0.99996, AngularSeparation(10, 60, 12, 60), 1e-5)
	assert.InDelta(t, 180, AngularSeparation(0, 0, 180, 0), 1e-9)
}

func TestParseCoordinates(t *testing.T) {
	ra, err := ParseRA("02:48:00")
	require.NoError(t, err)
	assert.InDelta(t, 42.0, ra, 1e-9)

	ra, err = ParseRA("42.5")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, ra, 1e-12)

	dec, err := ParseDec("-13:30:00")
	require.NoError(t, err)
	assert.InDelta(t, -13.5, dec, 1e-9)

	dec, err = ParseDec("+00:30:36")
	require.NoError(t, err)
	assert.InDelta(t, 0.51, dec, 1e-9)

	_, err = ParseDec("12:75:00")
	assert.Error(t, err)
	_, err = ParseRA("abc")
	assert.Error(t, err)
}
