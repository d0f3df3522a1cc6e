package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
)

func newTestResolver() *WindLayerResolver {
	cfg := config.Default()
	trans := NewTransitionEngine(rand.New(rand.NewSource(7)))
	return NewWindLayerResolver(cfg.Wind, cfg.Metar, trans)
}

func gfsSnapshot(winds ...wxdata.WindLayer) *wxdata.Snapshot {
	return &wxdata.Snapshot{GFS: &wxdata.GridData{Winds: winds}}
}

func TestResolveSingleLayerPassesThrough(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(wxdata.WindLayer{AltM: 0, HeadingDeg: 270, SpeedKt: 10})

	res, ok := r.Resolve(snap, 0, 0.1)
	require.True(t, ok)
	assert.Equal(t, 270.0, res.Layer.HeadingDeg)
	assert.Equal(t, 10.0, res.Layer.SpeedKt)
}

func TestResolveNoDataReportsUnavailable(t *testing.T) {
	r := newTestResolver()

	_, ok := r.Resolve(nil, 1000, 0.1)
	assert.False(t, ok)

	_, ok = r.Resolve(&wxdata.Snapshot{}, 1000, 0.1)
	assert.False(t, ok)
}

func TestResolveBlendsBracketWithinBounds(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 0, HeadingDeg: 0, SpeedKt: 5},
		wxdata.WindLayer{AltM: 1000, HeadingDeg: 90, SpeedKt: 15},
	)

	res, ok := r.Resolve(snap, 500, 0.1)
	require.True(t, ok)

	assert.Greater(t, res.Layer.HeadingDeg, 0.0)
	assert.Less(t, res.Layer.HeadingDeg, 90.0)
	assert.Greater(t, res.Layer.SpeedKt, 5.0)
	assert.Less(t, res.Layer.SpeedKt, 15.0)

	// The faster upper layer pulls the heading past the midpoint.
	assert.Greater(t, res.Layer.HeadingDeg, 45.0)
}

func TestResolveDegenerateBracketReturnsLowerLayer(t *testing.T) {
	lower := wxdata.WindLayer{AltM: 800, HeadingDeg: 120, SpeedKt: 8}
	upper := wxdata.WindLayer{AltM: 800, HeadingDeg: 300, SpeedKt: 20}

	out := interpolateWindLayers(lower, upper, 800)
	assert.Equal(t, lower, out)
}

func TestResolveAboveTopClampsToHighestLayer(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 0, HeadingDeg: 10, SpeedKt: 5},
		wxdata.WindLayer{AltM: 2000, HeadingDeg: 200, SpeedKt: 40},
	)

	res, ok := r.Resolve(snap, 9000, 0.1)
	require.True(t, ok)
	assert.Equal(t, 200.0, res.Layer.HeadingDeg)
	assert.Equal(t, 40.0, res.Layer.SpeedKt)
}

func TestResolveInjectsSurfaceLayerNearStation(t *testing.T) {
	r := newTestResolver()
	temp := 15.0
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 3000, HeadingDeg: 90, SpeedKt: 30},
	)
	snap.Metar = &wxdata.MetarReport{
		ICAO:       "CYYZ",
		ElevationM: 173,
		DistanceM:  5000,
		Wind:       &wxdata.MetarWind{DirDeg: 240, SpeedKt: 12, GustKt: 18},
		TempC:      &temp,
	}

	// Near the ground the surface layer is the whole bracket.
	res, ok := r.Resolve(snap, 180, 0.1)
	require.True(t, ok)
	assert.Equal(t, 240.0, res.Layer.HeadingDeg)
	assert.Equal(t, 12.0, res.Layer.SpeedKt)
	require.NotNil(t, res.Layer.GustKt)
	assert.Equal(t, 18.0, *res.Layer.GustKt)
	require.NotNil(t, res.SeaLevelTempC)
	assert.InDelta(t, 15.0, *res.SeaLevelTempC, 6.0)
}

func TestResolveSkipsDistantStation(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 0, HeadingDeg: 90, SpeedKt: 30},
	)
	snap.Metar = &wxdata.MetarReport{
		ICAO:      "KLAX",
		DistanceM: 250_000,
		Wind:      &wxdata.MetarWind{DirDeg: 240, SpeedKt: 12},
	}

	res, ok := r.Resolve(snap, 0, 0.1)
	require.True(t, ok)
	assert.Equal(t, 90.0, res.Layer.HeadingDeg)
	assert.False(t, res.Layer.Surface)
}

func TestResolveDropsCrowdedLowestForecastLayer(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 1200, HeadingDeg: 10, SpeedKt: 5},
		wxdata.WindLayer{AltM: 4000, HeadingDeg: 180, SpeedKt: 25},
	)
	snap.Metar = &wxdata.MetarReport{
		ICAO:       "KDEN",
		ElevationM: 1600,
		DistanceM:  2000,
		Wind:       &wxdata.MetarWind{DirDeg: 350, SpeedKt: 9},
	}

	// Station layer sits above the 1200 m forecast layer, which gets dropped;
	// below it the station wind applies unblended.
	res, ok := r.Resolve(snap, 100, 0.1)
	require.True(t, ok)
	assert.Equal(t, 350.0, res.Layer.HeadingDeg)
	assert.True(t, res.Layer.Surface)
}

func TestResolveVariableWindStaysWithinSpan(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot()
	snap.GFS = nil
	snap.Metar = &wxdata.MetarReport{
		ICAO:         "EGLL",
		ElevationM:   25,
		DistanceM:    1000,
		Wind:         &wxdata.MetarWind{DirDeg: 310, SpeedKt: 8},
		VariableWind: &wxdata.WindRange{FromDeg: 280, ToDeg: 350},
	}

	for i := 0; i < 50; i++ {
		res, ok := r.Resolve(snap, 50, 0.5)
		require.True(t, ok)
		assert.Equal(t, 280.0, res.Layer.HeadingDeg)
		require.NotNil(t, res.Layer.VariationDeg)
		assert.GreaterOrEqual(t, *res.Layer.VariationDeg, 0.0)
		assert.LessOrEqual(t, *res.Layer.VariationDeg, 70.0)
	}
}

func TestInterpolateTemperatureNeedsBothSides(t *testing.T) {
	lower := wxdata.WindLayer{AltM: 0, SpeedKt: 5, TempK: wxdata.Float(288)}
	upper := wxdata.WindLayer{AltM: 1000, SpeedKt: 5}

	out := interpolateWindLayers(lower, upper, 500)
	assert.Nil(t, out.TempK)
	assert.Nil(t, out.DewK)

	upper.TempK = wxdata.Float(282)
	out = interpolateWindLayers(lower, upper, 500)
	require.NotNil(t, out.TempK)
	assert.InDelta(t, 285, *out.TempK, 0.01)
}

func TestResolveBracketChangeClearsStaleTransitions(t *testing.T) {
	r := newTestResolver()
	snap := gfsSnapshot(
		wxdata.WindLayer{AltM: 0, HeadingDeg: 0, SpeedKt: 5},
		wxdata.WindLayer{AltM: 1000, HeadingDeg: 90, SpeedKt: 15},
		wxdata.WindLayer{AltM: 2000, HeadingDeg: 180, SpeedKt: 25},
	)

	// Seed transitions in the lower bracket, then climb into the upper one.
	_, ok := r.Resolve(snap, 500, 0.1)
	require.True(t, ok)
	require.Equal(t, 1, r.lastTopIdx)

	res, ok := r.Resolve(snap, 1500, 0.1)
	require.True(t, ok)
	assert.Equal(t, 2, r.lastTopIdx)
	assert.Greater(t, res.Layer.SpeedKt, 15.0)
	assert.Less(t, res.Layer.SpeedKt, 25.0)
}

func TestExpoCosineMuFavorsFasterLayer(t *testing.T) {
	// Equal speeds: plain cosine, midpoint maps to one half.
	assert.InDelta(t, 0.5, expoCosineMu(0.5, 1), 1e-9)

	// Faster upper layer (expo < 1) pulls the weight upward.
	assert.Greater(t, expoCosineMu(0.5, 0.5), 0.5)

	// Faster lower layer (expo > 1) holds the weight down.
	assert.Less(t, expoCosineMu(0.5, 1.5), 0.5)

	assert.Equal(t, 0.0, expoCosineMu(0, 0.5))
	assert.InDelta(t, 1.0, expoCosineMu(1, 2), 1e-9)
}
