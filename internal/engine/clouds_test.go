package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
)

func newTestAssembler() *CloudLayerAssembler {
	cfg := config.Default()
	return NewCloudLayerAssembler(cfg.Clouds, cfg.Metar)
}

func metarCloudSnapshot(elevM float64, clouds ...wxdata.MetarCloud) *wxdata.Snapshot {
	return &wxdata.Snapshot{
		Metar: &wxdata.MetarReport{
			ICAO:       "CYYZ",
			ElevationM: elevM,
			DistanceM:  3000,
			Clouds:     clouds,
		},
	}
}

func TestAssembleObservedLayersBottomUp(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0,
		wxdata.MetarCloud{BaseM: 1000, Cover: "FEW"},
		wxdata.MetarCloud{BaseM: 2000, Cover: "BKN"},
	)

	slots := a.Assemble(snap, 0)

	assert.Equal(t, 1000.0, slots[0].BaseM)
	assert.InDelta(t, 1609.6, slots[0].TopM, 0.01)
	assert.Equal(t, 1, slots[0].Cover)
	assert.Equal(t, 2000.0, slots[1].BaseM)
	assert.InDelta(t, 3219.2, slots[1].TopM, 0.01)
	assert.Equal(t, 3, slots[1].Cover)
	assert.Equal(t, 0, slots[2].Cover)
}

func TestAssembleBorrowsForecastDepth(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0,
		wxdata.MetarCloud{BaseM: 300, Cover: "FEW"},
		wxdata.MetarCloud{BaseM: 2000, Cover: "BKN"},
	)
	snap.GFS = &wxdata.GridData{Clouds: []wxdata.ForecastCloud{
		{BaseM: 1900, TopM: 4500, CoverPct: 70},
	}}

	slots := a.Assemble(snap, 0)

	// The observed deck overlaps the forecast band, so it takes the band's
	// depth instead of the 4000 ft code default.
	assert.Equal(t, 2000.0, slots[1].BaseM)
	assert.InDelta(t, 4600.0, slots[1].TopM, 0.01)

	// The low layer is outside the band and keeps its default depth.
	assert.InDelta(t, 909.6, slots[0].TopM, 0.01)
}

func TestAssembleCapsTopAtLayerAbove(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0,
		wxdata.MetarCloud{BaseM: 1000, Cover: "SCT"},
		wxdata.MetarCloud{BaseM: 1500, Cover: "OVC"},
	)

	slots := a.Assemble(snap, 0)

	// 1000 + 1219.2 would punch into the overcast above; top stops at its base.
	assert.Equal(t, 1500.0, slots[0].TopM)
	assert.Equal(t, 4, slots[1].Cover)
}

func TestAssembleForecastOnly(t *testing.T) {
	a := newTestAssembler()
	snap := &wxdata.Snapshot{GFS: &wxdata.GridData{Clouds: []wxdata.ForecastCloud{
		{BaseM: 800, TopM: 1200, CoverPct: 30},    // cover 1, forced min depth
		{BaseM: 3000, TopM: 6000, CoverPct: 95},   // cover 4, real depth
		{BaseM: 9000, TopM: 9100, CoverPct: 0},    // clear, skipped
		{BaseM: 11000, TopM: 12000, CoverPct: 60}, // cover 2
	}}}

	slots := a.Assemble(snap, 0)

	// Each top is raised to the base of the layer above, so the stack is
	// gapless bottom to top.
	assert.Equal(t, CloudSlot{BaseM: 800, TopM: 3000, Cover: 1}, slots[0])
	assert.Equal(t, CloudSlot{BaseM: 3000, TopM: 11000, Cover: 4}, slots[1])
	assert.Equal(t, 11000.0, slots[2].BaseM)
	assert.InDelta(t, 11000+minCloudDepthM, slots[2].TopM, 0.01)
	assert.Equal(t, 2, slots[2].Cover)
}

func TestAssembleForecastDepthClampedToMaxHeight(t *testing.T) {
	a := newTestAssembler()
	snap := &wxdata.Snapshot{GFS: &wxdata.GridData{Clouds: []wxdata.ForecastCloud{
		{BaseM: 1000, TopM: 25000, CoverPct: 100},
	}}}

	slots := a.Assemble(snap, 0)

	maxDepth := wxdata.FtToM(40000)
	assert.InDelta(t, 1000+maxDepth, slots[0].TopM, 0.01)
}

func TestAssembleClearFillerBeneathHighDeck(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0,
		wxdata.MetarCloud{BaseM: 3000, Cover: "OVC"},
	)

	slots := a.Assemble(snap, 0)

	assert.Equal(t, CloudSlot{BaseM: 0, TopM: minCloudDepthM, Cover: 0}, slots[0])
	assert.Equal(t, 3000.0, slots[1].BaseM)
	assert.Equal(t, 4, slots[1].Cover)
}

func TestAssembleForecastFillsAboveObserved(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(100,
		wxdata.MetarCloud{BaseM: 700, Cover: "SCT"},
	)
	snap.GFS = &wxdata.GridData{Clouds: []wxdata.ForecastCloud{
		{BaseM: 8000, TopM: 10000, CoverPct: 80},
	}}

	slots := a.Assemble(snap, 0)

	assert.Equal(t, 700.0, slots[0].BaseM)
	assert.Equal(t, 8000.0, slots[1].BaseM)
	assert.Equal(t, 3, slots[1].Cover)
}

func TestAssembleIgnoresDistantStation(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0, wxdata.MetarCloud{BaseM: 1000, Cover: "OVC"})
	snap.Metar.DistanceM = 500_000
	snap.GFS = &wxdata.GridData{Clouds: []wxdata.ForecastCloud{
		{BaseM: 4000, TopM: 6000, CoverPct: 90},
	}}

	slots := a.Assemble(snap, 0)

	// The observed layer is dropped, and the lone high forecast deck gets a
	// clear filler beneath it.
	assert.Equal(t, CloudSlot{BaseM: 0, TopM: minCloudDepthM, Cover: 0}, slots[0])
	assert.Equal(t, 4000.0, slots[1].BaseM)
	assert.Equal(t, 4, slots[1].Cover)
	assert.Equal(t, 0, slots[2].Cover)
}

func TestAssembleSuppressesSmallRedraws(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0, wxdata.MetarCloud{BaseM: 1000, Cover: "BKN"})

	first := a.Assemble(snap, 0)
	require.Equal(t, 1000.0, first[0].BaseM)

	// A base shift under the slot threshold keeps the published geometry.
	snap.Metar.Clouds[0].BaseM = 1100
	slots := a.Assemble(snap, 0)
	assert.Equal(t, 1000.0, slots[0].BaseM)

	// A larger shift writes through.
	snap.Metar.Clouds[0].BaseM = 1400
	slots = a.Assemble(snap, 0)
	assert.Equal(t, 1400.0, slots[0].BaseM)

	// A one-step cover wobble between adjacent codes holds too.
	snap.Metar.Clouds[0].Cover = "OVC"
	slots = a.Assemble(snap, 0)
	assert.Equal(t, 3, slots[0].Cover)

	// A bigger swing writes through.
	snap.Metar.Clouds[0].Cover = "FEW"
	slots = a.Assemble(snap, 0)
	assert.Equal(t, 1, slots[0].Cover)
}

func TestAssembleThresholdWidensWithAltitude(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0, wxdata.MetarCloud{BaseM: 1000, Cover: "BKN"})

	a.Assemble(snap, 10000)

	// At 10 km the slot threshold is over a kilometer; a 400 m shift that
	// would redraw at low altitude is suppressed.
	snap.Metar.Clouds[0].BaseM = 1400
	slots := a.Assemble(snap, 10000)
	assert.Equal(t, 1000.0, slots[0].BaseM)
}

func TestAssembleClearsVanishedLayers(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0,
		wxdata.MetarCloud{BaseM: 1000, Cover: "BKN"},
		wxdata.MetarCloud{BaseM: 3000, Cover: "OVC"},
	)

	a.Assemble(snap, 0)

	snap.Metar.Clouds = snap.Metar.Clouds[:1]
	slots := a.Assemble(snap, 0)

	assert.Equal(t, 3, slots[0].Cover)
	assert.Equal(t, 0, slots[1].Cover)
}

func TestAssembleResetWritesThrough(t *testing.T) {
	a := newTestAssembler()
	snap := metarCloudSnapshot(0, wxdata.MetarCloud{BaseM: 1000, Cover: "BKN"})
	a.Assemble(snap, 0)

	snap.Metar.Clouds[0].BaseM = 1100
	a.Reset()
	slots := a.Assemble(snap, 0)
	assert.Equal(t, 1100.0, slots[0].BaseM)
}
