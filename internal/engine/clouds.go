package engine

import (
	"math"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
)

const (
	// minCloudDepthM is the simulator's minimum renderable cloud depth (2000 ft).
	minCloudDepthM = 609.6

	// forecastMatchSlackM is how far below a forecast band's base an observed
	// layer may sit and still borrow the band's depth.
	forecastMatchSlackM = 1500

	// stationCloudCeilingM is the height above the station (5600 ft) up to
	// which observed layers are authoritative; forecast layers only fill in
	// above it.
	stationCloudCeilingM = 1706.88
)

// minRedrawM is the per-slot base/top change, before the altitude term, below
// which a slot keeps its published geometry. Higher slots get wider bands
// since a redraw there is more visible from cruise.
var minRedrawM = [3]float64{152.4, 1524, 3048}

// CloudSlot is one of the three rendered cloud layers, bottom-up. Cover zero
// means the slot is clear.
type CloudSlot struct {
	BaseM float64
	TopM  float64
	Cover int
}

// CloudLayerAssembler folds observed and forecast cloud layers into the three
// simulator slots, suppressing small geometry changes so the renderer does
// not flush its cloud field every refresh.
type CloudLayerAssembler struct {
	clouds config.CloudConfig
	metar  config.MetarConfig

	published [3]CloudSlot
	seeded    bool
}

func NewCloudLayerAssembler(clouds config.CloudConfig, metar config.MetarConfig) *CloudLayerAssembler {
	return &CloudLayerAssembler{clouds: clouds, metar: metar}
}

// Reset drops the published slots so the next Assemble writes through
// unconditionally.
func (a *CloudLayerAssembler) Reset() {
	a.published = [3]CloudSlot{}
	a.seeded = false
}

// Assemble computes the three output slots for the snapshot at the current
// altitude. Slots move only when the change clears the per-slot redraw
// threshold, which widens with altitude.
func (a *CloudLayerAssembler) Assemble(snap *wxdata.Snapshot, altM float64) [3]CloudSlot {
	stack := a.buildStack(snap)

	for i := 0; i < 3; i++ {
		var next CloudSlot
		if i < len(stack) {
			next = stack[i]
		}

		if !a.seeded {
			a.published[i] = next
			continue
		}

		cur := &a.published[i]
		if i >= len(stack) {
			cur.Cover = 0
			continue
		}

		threshold := minRedrawM[i] + altM/10
		if math.Abs(next.BaseM-cur.BaseM) >= threshold {
			cur.BaseM = next.BaseM
		}
		if math.Abs(next.TopM-cur.TopM) >= threshold {
			cur.TopM = next.TopM
		}
		// Cover moves only on a two-step change; a one-step wobble between
		// adjacent codes keeps the published value.
		if d := next.Cover - cur.Cover; d > 1 || d < -1 {
			cur.Cover = next.Cover
		}
	}

	a.seeded = true
	return a.published
}

// buildStack merges observed and forecast layers into at most three slots,
// ordered bottom-up.
func (a *CloudLayerAssembler) buildStack(snap *wxdata.Snapshot) []CloudSlot {
	maxDepthM := wxdata.FtToM(math.Min(40000, a.clouds.MaxCloudHeightFt))
	ceilingM := stationCloudCeilingM

	var forecast []wxdata.ForecastCloud
	if snap != nil && snap.GFS != nil {
		forecast = snap.GFS.Clouds
	}

	var m *wxdata.MetarReport
	if snap != nil {
		m = snap.Metar
	}

	// Built top-down so each layer's top can be capped at the base of the
	// layer above it, then reversed for the output slots.
	var topDown []CloudSlot

	if m != nil && m.DistanceM < a.metar.StationDistanceKm*1000 && len(m.Clouds) > 0 {
		ceilingM += m.ElevationM

		lastBase, maxTop := 0.0, 0.0
		for i := len(m.Clouds) - 1; i >= 0; i-- {
			obs := m.Clouds[i]
			base := obs.BaseM
			top := minCloudDepthM
			cover := 0

			if c, depth, ok := wxdata.CoverFromCode(obs.Cover); ok {
				cover = c
				top = base + depth
			}

			// A forecast band overlapping the observed base lends the layer
			// its real depth instead of the code default.
			for _, fc := range forecast {
				if fc.BaseM > 0 && fc.BaseM-forecastMatchSlackM < base && base < fc.TopM {
					top = base + wxdata.Clamp(fc.TopM-fc.BaseM, minCloudDepthM, maxDepthM)
					break
				}
			}

			if lastBase > 0 && top > lastBase {
				top = lastBase
			}
			lastBase = base

			topDown = append(topDown, CloudSlot{BaseM: base, TopM: top, Cover: cover})

			if maxTop == 0 {
				maxTop = top
			}
		}

		// Forecast layers above both the station ceiling and the highest
		// observed top fill the remaining slots.
		for _, fc := range forecast {
			if len(topDown) >= 3 || fc.BaseM <= math.Max(ceilingM, maxTop) {
				continue
			}
			top := fc.BaseM + wxdata.Clamp(fc.TopM-fc.BaseM, minCloudDepthM, maxDepthM)
			topDown = append([]CloudSlot{{
				BaseM: fc.BaseM,
				TopM:  top,
				Cover: wxdata.CoverFromPercent(fc.CoverPct),
			}}, topDown...)
		}
	} else {
		lastBase := 0.0
		for i := len(forecast) - 1; i >= 0; i-- {
			fc := forecast[i]
			cover := wxdata.CoverFromPercent(fc.CoverPct)
			if cover <= 0 || fc.BaseM <= 0 || fc.TopM <= 0 {
				continue
			}

			var top float64
			if cover < 3 {
				// Scattered forecast bands get the minimum depth; their
				// reported tops are too coarse to render literally.
				top = fc.BaseM + minCloudDepthM
			} else {
				top = fc.BaseM + wxdata.Clamp(fc.TopM-fc.BaseM, minCloudDepthM, maxDepthM)
			}

			if lastBase > top {
				top = lastBase
			}
			topDown = append(topDown, CloudSlot{BaseM: fc.BaseM, TopM: top, Cover: cover})
			lastBase = fc.BaseM
		}
	}

	stack := make([]CloudSlot, 0, len(topDown)+1)
	for i := len(topDown) - 1; i >= 0; i-- {
		stack = append(stack, topDown[i])
	}

	// A clear filler beneath a lone high deck keeps slot zero occupied so
	// later low clouds appear there without re-sorting the upper slots.
	if len(stack) > 0 && len(stack) < 3 && stack[0].BaseM > ceilingM {
		stack = append([]CloudSlot{{BaseM: 0, TopM: minCloudDepthM, Cover: 0}}, stack...)
	}

	if len(stack) > 3 {
		stack = stack[:3]
	}

	return stack
}
