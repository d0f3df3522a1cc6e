package engine

import (
	"math"
	"strconv"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/internal/wxdata"
)

// surfaceLayerRiseMS is the rate at which the synthetic surface layer's
// altitude follows a changed station elevation (1 ft/s), slow enough that a
// station handoff never pops the lowest layer.
const surfaceLayerRiseMS = 0.3048

// WindLayerResolver selects the pair of layers bracketing the current
// altitude, injects a synthetic surface layer from the station report, and
// blends the bracket into one output layer.
type WindLayerResolver struct {
	wind  config.WindConfig
	metar config.MetarConfig
	trans *TransitionEngine

	// Index of the layer above the aircraft on the previous call. A change
	// here means the bracket moved and stale per-layer transitions must go.
	lastTopIdx int
}

// ResolvedWind is the blended wind at the current altitude plus the derived
// sea-level temperatures published alongside it.
type ResolvedWind struct {
	Layer         wxdata.WindLayer
	SeaLevelTempC *float64
	SeaLevelDewC  *float64
}

// NewWindLayerResolver creates a resolver sharing the engine's transition state
func NewWindLayerResolver(wind config.WindConfig, metar config.MetarConfig, trans *TransitionEngine) *WindLayerResolver {
	return &WindLayerResolver{wind: wind, metar: metar, trans: trans, lastTopIdx: -1}
}

// Reset forgets the active bracket. Call on discontinuities (airport load).
func (r *WindLayerResolver) Reset() {
	r.lastTopIdx = -1
}

// Resolve blends the snapshot's wind layers for the current altitude. The
// second return is false when the snapshot carries no usable wind data, in
// which case outputs must be left unchanged.
func (r *WindLayerResolver) Resolve(snap *wxdata.Snapshot, altM, elapsedS float64) (ResolvedWind, bool) {
	var winds []wxdata.WindLayer
	if snap != nil && snap.GFS != nil {
		winds = append(winds, snap.GFS.Winds...)
	}

	if snap != nil {
		winds = r.injectSurfaceLayer(winds, snap.Metar, elapsedS)
	}

	if len(winds) == 0 {
		return ResolvedWind{}, false
	}

	// Locate the bracket: bot is the last layer at or below the aircraft,
	// top the first one above. Below all layers or above all layers the two
	// coincide on the nearest end.
	botIdx, topIdx := -1, 0
	for i := range winds {
		topIdx = i
		if winds[i].AltM > altM {
			break
		}
		botIdx = i
	}

	if r.lastTopIdx != topIdx {
		// Bracket changed: drop transitions for layers no longer in view so
		// they cannot contaminate whatever layer takes their index next.
		r.lastTopIdx = topIdx
		r.trans.ClearExcept(strconv.Itoa(botIdx), strconv.Itoa(topIdx))
	}

	top := r.transitionLayer(winds[topIdx], strconv.Itoa(topIdx), elapsedS)

	var resolved wxdata.WindLayer
	if botIdx >= 0 && botIdx != topIdx {
		bot := r.transitionLayer(winds[botIdx], strconv.Itoa(botIdx), elapsedS)
		resolved = interpolateWindLayers(bot, top, altM)
	} else {
		// Below the first layer or above the last one
		resolved = top
	}

	slTemp, slDew := r.seaLevelTemps(resolved, winds, topIdx, altM)

	return ResolvedWind{Layer: resolved, SeaLevelTempC: slTemp, SeaLevelDewC: slDew}, true
}

// injectSurfaceLayer synthesizes a surface wind layer from the station
// report and prepends it to the forecast layers.
func (r *WindLayerResolver) injectSurfaceLayer(winds []wxdata.WindLayer, m *wxdata.MetarReport, elapsedS float64) []wxdata.WindLayer {
	if m == nil || m.Wind == nil || m.DistanceM > r.metar.StationDistanceKm*1000 {
		return winds
	}

	aglM := wxdata.FtToM(r.metar.AGLOffsetFt)

	layer := wxdata.WindLayer{
		HeadingDeg: m.Wind.DirDeg,
		SpeedKt:    m.Wind.SpeedKt,
		GustKt:     wxdata.Float(m.Wind.GustKt),
		Surface:    true,
	}

	if vw := m.VariableWind; vw != nil {
		h1 := normHeading(vw.FromDeg)
		h2 := normHeading(vw.ToDeg)
		span := h2 - h1
		if h1 > h2 {
			span = 360 - h1 + h2
		}
		layer.HeadingDeg = h1
		layer.VariationDeg = wxdata.Float(r.trans.RandPattern("metar_wind_hdg", span, elapsedS, 20, 20, 50))
	}

	if m.TempC != nil {
		layer.TempK = wxdata.Float(*m.TempC + physics.ZeroCelsius)
	}
	if m.DewC != nil {
		layer.DewK = wxdata.Float(*m.DewC + physics.ZeroCelsius)
	}

	// The layer's altitude follows the station smoothly rather than
	// snapping, so a station change does not pop the lowest layer.
	alt := m.ElevationM + aglM
	alt = r.trans.Transition(alt, "0-metar_wind_alt", elapsedS, surfaceLayerRiseMS)
	layer.AltM = alt

	// Drop the lowest forecast layer when the surface layer crowds it (high
	// altitude airports). Known limitation: this can momentarily disturb an
	// in-progress transition when the crowded layer was part of the bracket.
	if len(winds) > 1 && winds[0].AltM < alt+aglM {
		winds = winds[1:]
	}

	return append([]wxdata.WindLayer{layer}, winds...)
}

// transitionLayer moves one layer's values toward their snapshot targets,
// keyed by the layer's bracket index.
func (r *WindLayerResolver) transitionLayer(l wxdata.WindLayer, id string, elapsedS float64) wxdata.WindLayer {
	l.HeadingDeg = r.trans.TransitionHeading(l.HeadingDeg, id+"-hdg", elapsedS, r.wind.HeadingRateDegSec)
	l.SpeedKt = r.trans.Transition(l.SpeedKt, id+"-speed", elapsedS, r.wind.SpeedRateKtSec)

	if l.GustKt != nil {
		l.GustKt = wxdata.Float(r.trans.Transition(*l.GustKt, id+"-gust", elapsedS, r.wind.GustRateKtSec))
	}
	if l.DewK != nil {
		l.DewK = wxdata.Float(r.trans.Transition(*l.DewK, id+"-dew", elapsedS, r.wind.GustRateKtSec))
	}

	return l
}

// interpolateWindLayers blends the bracketing layers at the given altitude.
// Speed and scalar extras interpolate linearly; heading uses an
// exponential-cosine blend weighted toward the faster layer, which stays
// strictly between the endpoint directions where plain cosine interpolation
// can overshoot under sharp speed imbalance.
func interpolateWindLayers(lower, upper wxdata.WindLayer, altM float64) wxdata.WindLayer {
	if lower.AltM == upper.AltM {
		return lower
	}

	ratio := (altM - lower.AltM) / (upper.AltM - lower.AltM)
	ratio = wxdata.Clamp(ratio, 0, 1)

	expo := 1.0
	if lower.SpeedKt != 0 || upper.SpeedKt != 0 {
		expo = 2 * lower.SpeedKt / (lower.SpeedKt + upper.SpeedKt)
	}

	mu := expoCosineMu(ratio, expo)

	out := wxdata.WindLayer{
		AltM:       altM,
		HeadingDeg: normHeading(lower.HeadingDeg + headingDiff(lower.HeadingDeg, upper.HeadingDeg)*mu),
		SpeedKt:    lerp(lower.SpeedKt, upper.SpeedKt, ratio),
	}

	if lower.GustKt != nil && upper.GustKt != nil {
		out.GustKt = wxdata.Float(lerp(*lower.GustKt, *upper.GustKt, ratio))
	}
	if lower.VariationDeg != nil || upper.VariationDeg != nil {
		out.VariationDeg = wxdata.Float(lerp(floatOrZero(lower.VariationDeg), floatOrZero(upper.VariationDeg), ratio))
	}

	// Temperature and dewpoint are never invented: left unset unless both
	// sides report them.
	if lower.TempK != nil && upper.TempK != nil {
		out.TempK = wxdata.Float(lerp(*lower.TempK, *upper.TempK, ratio))
	}
	if lower.DewK != nil && upper.DewK != nil {
		out.DewK = wxdata.Float(lerp(*lower.DewK, *upper.DewK, ratio))
	}

	return out
}

// seaLevelTemps projects the resolved layer's temperature and dewpoint to
// sea level, falling back to the next layer up when the resolved layer has
// no reading.
func (r *WindLayerResolver) seaLevelTemps(resolved wxdata.WindLayer, winds []wxdata.WindLayer, topIdx int, altM float64) (*float64, *float64) {
	var next *wxdata.WindLayer
	if topIdx+1 < len(winds) {
		next = &winds[topIdx+1]
	}

	var slTemp, slDew *float64

	switch {
	case resolved.TempK != nil:
		slTemp = wxdata.Float(physics.SeaLevelTemperature(*resolved.TempK-physics.ZeroCelsius, altM))
	case next != nil && next.TempK != nil:
		slTemp = wxdata.Float(physics.SeaLevelTemperature(*next.TempK-physics.ZeroCelsius, next.AltM))
	}

	switch {
	case resolved.DewK != nil:
		slDew = wxdata.Float(physics.SeaLevelTemperature(*resolved.DewK-physics.ZeroCelsius, altM))
	case next != nil && next.DewK != nil:
		slDew = wxdata.Float(physics.SeaLevelTemperature(*next.DewK-physics.ZeroCelsius, next.AltM))
	}

	return slTemp, slDew
}

// expoCosineMu maps a 0..1 altitude ratio to a blend weight: the ratio is
// first raised to expo (biasing toward the faster layer) and then smoothed
// through a half cosine so the weight stays in [0,1].
func expoCosineMu(ratio, expo float64) float64 {
	if expo <= 0 {
		expo = 1
	}
	r := math.Pow(ratio, expo)
	return (1 - math.Cos(r*math.Pi)) / 2
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
