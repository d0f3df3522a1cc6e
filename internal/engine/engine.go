package engine

import (
	"math"
	"sync"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

// WindSlot is one of the three simulator wind layers. All three carry the
// same resolved wind so the simulator never blends in its own.
type WindSlot struct {
	AltM            float64
	HeadingDeg      float64
	SpeedKt         float64
	GustKt          float64
	ShearHeadingDeg float64 // always zero, gusts stay on the mean heading
	Turbulence      float64
}

// Outputs is the full set of values the engine publishes each frame. Fields
// hold their previous value whenever the snapshot lacks the data to move
// them, so a degraded feed freezes the weather instead of blanking it.
type Outputs struct {
	Ready bool

	Winds  [3]WindSlot
	Clouds [3]CloudSlot

	SeaLevelTempC *float64
	SeaLevelDewC  *float64

	PressureInHg float64
	VisibilityM  float64

	RainPct         float64
	ThunderstormPct float64
	RunwayFriction  float64
}

// Engine owns the per-frame weather state. Feed it snapshots as they arrive
// and call Step once per frame with the elapsed time; it returns the outputs
// to apply to the simulator.
type Engine struct {
	cfg *config.Config
	log *logger.Logger

	trans  *TransitionEngine
	wind   *WindLayerResolver
	clouds *CloudLayerAssembler
	turb   *TurbulenceSampler

	// Pressure keeps its own transition state: the wind resolver clears the
	// shared engine on bracket changes, which must not snap the altimeter.
	pressure *TransitionEngine

	mu      sync.Mutex
	snap    *wxdata.Snapshot
	newData bool
	out     Outputs
}

func New(cfg *config.Config, log *logger.Logger) *Engine {
	trans := NewTransitionEngine(nil)
	return &Engine{
		cfg:      cfg,
		log:      log.Named("engine"),
		trans:    trans,
		wind:     NewWindLayerResolver(cfg.Wind, cfg.Metar, trans),
		clouds:   NewCloudLayerAssembler(cfg.Clouds, cfg.Metar),
		turb:     NewTurbulenceSampler(cfg.Turbulence.Probability, trans),
		pressure: NewTransitionEngine(nil),
	}
}

// SetSnapshot installs a new full snapshot. The next Step re-derives the
// once-per-snapshot values (clouds, visibility, precipitation).
func (e *Engine) SetSnapshot(snap *wxdata.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap = snap
	e.newData = true

	if snap != nil && snap.Info != nil {
		e.log.Debug("new weather snapshot",
			logger.Float64("lat", snap.Info.Lat),
			logger.Float64("lon", snap.Info.Lon),
			logger.String("gfs_cycle", snap.Info.GFSCycle))
	}
}

// Reset clears all transition and redraw state. Call when the aircraft is
// repositioned so the new weather applies immediately instead of easing in
// from the old location's values.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trans.Reset()
	e.pressure.Reset()
	e.wind.Reset()
	e.clouds.Reset()
	e.newData = true
}

// Step advances the engine by elapsedS seconds with the aircraft at altM and
// returns the outputs to apply. Without a snapshot it reports not ready and
// leaves all values untouched.
func (e *Engine) Step(altM, elapsedS float64) Outputs {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snap == nil {
		e.out.Ready = false
		return e.out
	}
	e.out.Ready = true

	if e.newData {
		e.applyStatics()
		e.newData = false
	}

	// Once per snapshot values still honor redraw suppression against the
	// aircraft's current altitude, so clouds reassemble every frame.
	e.out.Clouds = e.clouds.Assemble(e.snap, altM)

	e.stepPressure(elapsedS)
	e.stepWinds(altM, elapsedS)

	return e.out
}

// applyStatics derives the values that change only when a new snapshot
// arrives: visibility and precipitation effects.
func (e *Engine) applyStatics() {
	m := e.snap.Metar

	if m != nil && m.VisibilityM != nil {
		maxVisM := wxdata.SMToM(e.cfg.Visibility.MaxVisibilitySM)
		e.out.VisibilityM = math.Min(*m.VisibilityM, maxVisM)
	}

	rain, friction, ts := 0.0, 0.0, 0.0
	if m != nil {
		for kind, p := range m.Precipitation {
			if kind == "TS" {
				ts = wxdata.ThunderstormIntensity(p)
				continue
			}
			if r, f, ok := wxdata.PrecipEffects(kind, p); ok {
				rain = math.Max(rain, r)
				friction = math.Max(friction, f)
			}
		}
	}
	e.out.RainPct = rain
	e.out.RunwayFriction = friction
	e.out.ThunderstormPct = ts
}

// stepPressure eases the altimeter setting toward the report value,
// preferring the station report over the forecast grid.
func (e *Engine) stepPressure(elapsedS float64) {
	var target *float64
	if m := e.snap.Metar; m != nil && m.PressureInHg != nil {
		target = m.PressureInHg
	} else if g := e.snap.GFS; g != nil && g.PressureInHg != nil {
		target = g.PressureInHg
	}
	if target == nil {
		return
	}
	e.out.PressureInHg = e.pressure.Transition(*target, "pressure", elapsedS, e.cfg.Wind.PressureRateInHgSec)
}

// stepWinds resolves the wind at altitude and fans it out to the three
// simulator slots with the turbulence walk applied.
func (e *Engine) stepWinds(altM, elapsedS float64) {
	res, ok := e.wind.Resolve(e.snap, altM, elapsedS)
	if !ok {
		return
	}

	var turb float64
	if w := e.snap.WAFS; w != nil {
		turb = e.turb.Sample(w, altM, elapsedS)
	}

	hdg := res.Layer.HeadingDeg
	if res.Layer.VariationDeg != nil {
		hdg = normHeading(hdg + *res.Layer.VariationDeg)
	}

	slot := WindSlot{
		AltM:       res.Layer.AltM,
		HeadingDeg: hdg,
		SpeedKt:    res.Layer.SpeedKt,
		Turbulence: turb,
	}
	if res.Layer.GustKt != nil {
		slot.GustKt = *res.Layer.GustKt
	}

	for i := range e.out.Winds {
		e.out.Winds[i] = slot
	}

	if res.SeaLevelTempC != nil {
		e.out.SeaLevelTempC = res.SeaLevelTempC
	}
	if res.SeaLevelDewC != nil {
		e.out.SeaLevelDewC = res.SeaLevelDewC
	}
}
