package engine

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// TransitionEngine rate-limits the approach of output values toward their
// moving targets so the consumer never sees a discontinuous jump. State is
// keyed by an opaque reference id; keys are namespaced "<group>-<field>" so
// whole groups can be dropped when the active layer bracket changes.
type TransitionEngine struct {
	refs map[string]float64
	rnd  *rand.Rand
	walk map[string]*walkState
}

type walkState struct {
	target float64
	holdS  float64
}

// NewTransitionEngine creates a transition engine. rnd may be nil, in which
// case a time-seeded source is used; tests inject a seeded one for
// reproducible random walks.
func NewTransitionEngine(rnd *rand.Rand) *TransitionEngine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &TransitionEngine{
		refs: make(map[string]float64),
		rnd:  rnd,
		walk: make(map[string]*walkState),
	}
}

// Transition moves the stored value for key toward value by at most
// rate*elapsed and returns the moved value. The first call for a key returns
// value directly and records it.
func (e *TransitionEngine) Transition(value float64, key string, elapsedS, rate float64) float64 {
	last, ok := e.refs[key]
	if !ok {
		e.refs[key] = value
		return value
	}

	step := rate * elapsedS
	switch {
	case last+step < value:
		value = last + step
	case last-step > value:
		value = last - step
	}

	e.refs[key] = value
	return value
}

// TransitionHeading behaves like Transition but measures angular distance on
// a 360° circle and always takes the shorter arc.
func (e *TransitionEngine) TransitionHeading(value float64, key string, elapsedS, rate float64) float64 {
	value = normHeading(value)

	last, ok := e.refs[key]
	if !ok {
		e.refs[key] = value
		return value
	}

	diff := headingDiff(last, value)
	step := rate * elapsedS

	if math.Abs(diff) > step {
		if diff > 0 {
			value = normHeading(last + step)
		} else {
			value = normHeading(last - step)
		}
	}

	e.refs[key] = value
	return value
}

// RandPattern perturbs values toward a bounded random target, re-rolling the
// target no more often than minTimeS, to produce organic-looking variation
// instead of a constant or blocky value. smoothS is the approximate window
// over which the value drifts across the full range.
func (e *TransitionEngine) RandPattern(key string, maxVal, elapsedS, smoothS, minTimeS, maxTimeS float64) float64 {
	if maxVal <= 0 {
		delete(e.walk, key)
		e.refs["walk-"+key] = 0
		return 0
	}
	if maxTimeS < minTimeS {
		maxTimeS = minTimeS
	}

	w, ok := e.walk[key]
	if !ok {
		w = &walkState{}
		e.walk[key] = w
	}

	w.holdS -= elapsedS
	if w.holdS <= 0 {
		w.target = e.rnd.Float64() * maxVal
		w.holdS = minTimeS + e.rnd.Float64()*(maxTimeS-minTimeS)
	}

	rate := maxVal
	if smoothS > 0 {
		rate = maxVal / smoothS
	}
	return e.Transition(w.target, "walk-"+key, elapsedS, rate)
}

// ClearExcept drops all transition state whose key group (the part before
// the first '-') is not in retain. Called when the bracketing layer index
// changes so stale transitions cannot leak into unrelated layers.
func (e *TransitionEngine) ClearExcept(retain ...string) {
	keep := make(map[string]bool, len(retain))
	for _, r := range retain {
		keep[r] = true
	}
	for key := range e.refs {
		group, _, _ := strings.Cut(key, "-")
		if !keep[group] {
			delete(e.refs, key)
		}
	}
}

// Reset drops all state, including random-walk state. Used on declared
// discontinuities such as a new airport load or teleport.
func (e *TransitionEngine) Reset() {
	e.refs = make(map[string]float64)
	e.walk = make(map[string]*walkState)
}

// normHeading wraps a heading into [0, 360)
func normHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// headingDiff returns the signed shortest-arc distance from 'from' to 'to'
// in degrees, in (-180, 180].
func headingDiff(from, to float64) float64 {
	d := math.Mod(to-from+540, 360) - 180
	return d
}
