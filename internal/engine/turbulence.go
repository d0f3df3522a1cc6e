package engine

import (
	"github.com/skysim/noawx/internal/wxdata"
)

// TurbulenceSampler turns forecast turbulence bands into the per-frame
// intensity in [0,1]. The bracketed forecast value is only a ceiling; the
// published value random-walks beneath it so turbulence comes in waves
// instead of a constant shake.
type TurbulenceSampler struct {
	probability float64
	trans       *TransitionEngine
}

// NewTurbulenceSampler creates a sampler. probability scales all forecast
// values and is normally 0..1.
func NewTurbulenceSampler(probability float64, trans *TransitionEngine) *TurbulenceSampler {
	return &TurbulenceSampler{probability: probability, trans: trans}
}

// Sample returns the turbulence intensity at the current altitude. No bands
// yields zero; a single band applies everywhere.
func (s *TurbulenceSampler) Sample(bands []wxdata.TurbulenceBand, altM, elapsedS float64) float64 {
	ceiling := bracketSeverity(bands, altM) * s.probability
	return s.trans.RandPattern("turbulence", ceiling, elapsedS, 20, 1, 20)
}

// bracketSeverity interpolates the band severities around the given altitude.
func bracketSeverity(bands []wxdata.TurbulenceBand, altM float64) float64 {
	if len(bands) == 0 {
		return 0
	}
	if len(bands) == 1 {
		return bands[0].Severity
	}

	var prev *wxdata.TurbulenceBand
	for i := range bands {
		b := &bands[i]
		if b.AltM > altM {
			if prev == nil {
				return b.Severity
			}
			ratio := (altM - prev.AltM) / (b.AltM - prev.AltM)
			return lerp(prev.Severity, b.Severity, ratio)
		}
		prev = b
	}

	// Above the highest band, clamp to it.
	return prev.Severity
}
