package wxdata

// Stateless unit conversions and report-code mappings used across the
// engine and sources. Kept free of any engine state so they can be tested
// in isolation.

const (
	ftPerM       = 3.28084
	mPerSM       = 1609.344
	flightLevelM = 30.48   // one flight level (100 ft) in meters
	hPaPerInHg   = 33.8639 // hectopascals per inch of mercury
)

// FtToM converts feet to meters
func FtToM(ft float64) float64 { return ft / ftPerM }

// MToFt converts meters to feet
func MToFt(m float64) float64 { return m * ftPerM }

// SMToM converts statute miles to meters
func SMToM(sm float64) float64 { return sm * mPerSM }

// MToSM converts meters to statute miles
func MToSM(m float64) float64 { return m / mPerSM }

// FLToM converts a flight level (hundreds of feet) to meters
func FLToM(fl float64) float64 { return fl * flightLevelM }

// HPaToInHg converts hectopascals to inches of mercury
func HPaToInHg(hPa float64) float64 { return hPa / hPaPerInHg }

// Clamp limits v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// CoverFromPercent maps fractional forecast cloud cover (0..100) to the
// simulator's 0..4 coverage scale. Any non-zero cover is at least FEW;
// above 89% is overcast.
func CoverFromPercent(pct float64) int {
	xp := pct / 100.0 * 4
	if xp < 1 && pct > 0 {
		xp = 1
	} else if pct > 89 {
		xp = 4
	}
	if xp < 0 {
		xp = 0
	} else if xp > 4 {
		xp = 4
	}
	return int(xp)
}

// metarCover maps report cover codes to simulator coverage and a default
// geometric thickness used when no forecast band overlaps the layer.
var metarCover = map[string]struct {
	Cover      int
	ThicknessM float64
}{
	"FEW": {1, 609.6},  // 2000 ft
	"SCT": {2, 1219.2}, // 4000 ft
	"BKN": {3, 1219.2},
	"OVC": {4, 1219.2},
	"VV":  {4, 1828.8}, // vertical visibility, 6000 ft
}

// CoverFromCode maps a report cover code to the 0..4 scale and its default
// thickness in meters. Unknown codes report ok=false.
func CoverFromCode(code string) (cover int, thicknessM float64, ok bool) {
	c, ok := metarCover[code]
	if !ok {
		return 0, 0, false
	}
	return c.Cover, c.ThicknessM, true
}

// PrecipEffects maps one precipitation group to rain intensity (0..1) and a
// runway friction level (0 dry, 1 wet, 2 puddly/icy). Reported for rain,
// drizzle, snow and shower types; recent-only precipitation ("RE" prefix in
// the report) wets the runway without active rain.
func PrecipEffects(kind string, p Precipitation) (rain float64, friction float64, ok bool) {
	var base float64
	switch kind {
	case "RA", "SH", "SHRA":
		base = 0.5
	case "DZ":
		base = 0.25
	case "SN", "SG", "SHSN":
		base = 0.5
	case "PL", "GR", "GS":
		base = 0.6
	default:
		return 0, 0, false
	}

	switch p.Intensity {
	case "-":
		rain = base * 0.5
	case "+":
		rain = Clamp(base*2, 0, 1)
	default:
		rain = base
	}

	switch kind {
	case "SN", "SG", "SHSN", "PL", "GR", "GS":
		friction = 2
	default:
		friction = 1
	}

	if p.Recent != "" && rain == 0 {
		friction = 1
	}

	return rain, friction, true
}

// ThunderstormIntensity maps the TS group intensity to the simulator's
// thunderstorm fraction.
func ThunderstormIntensity(p Precipitation) float64 {
	switch p.Intensity {
	case "-":
		return 0.25
	case "+":
		return 1.0
	default:
		return 0.5
	}
}
