package metar

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/internal/wxdata"
)

var (
	// 280V350 variable wind group. Only present in the raw report text.
	reVariableWind = regexp.MustCompile(`\b(\d{3})V(\d{3})\b`)

	// One present-weather token: optional intensity, optional recent/vicinity
	// modifier, descriptor, precipitation type.
	reWxToken = regexp.MustCompile(`^([-+])?(RE|VC)?(MI|BC|PR|DR|BL|SH|TS|FZ)?(DZ|RA|SN|SG|PL|GR|GS|UP|IC)?$`)
)

// parseReport converts an upstream observation into the snapshot's station
// report, with distance measured from the query point.
func parseReport(obs *awMetar, queryLat, queryLon float64) *wxdata.MetarReport {
	r := &wxdata.MetarReport{
		ICAO:       obs.ICAOID,
		Raw:        obs.RawOb,
		ElevationM: obs.ElevM,
		DistanceM:  physics.DistanceM(queryLat, queryLon, obs.Lat, obs.Lon),
		TempC:      obs.TempC,
		DewC:       obs.DewC,
	}

	r.Wind = parseWind(obs)
	r.VariableWind = parseVariableWind(obs.RawOb)

	if obs.AltimHPa != nil {
		r.PressureInHg = wxdata.Float(wxdata.HPaToInHg(*obs.AltimHPa))
	}

	if vis, ok := parseVisibility(obs.VisibSM); ok {
		r.VisibilityM = wxdata.Float(wxdata.SMToM(vis))
	}

	for _, cl := range obs.Clouds {
		if cl.BaseFt == nil {
			continue
		}
		r.Clouds = append(r.Clouds, wxdata.MetarCloud{
			// Reported bases are above ground; the assembler works in MSL.
			BaseM: obs.ElevM + wxdata.FtToM(*cl.BaseFt),
			Cover: cl.Cover,
		})
	}

	r.Precipitation = parseWx(obs.WxString)

	return r
}

// parseWind reads the wind group. A variable ("VRB") or missing direction
// reports heading 0; the variable-wind span carries the real spread.
func parseWind(obs *awMetar) *wxdata.MetarWind {
	if obs.WindSpdKt == nil {
		return nil
	}

	w := &wxdata.MetarWind{SpeedKt: *obs.WindSpdKt}
	if obs.WindGustKt != nil {
		w.GustKt = *obs.WindGustKt
	}

	var dir float64
	if err := json.Unmarshal(obs.WindDir, &dir); err == nil {
		w.DirDeg = dir
	}
	return w
}

func parseVariableWind(raw string) *wxdata.WindRange {
	m := reVariableWind.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	from, err1 := strconv.ParseFloat(m[1], 64)
	to, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &wxdata.WindRange{FromDeg: from, ToDeg: to}
}

// parseVisibility handles both plain numbers and capped strings like "10+".
func parseVisibility(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var sm float64
	if err := json.Unmarshal(raw, &sm); err == nil {
		return sm, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "+")
	sm, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return sm, true
}

// parseWx extracts precipitation groups from the present-weather string,
// e.g. "-SHRA BR" or "+TSRA". Thunderstorms land under their own "TS" key
// alongside any precipitation they carry.
func parseWx(wx string) map[string]wxdata.Precipitation {
	if wx == "" {
		return nil
	}

	out := map[string]wxdata.Precipitation{}
	for _, token := range strings.Fields(wx) {
		m := reWxToken.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		intensity, modifier, descriptor, precip := m[1], m[2], m[3], m[4]

		// Vicinity weather does not reach the field.
		if modifier == "VC" {
			continue
		}

		recent := ""
		if modifier == "RE" {
			recent = "RE"
		}

		if descriptor == "TS" {
			out["TS"] = wxdata.Precipitation{Intensity: intensity, Recent: recent}
		}

		switch {
		case precip != "":
			kind := precip
			if descriptor == "SH" {
				kind = "SH" + precip
			}
			out[kind] = wxdata.Precipitation{Intensity: intensity, Recent: recent}
		case descriptor == "SH":
			out["SH"] = wxdata.Precipitation{Intensity: intensity, Recent: recent}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
