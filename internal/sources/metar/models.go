package metar

import "encoding/json"

// awMetar is one observation as returned by the aviationweather.gov data
// API. Only the fields the parser consumes are mapped; numeric fields that
// the API sometimes returns as strings ("VRB", "10+") stay raw.
type awMetar struct {
	ICAOID     string          `json:"icaoId"`
	RawOb      string          `json:"rawOb"`
	Lat        float64         `json:"lat"`
	Lon        float64         `json:"lon"`
	ElevM      float64         `json:"elev"`
	TempC      *float64        `json:"temp"`
	DewC       *float64        `json:"dewp"`
	WindDir    json.RawMessage `json:"wdir"` // degrees, or "VRB"
	WindSpdKt  *float64        `json:"wspd"`
	WindGustKt *float64        `json:"wgst"`
	VisibSM    json.RawMessage `json:"visib"` // statute miles, or "10+"
	AltimHPa   *float64        `json:"altim"`
	WxString   string          `json:"wxString"`
	Clouds     []awCloud       `json:"clouds"`
}

// awCloud is one reported cloud group. Base is feet above ground.
type awCloud struct {
	Cover  string   `json:"cover"`
	BaseFt *float64 `json:"base"`
}
