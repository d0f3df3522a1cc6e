package wxdata

// WindLayer is a single wind observation or forecast at a fixed altitude.
// Optional fields are pointers: nil means the source did not report them.
type WindLayer struct {
	AltM         float64  `msgpack:"alt_m" json:"alt_m"`
	HeadingDeg   float64  `msgpack:"hdg_deg" json:"hdg_deg"`
	SpeedKt      float64  `msgpack:"speed_kt" json:"speed_kt"`
	GustKt       *float64 `msgpack:"gust_kt,omitempty" json:"gust_kt,omitempty"`
	TempK        *float64 `msgpack:"temp_k,omitempty" json:"temp_k,omitempty"`
	DewK         *float64 `msgpack:"dew_k,omitempty" json:"dew_k,omitempty"`
	VariationDeg *float64 `msgpack:"variation_deg,omitempty" json:"variation_deg,omitempty"`
	Surface      bool     `msgpack:"surface,omitempty" json:"surface,omitempty"` // synthetic station layer
}

// ForecastCloud is a forecast cloud band with fractional coverage
type ForecastCloud struct {
	BaseM    float64 `msgpack:"base_m" json:"base_m"`
	TopM     float64 `msgpack:"top_m" json:"top_m"`
	CoverPct float64 `msgpack:"cover_pct" json:"cover_pct"` // 0..100
}

// TurbulenceBand is forecast turbulence severity at an altitude
type TurbulenceBand struct {
	AltM     float64 `msgpack:"alt_m" json:"alt_m"`
	Severity float64 `msgpack:"severity" json:"severity"`
}

// GridData is the point-localized extract of a forecast grid cycle
type GridData struct {
	Winds        []WindLayer     `msgpack:"winds,omitempty" json:"winds,omitempty"`       // ascending by altitude
	Clouds       []ForecastCloud `msgpack:"clouds,omitempty" json:"clouds,omitempty"`     // ascending by base
	PressureInHg *float64        `msgpack:"pressure,omitempty" json:"pressure,omitempty"` // sea-level pressure
}

// MetarWind is the surface wind group of a station report
type MetarWind struct {
	DirDeg  float64 `msgpack:"dir_deg" json:"dir_deg"`
	SpeedKt float64 `msgpack:"speed_kt" json:"speed_kt"`
	GustKt  float64 `msgpack:"gust_kt" json:"gust_kt"`
}

// WindRange is a variable-wind direction span (e.g. 280V350)
type WindRange struct {
	FromDeg float64 `msgpack:"from_deg" json:"from_deg"`
	ToDeg   float64 `msgpack:"to_deg" json:"to_deg"`
}

// MetarCloud is an observed cloud layer with its report cover code
type MetarCloud struct {
	BaseM float64 `msgpack:"base_m" json:"base_m"`
	Cover string  `msgpack:"cover" json:"cover"` // FEW, SCT, BKN, OVC, VV
	Kind  string  `msgpack:"kind,omitempty" json:"kind,omitempty"`
}

// Precipitation describes one precipitation group of a report
type Precipitation struct {
	Intensity string `msgpack:"intensity" json:"intensity"` // "-", "" or "+"
	Recent    string `msgpack:"recent,omitempty" json:"recent,omitempty"`
}

// MetarReport is a decoded point observation from the nearest station
type MetarReport struct {
	ICAO          string                   `msgpack:"icao" json:"icao"`
	Raw           string                   `msgpack:"raw,omitempty" json:"raw,omitempty"`
	ElevationM    float64                  `msgpack:"elevation_m" json:"elevation_m"`
	DistanceM     float64                  `msgpack:"distance_m" json:"distance_m"`
	Wind          *MetarWind               `msgpack:"wind,omitempty" json:"wind,omitempty"`
	VariableWind  *WindRange               `msgpack:"variable_wind,omitempty" json:"variable_wind,omitempty"`
	TempC         *float64                 `msgpack:"temp_c,omitempty" json:"temp_c,omitempty"`
	DewC          *float64                 `msgpack:"dew_c,omitempty" json:"dew_c,omitempty"`
	PressureInHg  *float64                 `msgpack:"pressure,omitempty" json:"pressure,omitempty"`
	VisibilityM   *float64                 `msgpack:"visibility_m,omitempty" json:"visibility_m,omitempty"`
	Clouds        []MetarCloud             `msgpack:"clouds,omitempty" json:"clouds,omitempty"`
	Precipitation map[string]Precipitation `msgpack:"precipitation,omitempty" json:"precipitation,omitempty"` // keyed by type (RA, SN, TS, ...)
}

// SnapshotInfo identifies where and from which forecast cycles a snapshot
// was assembled. Its presence on the wire marks a full snapshot.
type SnapshotInfo struct {
	Lat        float64 `msgpack:"lat" json:"lat"`
	Lon        float64 `msgpack:"lon" json:"lon"`
	GFSCycle   string  `msgpack:"gfs_cycle" json:"gfs_cycle"`
	WAFSCycle  string  `msgpack:"wafs_cycle" json:"wafs_cycle"`
	MagDeclDeg float64 `msgpack:"mag_decl_deg" json:"mag_decl_deg"`
}

// Snapshot is the full weather state handed from server to client. Any
// section may be nil: absence means "no data from that source", not an error.
type Snapshot struct {
	Info  *SnapshotInfo    `msgpack:"info,omitempty" json:"info,omitempty"`
	GFS   *GridData        `msgpack:"gfs,omitempty" json:"gfs,omitempty"`
	WAFS  []TurbulenceBand `msgpack:"wafs,omitempty" json:"wafs,omitempty"`
	Metar *MetarReport     `msgpack:"metar,omitempty" json:"metar,omitempty"`
}

// IsFull reports whether this payload carries a full snapshot rather than an
// ad-hoc query response.
func (s *Snapshot) IsFull() bool {
	return s != nil && s.Info != nil
}

// Float returns a pointer to v, for filling optional fields
func Float(v float64) *float64 { return &v }
