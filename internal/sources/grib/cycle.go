// Package grib serves point-localized forecast data from pre-parsed cycle
// files. Decoding raw GRIB2 is out of scope; an external preprocessor drops
// compact msgpack+zstd cycle files into the cache directory and this package
// only reads them.
package grib

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/internal/wxdata"
)

// Kind discriminates the two forecast grids.
type Kind string

const (
	KindGFS  Kind = "gfs"  // winds, clouds, surface pressure
	KindWAFS Kind = "wafs" // turbulence severity
)

// LevelRecord is one pressure level at one grid point. WAFS cycles carry
// Severity; GFS cycles carry wind and temperature.
type LevelRecord struct {
	LevelHPa   float64  `msgpack:"level_hpa"`
	HeadingDeg float64  `msgpack:"hdg_deg"`
	SpeedKt    float64  `msgpack:"speed_kt"`
	TempK      *float64 `msgpack:"temp_k,omitempty"`
	DewK       *float64 `msgpack:"dew_k,omitempty"`
	Severity   *float64 `msgpack:"severity,omitempty"`
}

// CloudRecord is one forecast cloud band bounded by pressure levels.
type CloudRecord struct {
	BaseHPa  float64 `msgpack:"base_hpa"`
	TopHPa   float64 `msgpack:"top_hpa"`
	CoverPct float64 `msgpack:"cover_pct"`
}

// PointColumn is the vertical column at one grid point.
type PointColumn struct {
	Levels         []LevelRecord `msgpack:"levels"`
	Clouds         []CloudRecord `msgpack:"clouds,omitempty"`
	MSLPressureHPa *float64      `msgpack:"mslp_hpa,omitempty"`
}

// CycleGrid is one pre-parsed forecast cycle over a regular lat/lon grid.
type CycleGrid struct {
	Cycle   string                 `msgpack:"cycle"` // e.g. "2026082512"
	Kind    Kind                   `msgpack:"kind"`
	StepDeg float64                `msgpack:"step_deg"`
	Points  map[string]PointColumn `msgpack:"points"`
}

// PointKey maps a position onto the grid cell key used in Points.
func PointKey(lat, lon, stepDeg float64) string {
	return fmt.Sprintf("%d,%d",
		int(math.Round(lat/stepDeg)),
		int(math.Round(lon/stepDeg)))
}

// Column returns the grid column closest to a position.
func (g *CycleGrid) Column(lat, lon float64) (PointColumn, bool) {
	col, ok := g.Points[PointKey(lat, lon, g.StepDeg)]
	return col, ok
}

// GridData converts a column into the snapshot's forecast section, with
// pressure levels mapped to standard-atmosphere altitudes.
func (col PointColumn) GridData() *wxdata.GridData {
	data := &wxdata.GridData{}

	for _, lv := range col.Levels {
		data.Winds = append(data.Winds, wxdata.WindLayer{
			AltM:       physics.PressureToAltitude(lv.LevelHPa),
			HeadingDeg: lv.HeadingDeg,
			SpeedKt:    lv.SpeedKt,
			TempK:      lv.TempK,
			DewK:       lv.DewK,
		})
	}
	sort.Slice(data.Winds, func(i, j int) bool {
		return data.Winds[i].AltM < data.Winds[j].AltM
	})

	for _, cl := range col.Clouds {
		base := physics.PressureToAltitude(cl.BaseHPa)
		top := physics.PressureToAltitude(cl.TopHPa)
		if top < base {
			base, top = top, base
		}
		data.Clouds = append(data.Clouds, wxdata.ForecastCloud{
			BaseM: base, TopM: top, CoverPct: cl.CoverPct,
		})
	}
	sort.Slice(data.Clouds, func(i, j int) bool {
		return data.Clouds[i].BaseM < data.Clouds[j].BaseM
	})

	if col.MSLPressureHPa != nil {
		data.PressureInHg = wxdata.Float(wxdata.HPaToInHg(*col.MSLPressureHPa))
	}

	return data
}

// TurbulenceBands converts a WAFS column into ascending severity bands.
func (col PointColumn) TurbulenceBands() []wxdata.TurbulenceBand {
	var bands []wxdata.TurbulenceBand
	for _, lv := range col.Levels {
		if lv.Severity == nil {
			continue
		}
		bands = append(bands, wxdata.TurbulenceBand{
			AltM:     physics.PressureToAltitude(lv.LevelHPa),
			Severity: *lv.Severity,
		})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].AltM < bands[j].AltM })
	return bands
}

// zstd frame magic, used to sniff whether a cycle file is compressed.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ReadCycleFile loads one cycle file, transparently decompressing it.
func ReadCycleFile(path string) (*CycleGrid, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bytes.NewReader(contents)
	if bytes.HasPrefix(contents, zstdMagic) {
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, fmt.Errorf("opening cycle file %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var grid CycleGrid
	if err := msgpack.NewDecoder(r).Decode(&grid); err != nil {
		return nil, fmt.Errorf("decoding cycle file %s: %w", path, err)
	}
	return &grid, nil
}

// WriteCycleFile stores a cycle grid compressed. Used by the preprocessor
// tooling and tests.
func WriteCycleFile(path string, grid *CycleGrid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(grid); err != nil {
		zw.Close()
		return fmt.Errorf("encoding cycle file %s: %w", path, err)
	}
	return zw.Close()
}
