// Package daemon composes the data sources into the weather provider the
// UDP channel serves from.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/sources/metar"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

const stationLookupTimeout = 15 * time.Second

// Broadcaster is the observer hub served snapshots are mirrored to.
// Nil disables mirroring.
type Broadcaster interface {
	Broadcast(*websocket.Message)
}

// Daemon answers weather queries by localizing the loaded forecast cycles
// and the station report cache to the requested point.
type Daemon struct {
	rootPath string
	logger   *logger.Logger
	grib     *grib.Repository
	metar    *metar.Service
	hub      Broadcaster

	mu       sync.RWMutex
	lastLat  float64
	lastLon  float64
	lastAt   time.Time
	hasQuery bool
}

func New(rootPath string, gribRepo *grib.Repository, metarSvc *metar.Service, hub Broadcaster, log *logger.Logger) *Daemon {
	return &Daemon{
		rootPath: rootPath,
		logger:   log.Named("daemon"),
		grib:     gribRepo,
		metar:    metarSvc,
		hub:      hub,
	}
}

// Snapshot assembles the full weather state for a point. Sections with no
// data stay nil; the caller still gets a valid snapshot when a source is
// cold. Never blocks on upstream fetches.
func (d *Daemon) Snapshot(lat, lon float64) (*wxdata.Snapshot, error) {
	d.metar.SetPosition(lat, lon)

	d.mu.Lock()
	d.lastLat, d.lastLon = lat, lon
	d.lastAt = time.Now()
	d.hasQuery = true
	d.mu.Unlock()

	snap := &wxdata.Snapshot{
		Info: &wxdata.SnapshotInfo{
			Lat:        lat,
			Lon:        lon,
			GFSCycle:   d.grib.Cycle(grib.KindGFS),
			WAFSCycle:  d.grib.Cycle(grib.KindWAFS),
			MagDeclDeg: physics.MagneticDeclination(lat, lon, 0, time.Now()),
		},
		GFS:   d.grib.ParseGribData(lat, lon),
		WAFS:  d.grib.ParseTurbulence(lat, lon),
		Metar: d.metar.Report(lat, lon),
	}

	if d.hub != nil {
		d.hub.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeSnapshot,
			Data: map[string]any{
				"lat":      lat,
				"lon":      lon,
				"snapshot": snap,
			},
		})
	}

	return snap, nil
}

// StationSnapshot answers an ad-hoc station query. The result carries only
// the report, never Info, so the wire layer routes it past the engine.
func (d *Daemon) StationSnapshot(icao string) (*wxdata.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stationLookupTimeout)
	defer cancel()

	report, err := d.metar.ReportByICAO(ctx, icao)
	if err != nil {
		return nil, fmt.Errorf("station lookup %s: %w", icao, err)
	}

	if d.hub != nil {
		d.hub.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeStationReport,
			Data: map[string]any{"icao": icao, "report": report},
		})
	}

	return &wxdata.Snapshot{Metar: report}, nil
}

// Reload re-reads the config file and applies the settings running services
// can pick up live. Listener addresses need a restart.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(config.FilePath(d.rootPath))
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	d.metar.Reconfigure(cfg.Metar)
	if err := d.grib.Rescan(); err != nil {
		d.logger.Warn("Cycle rescan during reload failed", logger.Error(err))
	}

	d.logger.Info("Configuration reloaded")
	return nil
}

// ResetReports reinitializes the station report source.
func (d *Daemon) ResetReports() error {
	d.metar.Reset()
	return nil
}

// LastQuery reports the most recent position query, for the status API.
func (d *Daemon) LastQuery() (lat, lon float64, at time.Time, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastLat, d.lastLon, d.lastAt, d.hasQuery
}
