package metar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

// refreshBoxDeg is the half-width of the report fetch box around the
// aircraft. Wide enough that the closest station never sits outside it.
const refreshBoxDeg = 1.5

// Service owns station reports: a periodically refreshed cache of parsed
// observations around the aircraft plus the persistent station index.
// Report lookups never touch the network; the refresh scheduler does.
type Service struct {
	cfg     config.MetarConfig
	fetcher *Fetcher
	index   *StationIndex
	logger  *logger.Logger

	mu          sync.RWMutex
	observation map[string]*awMetar
	lastRefresh time.Time
	lat, lon    float64
	hasPos      bool
}

func NewService(cfg config.MetarConfig, index *StationIndex, log *logger.Logger) *Service {
	return &Service{
		cfg:         cfg,
		fetcher:     NewFetcher(cfg, log),
		index:       index,
		logger:      log.Named("metar"),
		observation: map[string]*awMetar{},
	}
}

// SetPosition records where the consumer is; the next refresh fetches
// reports around this point.
func (s *Service) SetPosition(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lat, s.lon = lat, lon
	s.hasPos = true
}

// NeedsRefresh reports whether the cache is older than the configured
// refresh interval.
func (s *Service) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPos &&
		time.Since(s.lastRefresh) >= time.Duration(s.cfg.RefreshIntervalMins)*time.Minute
}

// Refresh fetches all reports around the last known position, replaces the
// observation cache and feeds the station index.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.RLock()
	lat, lon, ok := s.lat, s.lon, s.hasPos
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	obs, err := s.fetcher.ByBBox(ctx,
		lat-refreshBoxDeg, lon-refreshBoxDeg,
		lat+refreshBoxDeg, lon+refreshBoxDeg)
	if err != nil {
		return fmt.Errorf("refreshing station reports: %w", err)
	}

	cache := make(map[string]*awMetar, len(obs))
	stations := make([]Station, 0, len(obs))
	for i := range obs {
		o := &obs[i]
		if o.ICAOID == "" {
			continue
		}
		cache[o.ICAOID] = o
		stations = append(stations, Station{
			ICAO: o.ICAOID, Lat: o.Lat, Lon: o.Lon, ElevationM: o.ElevM,
		})
	}

	if err := s.index.Upsert(stations); err != nil {
		s.logger.Warn("Station index update failed", logger.Error(err))
	}

	s.mu.Lock()
	s.observation = cache
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Info("Station reports refreshed",
		logger.Int("stations", len(cache)),
		logger.Float64("lat", lat),
		logger.Float64("lon", lon))
	return nil
}

// Report returns the parsed report of the closest non-ignored station to the
// point, or nil when the cache has none. Distance filtering is left to the
// engine; the report always carries its true distance.
func (s *Service) Report(lat, lon float64) *wxdata.MetarReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ignored := make(map[string]struct{}, len(s.cfg.IgnoreStations))
	for _, icao := range s.cfg.IgnoreStations {
		ignored[icao] = struct{}{}
	}

	var best *awMetar
	bestDist := 0.0
	for _, o := range s.observation {
		if _, skip := ignored[o.ICAOID]; skip {
			continue
		}
		d := physics.DistanceM(lat, lon, o.Lat, o.Lon)
		if best == nil || d < bestDist {
			best = o
			bestDist = d
		}
	}
	if best == nil {
		return nil
	}

	return parseReport(best, lat, lon)
}

// ReportByICAO answers a station query: cached observation when available,
// direct fetch otherwise. Distance is measured from the station itself.
func (s *Service) ReportByICAO(ctx context.Context, icao string) (*wxdata.MetarReport, error) {
	s.mu.RLock()
	cached, ok := s.observation[icao]
	s.mu.RUnlock()

	if ok {
		return parseReport(cached, cached.Lat, cached.Lon), nil
	}

	obs, err := s.fetcher.ByICAO(ctx, icao)
	if err != nil {
		return nil, err
	}

	if err := s.index.Upsert([]Station{{
		ICAO: obs.ICAOID, Lat: obs.Lat, Lon: obs.Lon, ElevationM: obs.ElevM,
	}}); err != nil {
		s.logger.Warn("Station index update failed", logger.Error(err))
	}

	return parseReport(obs, obs.Lat, obs.Lon), nil
}

// ClosestStation looks the nearest known station up in the persistent index.
func (s *Service) ClosestStation(lat, lon float64) (*Station, float64, error) {
	s.mu.RLock()
	ignore := s.cfg.IgnoreStations
	s.mu.RUnlock()
	return s.index.Closest(lat, lon, ignore)
}

// Reconfigure applies freshly loaded report settings. The observation cache
// is kept; the next refresh uses the new source.
func (s *Service) Reconfigure(cfg config.MetarConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.fetcher.Reconfigure(cfg)
}

// Stats describes the cache state for the status API.
type Stats struct {
	CachedReports int       `json:"cached_reports"`
	IndexedCount  int       `json:"indexed_stations"`
	LastRefresh   time.Time `json:"last_refresh"`
}

// CacheStats returns the current cache and index counters.
func (s *Service) CacheStats() Stats {
	s.mu.RLock()
	stats := Stats{
		CachedReports: len(s.observation),
		LastRefresh:   s.lastRefresh,
	}
	s.mu.RUnlock()

	if n, err := s.index.Count(); err == nil {
		stats.IndexedCount = n
	}
	return stats
}

// Reset drops the observation cache and breaker state. The next refresh
// starts from a clean source.
func (s *Service) Reset() {
	s.mu.Lock()
	s.observation = map[string]*awMetar{}
	s.lastRefresh = time.Time{}
	s.mu.Unlock()
	s.fetcher.Reset()
	s.logger.Info("Station report source reset")
}
