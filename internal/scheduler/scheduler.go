// Package scheduler drives the periodic background jobs of the weather
// server: refreshing station reports and rescanning the forecast cycle cache.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/pkg/logger"
)

// MetarRefresher is the station report side of the scheduler.
type MetarRefresher interface {
	NeedsRefresh() bool
	Refresh(ctx context.Context) error
}

// CycleScanner is the forecast cycle side of the scheduler.
type CycleScanner interface {
	Rescan() error
	Cycle(kind grib.Kind) string
}

// Broadcaster receives cycle-change events. Nil disables them.
type Broadcaster interface {
	Broadcast(*websocket.Message)
}

const refreshTimeout = 30 * time.Second

// Scheduler runs the recurring jobs on their configured cadence.
type Scheduler struct {
	scheduler *gocron.Scheduler
	metar     MetarRefresher
	grib      CycleScanner
	hub       Broadcaster
	cfg       *config.Config
	logger    *logger.Logger
}

func New(cfg *config.Config, metar MetarRefresher, grib CycleScanner, hub Broadcaster, log *logger.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		metar:     metar,
		grib:      grib,
		hub:       hub,
		cfg:       cfg,
		logger:    log.Named("scheduler"),
	}
}

// Start registers the jobs and starts the scheduler in the background.
// The station refresh job runs on a short tick and defers to NeedsRefresh
// so a position change can pull the next refresh forward.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Minutes().Do(s.refreshMetar); err != nil {
		return err
	}

	rescanMins := s.cfg.Grib.RescanIntervalMins
	if _, err := s.scheduler.Every(rescanMins).Minutes().Do(s.rescanCycles); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("Background jobs started",
		logger.Int("metar_interval_mins", s.cfg.Metar.RefreshIntervalMins),
		logger.Int("grib_rescan_mins", rescanMins))
	return nil
}

// Stop halts the scheduler. Jobs already running finish on their own.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("Background jobs stopped")
}

func (s *Scheduler) refreshMetar() {
	if !s.metar.NeedsRefresh() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.metar.Refresh(ctx); err != nil {
		s.logger.Warn("Station report refresh failed", logger.Error(err))
	}
}

func (s *Scheduler) rescanCycles() {
	before := map[grib.Kind]string{
		grib.KindGFS:  s.grib.Cycle(grib.KindGFS),
		grib.KindWAFS: s.grib.Cycle(grib.KindWAFS),
	}

	if err := s.grib.Rescan(); err != nil {
		s.logger.Warn("Cycle cache rescan failed", logger.Error(err))
		return
	}

	if s.hub == nil {
		return
	}
	for kind, was := range before {
		if now := s.grib.Cycle(kind); now != was {
			s.hub.Broadcast(&websocket.Message{
				Type: websocket.MessageTypeCycleChange,
				Data: map[string]any{"kind": string(kind), "cycle": now},
			})
		}
	}
}
