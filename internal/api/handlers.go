// Package api serves the daemon's read-only status HTTP endpoints and the
// snapshot observer websocket.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/sources/metar"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/pkg/logger"
)

// QueryTracker reports the last position a client asked weather for.
type QueryTracker interface {
	LastQuery() (lat, lon float64, at time.Time, ok bool)
}

// Handler contains the API handlers
type Handler struct {
	config    *config.Config
	logger    *logger.Logger
	wsServer  *websocket.Server
	gribRepo  *grib.Repository
	metarSvc  *metar.Service
	tracker   QueryTracker
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, gribRepo *grib.Repository, metarSvc *metar.Service, tracker QueryTracker, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		config:    cfg,
		logger:    log.Named("api-handler"),
		wsServer:  wsServer,
		gribRepo:  gribRepo,
		metarSvc:  metarSvc,
		tracker:   tracker,
		startTime: time.Now(),
	}
}

// GetHealth returns a basic liveness response.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	UptimeSecs    float64                `json:"uptime_secs"`
	GFSCycle      string                 `json:"gfs_cycle"`
	WAFSCycle     string                 `json:"wafs_cycle"`
	CachedCycles  map[grib.Kind][]string `json:"cached_cycles"`
	Stations      metar.Stats            `json:"stations"`
	Observers     int                    `json:"observers"`
	LastQuery     *lastQuery             `json:"last_query,omitempty"`
}

type lastQuery struct {
	Lat float64   `json:"lat"`
	Lon float64   `json:"lon"`
	At  time.Time `json:"at"`
}

// GetStatus returns the daemon's operational state.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSecs:   time.Since(h.startTime).Seconds(),
		GFSCycle:     h.gribRepo.Cycle(grib.KindGFS),
		WAFSCycle:    h.gribRepo.Cycle(grib.KindWAFS),
		CachedCycles: h.gribRepo.CachedCycles(),
		Stations:     h.metarSvc.CacheStats(),
		Observers:    h.wsServer.ClientCount(),
	}
	if lat, lon, at, ok := h.tracker.LastQuery(); ok {
		resp.LastQuery = &lastQuery{Lat: lat, Lon: lon, At: at}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetConfig returns the active configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.config)
}

// HandleWebSocket upgrades to the snapshot observer stream.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
