package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/sources/metar"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

const upstreamObservations = `[{
	"icaoId": "CYYZ", "rawOb": "CYYZ 261800Z 24012KT 15SM FEW040 22/14 A2998",
	"lat": 43.68, "lon": -79.63, "elev": 173,
	"temp": 22.0, "dewp": 14.0, "wdir": 240, "wspd": 12,
	"visib": "10+", "altim": 1015.2,
	"clouds": [{"cover": "FEW", "base": 4000}]
}]`

type fakeHub struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (f *fakeHub) Broadcast(m *websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
}

func (f *fakeHub) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		out = append(out, m.Type)
	}
	return out
}

func newTestDaemon(t *testing.T) (*Daemon, *fakeHub, string) {
	t.Helper()
	log := logger.NewNop()
	root := t.TempDir()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.RawQuery, "ids=ZZZZ") {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(upstreamObservations))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Metar.SourceBaseURL = upstream.URL
	cfg.Grib.CacheDir = filepath.Join(root, "cache")
	require.NoError(t, cfg.Save(config.FilePath(root)))

	repo := grib.NewRepository(cfg.Grib, log)
	require.NoError(t, repo.Store(&grib.CycleGrid{
		Cycle: "2026082612", Kind: grib.KindGFS, StepDeg: 0.5,
		Points: map[string]grib.PointColumn{
			grib.PointKey(43.68, -79.63, 0.5): {
				Levels:         []grib.LevelRecord{{LevelHPa: 900, HeadingDeg: 250, SpeedKt: 20}},
				MSLPressureHPa: wxdata.Float(1015.0),
			},
		},
	}))

	index, err := metar.NewStationIndex(filepath.Join(root, "stations.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	svc := metar.NewService(cfg.Metar, index, log)
	svc.SetPosition(43.68, -79.63)
	require.NoError(t, svc.Refresh(context.Background()))

	hub := &fakeHub{}
	return New(root, repo, svc, hub, log), hub, root
}

func TestSnapshot(t *testing.T) {
	d, hub, _ := newTestDaemon(t)

	snap, err := d.Snapshot(43.68, -79.63)
	require.NoError(t, err)
	require.True(t, snap.IsFull())

	assert.Equal(t, "2026082612", snap.Info.GFSCycle)
	assert.Equal(t, "", snap.Info.WAFSCycle)
	assert.InDelta(t, 43.68, snap.Info.Lat, 1e-9)

	require.NotNil(t, snap.GFS)
	require.Len(t, snap.GFS.Winds, 1)
	assert.Equal(t, 250.0, snap.GFS.Winds[0].HeadingDeg)

	require.NotNil(t, snap.Metar)
	assert.Equal(t, "CYYZ", snap.Metar.ICAO)

	lat, _, _, ok := d.LastQuery()
	require.True(t, ok)
	assert.InDelta(t, 43.68, lat, 1e-9)

	assert.Contains(t, hub.types(), websocket.MessageTypeSnapshot)
}

func TestSnapshotColdSources(t *testing.T) {
	d, _, _ := newTestDaemon(t)

	// A point off the loaded grid still answers; the report rides along
	// with its true distance so the consumer can reject it.
	snap, err := d.Snapshot(-33.95, 18.6)
	require.NoError(t, err)
	require.True(t, snap.IsFull())
	assert.Nil(t, snap.GFS)
	assert.Nil(t, snap.WAFS)
	require.NotNil(t, snap.Metar)
	assert.Greater(t, snap.Metar.DistanceM, 1_000_000.0)
}

func TestStationSnapshot(t *testing.T) {
	d, hub, _ := newTestDaemon(t)

	snap, err := d.StationSnapshot("CYYZ")
	require.NoError(t, err)
	assert.False(t, snap.IsFull())
	require.NotNil(t, snap.Metar)
	assert.Equal(t, "CYYZ", snap.Metar.ICAO)

	assert.Contains(t, hub.types(), websocket.MessageTypeStationReport)
}

func TestStationSnapshotUnknown(t *testing.T) {
	d, _, _ := newTestDaemon(t)

	_, err := d.StationSnapshot("ZZZZ")
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	d, _, root := newTestDaemon(t)

	require.NoError(t, d.Reload())

	// A missing config file is an error, not a silent fallback.
	require.NoError(t, os.Remove(config.FilePath(root)))
	assert.Error(t, d.Reload())
}

func TestResetReports(t *testing.T) {
	d, _, _ := newTestDaemon(t)

	require.NoError(t, d.ResetReports())
	// The cache is gone until the next refresh.
	snap, err := d.Snapshot(43.68, -79.63)
	require.NoError(t, err)
	assert.Nil(t, snap.Metar)
}
