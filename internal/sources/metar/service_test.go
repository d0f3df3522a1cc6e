package metar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/pkg/logger"
)

func upstreamStub(t *testing.T, observations []awMetar, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")

		if ids := r.URL.Query().Get("ids"); ids != "" {
			for _, o := range observations {
				if o.ICAOID == ids {
					json.NewEncoder(w).Encode([]awMetar{o})
					return
				}
			}
			json.NewEncoder(w).Encode([]awMetar{})
			return
		}
		json.NewEncoder(w).Encode(observations)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, baseURL string, ignore ...string) *Service {
	t.Helper()
	cfg := config.Default().Metar
	cfg.SourceBaseURL = baseURL
	cfg.IgnoreStations = ignore
	return NewService(cfg, newTestIndex(t), logger.NewNop())
}

func testObservations() []awMetar {
	spd := 10.0
	return []awMetar{
		{ICAOID: "CYYZ", Lat: 43.6772, Lon: -79.6306, ElevM: 173, WindSpdKt: &spd,
			WindDir: json.RawMessage(`230`), RawOb: "CYYZ 261800Z 23010KT"},
		{ICAOID: "CYTZ", Lat: 43.6275, Lon: -79.3962, ElevM: 77, WindSpdKt: &spd,
			WindDir: json.RawMessage(`180`), RawOb: "CYTZ 261800Z 18010KT"},
	}
}

func TestRefreshAndReport(t *testing.T) {
	srv := upstreamStub(t, testObservations(), nil)
	s := newTestService(t, srv.URL)

	// Without a position nothing happens.
	require.NoError(t, s.Refresh(context.Background()))
	assert.Nil(t, s.Report(43.65, -79.38))

	s.SetPosition(43.65, -79.38)
	require.True(t, s.NeedsRefresh())
	require.NoError(t, s.Refresh(context.Background()))
	assert.False(t, s.NeedsRefresh())

	r := s.Report(43.65, -79.38)
	require.NotNil(t, r)
	assert.Equal(t, "CYTZ", r.ICAO)
	assert.Less(t, r.DistanceM, 5000.0)

	// The refresh also fed the persistent index.
	station, _, err := s.ClosestStation(43.65, -79.38)
	require.NoError(t, err)
	assert.Equal(t, "CYTZ", station.ICAO)
}

func TestReportHonorsIgnoreList(t *testing.T) {
	srv := upstreamStub(t, testObservations(), nil)
	s := newTestService(t, srv.URL, "CYTZ")

	s.SetPosition(43.65, -79.38)
	require.NoError(t, s.Refresh(context.Background()))

	r := s.Report(43.65, -79.38)
	require.NotNil(t, r)
	assert.Equal(t, "CYYZ", r.ICAO)
}

func TestReportByICAOUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := upstreamStub(t, testObservations(), &hits)
	s := newTestService(t, srv.URL)

	s.SetPosition(43.65, -79.38)
	require.NoError(t, s.Refresh(context.Background()))
	refreshHits := hits.Load()

	r, err := s.ReportByICAO(context.Background(), "CYYZ")
	require.NoError(t, err)
	assert.Equal(t, "CYYZ", r.ICAO)
	assert.Equal(t, refreshHits, hits.Load(), "cached station must not refetch")
}

func TestReportByICAOFetchesUnknownStation(t *testing.T) {
	srv := upstreamStub(t, testObservations(), nil)
	s := newTestService(t, srv.URL)

	r, err := s.ReportByICAO(context.Background(), "CYTZ")
	require.NoError(t, err)
	assert.Equal(t, "CYTZ", r.ICAO)

	// The one-off fetch seeds the index too.
	station, err := s.index.Get("CYTZ")
	require.NoError(t, err)
	assert.Equal(t, 77.0, station.ElevationM)
}

func TestResetClearsCache(t *testing.T) {
	srv := upstreamStub(t, testObservations(), nil)
	s := newTestService(t, srv.URL)

	s.SetPosition(43.65, -79.38)
	require.NoError(t, s.Refresh(context.Background()))
	require.NotNil(t, s.Report(43.65, -79.38))

	s.Reset()
	assert.Nil(t, s.Report(43.65, -79.38))
	assert.True(t, s.NeedsRefresh())
}

func TestFetcherSurvivesUpstreamErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]awMetar{})
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().Metar
	cfg.SourceBaseURL = srv.URL
	f := NewFetcher(cfg, logger.NewNop())

	obs, err := f.ByBBox(context.Background(), 40, -80, 45, -75)
	require.NoError(t, err, "retry must absorb a single upstream failure")
	assert.Empty(t, obs)
	assert.Equal(t, int32(2), hits.Load())
}
